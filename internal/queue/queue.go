// Package queue owns every frame analysis record: it accepts submissions,
// drives background processing through the predictor and evicts records
// older than the retention window.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/bovinoia/internal/predictor"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

const notifyTimeout = 5 * time.Second

// Predictor turns image bytes into an analysis result.
type Predictor interface {
	Predict(ctx context.Context, payload []byte) (*models.Analysis, error)
}

// Options configure a Queue.
type Options struct {
	// MaxSize bounds the number of frames waiting for a worker.
	MaxSize         int
	Workers         int
	Retention       time.Duration
	CleanupInterval time.Duration
	Now             func() time.Time
}

type entry struct {
	frame   models.Frame
	payload []byte

	ctx    context.Context
	cancel context.CancelFunc

	// announced is closed once observers have seen the pending state, so a
	// worker never reports processing before pending.
	announced chan struct{}
}

// Queue is safe for concurrent use.
type Queue struct {
	predictor Predictor
	opts      Options

	mu      sync.RWMutex
	entries map[uuid.UUID]*entry

	obsMu     sync.RWMutex
	observers []Observer

	work chan uuid.UUID

	pending    atomic.Int64
	processing atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64

	lifeMu  sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New returns a Queue. Call Start to begin processing.
func New(p Predictor, opts Options) *Queue {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		predictor: p,
		opts:      opts,
		entries:   make(map[uuid.UUID]*entry),
		work:      make(chan uuid.UUID, opts.MaxSize),
	}
}

// AddObserver registers o for all subsequent transitions.
func (q *Queue) AddObserver(o Observer) {
	q.obsMu.Lock()
	defer q.obsMu.Unlock()
	q.observers = append(q.observers, o)
}

// Start launches the worker pool and the retention sweeper. Calling Start on a
// running queue is a no-op; a stopped queue cannot be restarted.
func (q *Queue) Start(ctx context.Context) error {
	q.lifeMu.Lock()
	defer q.lifeMu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.running {
		return nil
	}

	ctx, q.cancel = context.WithCancel(ctx)
	q.running = true

	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.wg.Add(1)
	go q.sweeper(ctx)

	slog.Info("analysis queue started",
		"workers", q.opts.Workers,
		"max_size", q.opts.MaxSize,
		"retention", q.opts.Retention.String())
	return nil
}

// Stop halts the workers and the sweeper and waits for in-flight frames to
// finish. Frames still waiting for a worker stay pending. Stop is idempotent.
func (q *Queue) Stop() {
	q.lifeMu.Lock()
	if q.closed {
		q.lifeMu.Unlock()
		return
	}
	q.closed = true
	running := q.running
	q.running = false
	q.lifeMu.Unlock()

	if running {
		q.cancel()
		q.wg.Wait()
	}
	slog.Info("analysis queue stopped")
}

// Submit validates payload, records a pending frame and schedules it for
// background processing. It never waits on the predictor.
//
// contentType is the media type declared by the transport, if any; when it is
// empty or generic the payload is sniffed instead.
func (q *Queue) Submit(ctx context.Context, payload []byte, contentType string) (models.Frame, error) {
	if err := validatePayload(payload, contentType); err != nil {
		return models.Frame{}, err
	}
	if q.isClosed() {
		return models.Frame{}, ErrClosed
	}

	e := q.insert(context.Background(), payload)
	id := e.frame.ID

	select {
	case q.work <- id:
	default:
		q.mu.Lock()
		if cur, ok := q.entries[id]; ok && cur == e {
			q.removeLocked(id, cur)
		}
		q.mu.Unlock()
		return models.Frame{}, ErrQueueFull
	}

	frame := q.snapshot(e)
	q.notify(ctx, frame)
	close(e.announced)
	return frame, nil
}

// Analyze records a frame and processes it on the calling goroutine,
// returning the terminal snapshot. A failed analysis is reported through the
// frame's status, not the error.
func (q *Queue) Analyze(ctx context.Context, payload []byte, contentType string) (models.Frame, error) {
	if err := validatePayload(payload, contentType); err != nil {
		return models.Frame{}, err
	}
	if q.isClosed() {
		return models.Frame{}, ErrClosed
	}

	e := q.insert(ctx, payload)
	q.notify(ctx, q.snapshot(e))
	close(e.announced)

	q.process(e.frame.ID)
	return q.Get(e.frame.ID)
}

// Get returns a snapshot of the frame. Frames past the retention window are
// evicted on access and reported as ErrNotFound.
func (q *Queue) Get(id uuid.UUID) (models.Frame, error) {
	q.mu.RLock()
	e, ok := q.entries[id]
	var frame models.Frame
	if ok {
		frame = e.frame
	}
	q.mu.RUnlock()

	if !ok {
		return models.Frame{}, ErrNotFound
	}
	if q.expired(frame.CreatedAt, q.opts.Retention) {
		q.mu.Lock()
		if cur, ok := q.entries[id]; ok && cur == e {
			q.removeLocked(id, cur)
		}
		q.mu.Unlock()
		return models.Frame{}, ErrNotFound
	}
	return frame, nil
}

// Cleanup removes every frame created before now-olderThan, whatever its
// status, and returns how many were removed. In-flight processing of a
// removed frame is cancelled and its outcome discarded.
func (q *Queue) Cleanup(olderThan time.Duration) int {
	q.mu.RLock()
	candidates := make([]uuid.UUID, 0)
	for id, e := range q.entries {
		if q.expired(e.frame.CreatedAt, olderThan) {
			candidates = append(candidates, id)
		}
	}
	q.mu.RUnlock()

	if len(candidates) == 0 {
		return 0
	}

	removed := 0
	q.mu.Lock()
	for _, id := range candidates {
		e, ok := q.entries[id]
		if !ok || !q.expired(e.frame.CreatedAt, olderThan) {
			continue
		}
		q.removeLocked(id, e)
		removed++
	}
	q.mu.Unlock()

	return removed
}

// Stats returns point-in-time counts by status without taking the record lock.
func (q *Queue) Stats() models.QueueStats {
	s := models.QueueStats{
		Pending:    int(q.pending.Load()),
		Processing: int(q.processing.Load()),
		Completed:  int(q.completed.Load()),
		Failed:     int(q.failed.Load()),
	}
	s.Total = s.Pending + s.Processing + s.Completed + s.Failed
	return s
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.work:
			q.process(id)
		}
	}
}

func (q *Queue) sweeper(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := q.Cleanup(q.opts.Retention); n > 0 {
				slog.Info("evicted expired frames", "count", n)
			}
		}
	}
}

// process advances one frame through processing to a terminal state. It never
// panics; every failure is captured on the record.
func (q *Queue) process(id uuid.UUID) {
	q.mu.RLock()
	e, ok := q.entries[id]
	q.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case <-e.announced:
	case <-e.ctx.Done():
		return
	}

	payload, frame, ok := q.markProcessing(id, e)
	if !ok {
		return
	}
	q.notify(e.ctx, frame)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while analyzing frame", "error", r, "frame_id", id)
			q.finish(id, e, nil, models.ErrorCodeInternal, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := q.opts.Now()
	result, err := q.predictor.Predict(e.ctx, payload)
	took := q.opts.Now().Sub(start)

	if err != nil {
		q.finish(id, e, nil, errorCode(err), err.Error())
		return
	}
	if result == nil {
		q.finish(id, e, nil, models.ErrorCodeInternal, "predictor returned no result")
		return
	}

	result.ProcessingTimeMS = took.Milliseconds()
	q.finish(id, e, result, "", "")
}

func (q *Queue) markProcessing(id uuid.UUID, e *entry) ([]byte, models.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if cur, ok := q.entries[id]; !ok || cur != e || e.frame.Status != models.FrameStatusPending {
		return nil, models.Frame{}, false
	}

	e.frame.Status = models.FrameStatusProcessing
	e.frame.UpdatedAt = q.stamp(e.frame.UpdatedAt)
	q.pending.Add(-1)
	q.processing.Add(1)
	return e.payload, e.frame, true
}

// finish records the terminal state. A frame removed in the meantime is left
// removed.
func (q *Queue) finish(id uuid.UUID, e *entry, result *models.Analysis, code, msg string) {
	q.mu.Lock()
	cur, ok := q.entries[id]
	if !ok || cur != e || e.frame.Status != models.FrameStatusProcessing {
		q.mu.Unlock()
		return
	}

	if result != nil {
		e.frame.Status = models.FrameStatusCompleted
		e.frame.Result = result
		q.completed.Add(1)
	} else {
		e.frame.Status = models.FrameStatusFailed
		e.frame.Error = &msg
		e.frame.ErrorCode = &code
		q.failed.Add(1)
	}
	q.processing.Add(-1)
	e.frame.UpdatedAt = q.stamp(e.frame.UpdatedAt)
	e.payload = nil
	frame := e.frame
	q.mu.Unlock()

	if result != nil {
		slog.Info("frame analyzed",
			"frame_id", id,
			"status", frame.Status,
			"breed", result.Breed,
			"confidence", result.Confidence,
			"duration_ms", result.ProcessingTimeMS,
		)
	} else {
		slog.Warn("frame analysis failed", "frame_id", id, "status", frame.Status, "error_code", code, "error", msg)
	}
	q.notify(e.ctx, frame)
}

// insert records a pending frame. Its processing context derives from parent.
func (q *Queue) insert(parent context.Context, payload []byte) *entry {
	now := q.opts.Now().UTC()
	ctx, cancel := context.WithCancel(parent)

	e := &entry{
		frame: models.Frame{
			ID:        uuid.New(),
			Status:    models.FrameStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		payload:   payload,
		ctx:       ctx,
		cancel:    cancel,
		announced: make(chan struct{}),
	}

	q.mu.Lock()
	q.entries[e.frame.ID] = e
	q.pending.Add(1)
	q.mu.Unlock()
	return e
}

// removeLocked deletes the entry and cancels its work. Caller holds q.mu.
func (q *Queue) removeLocked(id uuid.UUID, e *entry) {
	delete(q.entries, id)
	e.cancel()
	e.payload = nil
	q.counter(e.frame.Status).Add(-1)
}

func (q *Queue) counter(status string) *atomic.Int64 {
	switch status {
	case models.FrameStatusPending:
		return &q.pending
	case models.FrameStatusProcessing:
		return &q.processing
	case models.FrameStatusCompleted:
		return &q.completed
	default:
		return &q.failed
	}
}

func (q *Queue) snapshot(e *entry) models.Frame {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return e.frame
}

func (q *Queue) notify(ctx context.Context, frame models.Frame) {
	q.obsMu.RLock()
	observers := q.observers
	q.obsMu.RUnlock()
	if len(observers) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in frame observer", "error", r, "frame_id", frame.ID)
				}
			}()
			o.FrameUpdated(ctx, frame)
		}()
	}
}

// stamp returns the current time, never earlier than prev.
func (q *Queue) stamp(prev time.Time) time.Time {
	now := q.opts.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
}

func (q *Queue) expired(createdAt time.Time, window time.Duration) bool {
	return createdAt.Before(q.opts.Now().Add(-window))
}

func (q *Queue) isClosed() bool {
	q.lifeMu.Lock()
	defer q.lifeMu.Unlock()
	return q.closed
}

func validatePayload(payload []byte, contentType string) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	ct := strings.TrimSpace(contentType)
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") {
		ct = http.DetectContentType(payload)
	}

	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return fmt.Errorf("%w: malformed content type %q", ErrInvalidPayload, ct)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return fmt.Errorf("%w: expected an image, got %s", ErrInvalidPayload, mediaType)
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, predictor.ErrDecode):
		return models.ErrorCodeDecode
	case errors.Is(err, predictor.ErrNotReady):
		return models.ErrorCodePredictorNotReady
	case errors.Is(err, predictor.ErrInference):
		return models.ErrorCodeInference
	default:
		return models.ErrorCodeInternal
	}
}
