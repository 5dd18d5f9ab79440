// Package predictor turns raw image bytes into a breed classification with a
// heuristic weight estimate.
package predictor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/bovinoia/internal/breed"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// Options configure an Adapter.
type Options struct {
	Backend          string
	ImageSize        int
	BatchSize        int
	MaxPixels        int
	MinWeight        float64
	MaxWeight        float64
	InferenceTimeout time.Duration
	// Jitter returns a value in [-1, 1). Defaults to a uniform random source.
	Jitter func() float64
	Now    func() time.Time
}

// Info describes the predictor for the stats and health endpoints.
type Info struct {
	ModelReady      bool    `json:"model_ready"`
	Backend         string  `json:"backend"`
	BreedsSupported int     `json:"breeds_supported"`
	TotalAnalyses   int64   `json:"total_analyses"`
	ImageSize       int     `json:"image_size"`
	BatchSize       int     `json:"batch_size"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// Adapter wraps a models.Classifier. It is safe for concurrent use; whether
// Classify calls run in parallel is up to the classifier.
type Adapter struct {
	catalog *breed.Catalog
	opts    Options

	mu         sync.RWMutex
	classifier models.Classifier

	total   atomic.Int64
	started time.Time
}

// New returns an Adapter with no classifier installed. Predict fails with
// ErrNotReady until SetClassifier is called.
func New(catalog *breed.Catalog, opts Options) *Adapter {
	if opts.Jitter == nil {
		opts.Jitter = func() float64 { return rand.Float64()*2 - 1 }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	if opts.InferenceTimeout <= 0 {
		opts.InferenceTimeout = 30 * time.Second
	}
	return &Adapter{
		catalog: catalog,
		opts:    opts,
		started: opts.Now(),
	}
}

// SetClassifier installs c, closing any previously installed classifier.
func (a *Adapter) SetClassifier(c models.Classifier) error {
	if c == nil {
		return errors.New("classifier is nil")
	}
	if len(c.Labels()) == 0 {
		return errors.New("classifier has no labels")
	}

	for _, label := range c.Labels() {
		if _, ok := a.catalog.Lookup(label); !ok {
			slog.Warn("classifier label not in breed catalog, using default weight",
				"label", label, "default_weight", breed.DefaultWeight)
		}
	}

	a.mu.Lock()
	prev := a.classifier
	a.classifier = c
	a.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			slog.Warn("failed to close previous classifier", "error", err)
		}
	}
	return nil
}

// Ready reports whether a classifier is installed.
func (a *Adapter) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.classifier != nil
}

// Predict decodes payload, classifies it and composes the analysis result.
// Errors wrap ErrNotReady, ErrDecode or ErrInference.
func (a *Adapter) Predict(ctx context.Context, payload []byte) (*models.Analysis, error) {
	start := a.opts.Now()

	a.mu.RLock()
	c := a.classifier
	a.mu.RUnlock()
	if c == nil {
		return nil, ErrNotReady
	}

	img, err := decode(payload, a.opts.ImageSize, a.opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	input, stats := tensor(img, c.Layout())

	ctx, cancel := context.WithTimeout(ctx, a.opts.InferenceTimeout)
	defer cancel()

	probs, err := c.Classify(ctx, input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out after %s", ErrInference, a.opts.InferenceTimeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	labels := c.Labels()
	idx, conf, err := argmax(probs, len(labels))
	if err != nil {
		return nil, err
	}

	name := labels[idx]
	classification := models.Classification{
		Breed:           name,
		Confidence:      conf,
		Characteristics: a.catalog.Characteristics(name),
		EstimatedWeight: estimateWeight(
			a.catalog.AverageWeight(name), conf, stats, a.opts.Jitter(),
			a.opts.MinWeight, a.opts.MaxWeight,
		),
		DetectionOutcome: detectionOutcome(conf),
	}

	a.total.Add(1)
	end := a.opts.Now()
	return models.NewAnalysis(classification, end.Sub(start), end.UTC()), nil
}

// Info returns a snapshot of predictor metadata.
func (a *Adapter) Info() Info {
	a.mu.RLock()
	c := a.classifier
	a.mu.RUnlock()

	info := Info{
		Backend:         a.opts.Backend,
		BreedsSupported: a.catalog.Len(),
		TotalAnalyses:   a.total.Load(),
		ImageSize:       a.opts.ImageSize,
		BatchSize:       a.opts.BatchSize,
		UptimeSeconds:   a.opts.Now().Sub(a.started).Seconds(),
	}
	if c != nil {
		info.ModelReady = true
		info.Backend = c.Name()
		info.BreedsSupported = len(c.Labels())
	}
	return info
}

// Close releases the installed classifier.
func (a *Adapter) Close() error {
	a.mu.Lock()
	c := a.classifier
	a.classifier = nil
	a.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

func argmax(probs []float32, n int) (int, float64, error) {
	if len(probs) != n {
		return 0, 0, fmt.Errorf("%w: classifier returned %d probabilities for %d labels", ErrInference, len(probs), n)
	}

	best := 0
	for i, p := range probs {
		if math.IsNaN(float64(p)) || math.IsInf(float64(p), 0) {
			return 0, 0, fmt.Errorf("%w: non-finite probability at index %d", ErrInference, i)
		}
		if p > probs[best] {
			best = i
		}
	}

	conf := math.Max(0, math.Min(1, float64(probs[best])))
	return best, conf, nil
}
