package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// StatusMirror copies every frame transition into the cache so other
// processes can read frame state. An entry expires when the frame leaves the
// retention window, measured from its creation like the in-memory queue.
type StatusMirror struct {
	cache     Cache
	retention time.Duration
	now       func() time.Time
}

func NewStatusMirror(c Cache, retention time.Duration) *StatusMirror {
	return &StatusMirror{cache: c, retention: retention, now: time.Now}
}

func (m *StatusMirror) FrameUpdated(ctx context.Context, frame models.Frame) {
	ttl := m.retention - m.now().Sub(frame.CreatedAt)
	if ttl <= 0 {
		slog.Debug("frame past retention, not mirrored", "frame_id", frame.ID, "status", frame.Status)
		return
	}
	if err := m.cache.SetFrame(ctx, frame, ttl); err != nil {
		slog.Warn("failed to mirror frame status", "frame_id", frame.ID, "status", frame.Status, "error", err)
	}
}
