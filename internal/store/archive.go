package store

import (
	"context"
	"log/slog"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// Archive persists frames once they reach a terminal state.
type Archive struct {
	store Store
}

func NewArchive(s Store) *Archive {
	return &Archive{store: s}
}

func (a *Archive) FrameUpdated(ctx context.Context, frame models.Frame) {
	if !frame.IsTerminal() {
		return
	}
	if err := a.store.SaveFrame(ctx, frame); err != nil {
		slog.Error("failed to archive frame", "frame_id", frame.ID, "status", frame.Status, "error", err)
	}
}
