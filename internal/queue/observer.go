package queue

import (
	"context"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// Observer is notified after every frame state transition. Notifications for
// a single frame arrive in transition order; frames are not ordered relative
// to each other. Implementations must not block for long.
type Observer interface {
	FrameUpdated(ctx context.Context, frame models.Frame)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, frame models.Frame)

func (f ObserverFunc) FrameUpdated(ctx context.Context, frame models.Frame) { f(ctx, frame) }
