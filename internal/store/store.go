package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the archive of finished frame analyses. The live queue stays in
// memory; the store only ever sees terminal frames.
type Store interface {
	Ping(ctx context.Context) error

	SaveFrame(ctx context.Context, frame models.Frame) error
	GetFrame(ctx context.Context, id uuid.UUID) (*models.Frame, error)
	ListFrames(ctx context.Context, filter FrameFilter) ([]*models.Frame, int, error)
}

type FrameFilter struct {
	Breed  string
	Status string
	Since  time.Time
	Page   int
	Limit  int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Normalized returns the filter with Page at least 1 and Limit clamped to
// [1, 100], defaulting to 20.
func (f FrameFilter) Normalized() FrameFilter {
	if f.Limit <= 0 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return f
}
