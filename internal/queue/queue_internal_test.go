package queue

import (
	"context"
	"testing"
	"time"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictor struct{}

func (stubPredictor) Predict(context.Context, []byte) (*models.Analysis, error) {
	return models.NewAnalysis(models.Classification{Breed: "Angus"}, 0, time.Now()), nil
}

func TestPayloadReleasedOnceTerminal(t *testing.T) {
	q := New(stubPredictor{}, Options{})

	frame, err := q.Analyze(context.Background(), []byte("\x89PNG\r\n\x1a\n"), "image/png")
	require.NoError(t, err)
	require.True(t, frame.IsTerminal())

	q.mu.RLock()
	defer q.mu.RUnlock()
	assert.Nil(t, q.entries[frame.ID].payload)
}

func TestPayloadRetainedWhilePending(t *testing.T) {
	q := New(stubPredictor{}, Options{})
	payload := []byte("\x89PNG\r\n\x1a\n")

	frame, err := q.Submit(context.Background(), payload, "")
	require.NoError(t, err)

	q.mu.RLock()
	defer q.mu.RUnlock()
	assert.Equal(t, payload, q.entries[frame.ID].payload)
}

func TestValidatePayload(t *testing.T) {
	assert.NoError(t, validatePayload([]byte{0xFF, 0xD8, 0xFF, 0xE0}, ""))
	assert.NoError(t, validatePayload([]byte("x"), "image/webp"))
	assert.NoError(t, validatePayload([]byte("x"), "IMAGE/JPEG"))
	assert.ErrorIs(t, validatePayload([]byte("x"), "video/mp4"), ErrInvalidPayload)
}
