package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/bovinoia/internal/classifier/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var labels = []string{"Angus", "Hereford", "Jersey"}

func TestNewMockClassifier(t *testing.T) {
	c := mock.NewMockClassifier(labels, 1, 0.8)

	probs, err := c.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "mock", c.Name())
	assert.InDelta(t, 0.8, probs[1], 1e-6)
	assert.InDelta(t, 0.1, probs[0], 1e-6)
	assert.InDelta(t, 0.1, probs[2], 1e-6)
}

func TestNewFailingClassifier(t *testing.T) {
	want := errors.New("boom")
	c := mock.NewFailingClassifier(labels, want)

	_, err := c.Classify(context.Background(), nil)
	assert.ErrorIs(t, err, want)
	assert.Equal(t, "mock-failing", c.Name())
}

func TestNewFailingClassifier_DefaultError(t *testing.T) {
	c := mock.NewFailingClassifier(labels, nil)

	_, err := c.Classify(context.Background(), nil)
	assert.ErrorIs(t, err, mock.ErrClassifierFailed)
}

func TestNewBlockingClassifier_Release(t *testing.T) {
	release := make(chan struct{})
	c := mock.NewBlockingClassifier(labels, release)

	done := make(chan error, 1)
	go func() {
		_, err := c.Classify(context.Background(), nil)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("classify returned before release")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("classify did not return after release")
	}
}

func TestNewBlockingClassifier_ContextCancelled(t *testing.T) {
	c := mock.NewBlockingClassifier(labels, make(chan struct{}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Classify(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
