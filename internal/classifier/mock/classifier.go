package mock

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// ErrClassifierFailed is returned by NewFailingClassifier when no error is given.
var ErrClassifierFailed = errors.New("mock classifier failed")

// MockClassifier satisfies models.Classifier for testing.
type MockClassifier struct {
	Name_        string
	Labels_      []string
	Layout_      string
	ClassifyFunc func(ctx context.Context, input []float32) ([]float32, error)
	CloseFunc    func() error
}

func (m *MockClassifier) Name() string { return m.Name_ }

func (m *MockClassifier) Labels() []string { return append([]string(nil), m.Labels_...) }

func (m *MockClassifier) Layout() string {
	if m.Layout_ == "" {
		return models.LayoutNHWC
	}
	return m.Layout_
}

func (m *MockClassifier) Classify(ctx context.Context, input []float32) ([]float32, error) {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, input)
	}
	return make([]float32, len(m.Labels_)), nil
}

func (m *MockClassifier) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// NewMockClassifier returns a MockClassifier that always predicts labels[index]
// with the given probability, spreading the remainder over the other labels.
func NewMockClassifier(labels []string, index int, prob float32) *MockClassifier {
	return &MockClassifier{
		Name_:   "mock",
		Labels_: labels,
		ClassifyFunc: func(_ context.Context, _ []float32) ([]float32, error) {
			out := make([]float32, len(labels))
			if len(labels) == 1 {
				out[0] = prob
				return out, nil
			}
			rest := (1 - prob) / float32(len(labels)-1)
			for i := range out {
				out[i] = rest
			}
			out[index] = prob
			return out, nil
		},
	}
}

// NewFailingClassifier returns a MockClassifier whose Classify always returns err.
func NewFailingClassifier(labels []string, err error) *MockClassifier {
	if err == nil {
		err = ErrClassifierFailed
	}
	return &MockClassifier{
		Name_:   "mock-failing",
		Labels_: labels,
		ClassifyFunc: func(_ context.Context, _ []float32) ([]float32, error) {
			return nil, err
		},
	}
}

// NewBlockingClassifier returns a MockClassifier that blocks until release is
// closed or the context is cancelled.
func NewBlockingClassifier(labels []string, release <-chan struct{}) *MockClassifier {
	inner := NewMockClassifier(labels, 0, 0.9)
	return &MockClassifier{
		Name_:   "mock-blocking",
		Labels_: labels,
		ClassifyFunc: func(ctx context.Context, input []float32) ([]float32, error) {
			select {
			case <-release:
				return inner.Classify(ctx, input)
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

// Compile-time check that MockClassifier implements Classifier.
var _ models.Classifier = (*MockClassifier)(nil)
