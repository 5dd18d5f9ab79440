// Package models contains shared data models used across the bovinoia codebase.
package models

import "context"

// Classifier is the opaque image-classification model. Input is a preprocessed
// image tensor; output is a probability vector aligned with Labels().
// Callers depend on this interface, never on a concrete backend.
type Classifier interface {
	// Classify runs one inference. len(result) must equal len(Labels()).
	Classify(ctx context.Context, input []float32) ([]float32, error)
	// Labels returns the breed label for every output index.
	Labels() []string
	// Layout is the tensor layout expected by Classify: "NHWC" or "NCHW".
	Layout() string
	// Name returns the backend identifier (e.g., "onnx", "demo").
	Name() string
	Close() error
}

const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)
