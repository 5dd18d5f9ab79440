// Package onnx runs an exported breed classifier through ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrClosed is returned by Classify after Close.
var ErrClosed = errors.New("onnx classifier is closed")

// Options locate the model artifacts on disk.
type Options struct {
	ModelPath    string
	MetadataPath string
	LabelsPath   string
	LibraryPath  string
	ImageSize    int
}

// Classifier owns one ONNX session with pre-allocated input and output
// tensors. Those tensors are shared state, so Classify calls are serialized.
type Classifier struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	metadata     Metadata
	labels       []string
}

// Load reads metadata and labels, initializes the ONNX environment and
// creates the inference session.
func Load(opts Options) (*Classifier, error) {
	md, err := loadMetadata(opts.MetadataPath, opts.ImageSize)
	if err != nil {
		return nil, err
	}

	labels := md.Classes
	if opts.LabelsPath != "" {
		if labels, err = loadLabels(opts.LabelsPath); err != nil {
			return nil, err
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no class labels: set LABELS_PATH or metadata classes")
	}
	if len(md.OutputShape) == 0 {
		md.OutputShape = []int64{1, int64(len(labels))}
	}
	if elements(md.OutputShape) != int64(len(labels)) {
		return nil, fmt.Errorf("output shape %v does not match %d labels", md.OutputShape, len(labels))
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{md.InputName}, []string{md.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Classifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		metadata:     md,
		labels:       labels,
	}, nil
}

func (c *Classifier) Classify(ctx context.Context, input []float32) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Waiting on the gate can outlive the caller's deadline.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.session == nil {
		return nil, ErrClosed
	}
	data := c.inputTensor.GetData()
	if len(input) != len(data) {
		return nil, fmt.Errorf("expected %d input values, got %d", len(data), len(input))
	}

	copy(data, input)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := make([]float32, len(c.labels))
	copy(out, c.outputTensor.GetData())
	if c.metadata.Softmax {
		softmax(out)
	}
	return out, nil
}

func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

func (c *Classifier) Layout() string { return c.metadata.Layout }

func (c *Classifier) Name() string { return "onnx" }

func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inputTensor != nil {
		c.inputTensor.Destroy()
		c.inputTensor = nil
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
		c.outputTensor = nil
	}
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
	return ort.DestroyEnvironment()
}

func softmax(v []float32) {
	if len(v) == 0 {
		return
	}
	maxVal := v[0]
	for _, x := range v[1:] {
		if x > maxVal {
			maxVal = x
		}
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxVal))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}

var _ models.Classifier = (*Classifier)(nil)
