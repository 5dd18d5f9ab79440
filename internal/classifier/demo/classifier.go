// Package demo provides a model-free classifier that produces plausible,
// randomly weighted predictions. It lets the server run without ONNX
// Runtime installed.
package demo

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

const (
	minDominant = 0.70
	maxDominant = 0.95
)

// Classifier picks one label at random and assigns it a dominant probability.
type Classifier struct {
	mu     sync.Mutex
	rng    *rand.Rand
	labels []string
}

// New returns a demo classifier over labels. A nil rng is seeded from the clock.
func New(labels []string, rng *rand.Rand) *Classifier {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Classifier{
		rng:    rng,
		labels: append([]string(nil), labels...),
	}
}

func (c *Classifier) Classify(ctx context.Context, _ []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.labels) == 0 {
		return nil, errors.New("demo classifier has no labels")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	probs := make([]float32, len(c.labels))
	if len(probs) == 1 {
		probs[0] = 1
		return probs, nil
	}

	dominant := c.rng.IntN(len(probs))
	top := minDominant + c.rng.Float64()*(maxDominant-minDominant)

	var rest float64
	weights := make([]float64, len(probs))
	for i := range weights {
		if i == dominant {
			continue
		}
		weights[i] = c.rng.Float64() + 1e-6
		rest += weights[i]
	}

	for i := range probs {
		if i == dominant {
			probs[i] = float32(top)
			continue
		}
		probs[i] = float32(weights[i] / rest * (1 - top))
	}
	return probs, nil
}

func (c *Classifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

func (c *Classifier) Layout() string { return models.LayoutNHWC }

func (c *Classifier) Name() string { return "demo" }

func (c *Classifier) Close() error { return nil }

var _ models.Classifier = (*Classifier)(nil)
