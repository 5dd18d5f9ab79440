package predictor

import (
	"math"

	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

const (
	confidenceFactor = 100.0
	brightnessFactor = 40.0
	contrastFactor   = 40.0
	jitterRange      = 50.0

	detectedThreshold    = 0.5
	notDetectedThreshold = 0.2
)

// estimateWeight adjusts a breed's average weight by confidence, image
// statistics and a random jitter in [-1, 1), rounds it to 0.1 kg and clamps
// it to [lo, hi]. Clamping last keeps fractional bounds exact.
func estimateWeight(avg, confidence float64, stats ImageStats, jitter, lo, hi float64) float64 {
	w := avg +
		(confidence-0.5)*confidenceFactor +
		jitter*jitterRange +
		(stats.Brightness-0.5)*brightnessFactor +
		(stats.Contrast-0.25)*contrastFactor

	w = math.Round(w*10) / 10
	return math.Max(lo, math.Min(hi, w))
}

func detectionOutcome(confidence float64) string {
	switch {
	case confidence >= detectedThreshold:
		return models.DetectionDetected
	case confidence < notDetectedThreshold:
		return models.DetectionNotDetected
	default:
		return models.DetectionUncertain
	}
}
