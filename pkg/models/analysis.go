package models

import (
	"math"
	"time"
)

const (
	DetectionDetected    = "detected"
	DetectionNotDetected = "not_detected"
	DetectionUncertain   = "uncertain"
)

const kgToLbs = 2.20462

// Classification is what the predictor derives from a single image.
type Classification struct {
	Breed            string   `json:"breed"`
	Confidence       float64  `json:"confidence"`
	Characteristics  []string `json:"characteristics"`
	EstimatedWeight  float64  `json:"estimated_weight"`
	DetectionOutcome string   `json:"detection_outcome"`
}

// Analysis is the completed result attached to a frame.
type Analysis struct {
	Classification
	EstimatedWeightLbs float64   `json:"estimated_weight_lbs"`
	PrecisionScore     float64   `json:"precision_score"`
	ProcessingTimeMS   int64     `json:"processing_time_ms"`
	Timestamp          time.Time `json:"timestamp"`
}

// NewAnalysis builds an Analysis from a classification and the wall-clock
// duration of the predictor call.
func NewAnalysis(c Classification, took time.Duration, at time.Time) *Analysis {
	return &Analysis{
		Classification:     c,
		EstimatedWeightLbs: roundTenth(c.EstimatedWeight * kgToLbs),
		PrecisionScore:     c.Confidence,
		ProcessingTimeMS:   took.Milliseconds(),
		Timestamp:          at,
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
