package predictor

import "errors"

var (
	ErrDecode    = errors.New("image could not be decoded")
	ErrNotReady  = errors.New("predictor not ready")
	ErrInference = errors.New("inference failed")
)
