package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	FrameStatusPending    = "pending"
	FrameStatusProcessing = "processing"
	FrameStatusCompleted  = "completed"
	FrameStatusFailed     = "failed"
)

// Error codes recorded on failed frames.
const (
	ErrorCodeDecode            = "DECODE_ERROR"
	ErrorCodePredictorNotReady = "PREDICTOR_NOT_READY"
	ErrorCodeInference         = "INFERENCE_ERROR"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)

// Frame is one submitted image and its analysis state. The client submits via
// POST /submit-frame and polls GET /check-status/{frame_id} until status is
// completed or failed.
//
// Result is set only when Status is completed; Error and ErrorCode only when
// Status is failed.
type Frame struct {
	ID        uuid.UUID `json:"frame_id"`
	Status    string    `json:"status"`
	Result    *Analysis `json:"result,omitempty"`
	Error     *string   `json:"error,omitempty"`
	ErrorCode *string   `json:"error_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the frame reached completed or failed.
func (f Frame) IsTerminal() bool {
	return IsTerminalStatus(f.Status)
}

func IsTerminalStatus(status string) bool {
	return status == FrameStatusCompleted || status == FrameStatusFailed
}

// QueueStats is a point-in-time count of frames by status.
type QueueStats struct {
	Total      int `json:"total_frames"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Active is the number of frames not yet in a terminal state.
func (s QueueStats) Active() int {
	return s.Pending + s.Processing
}
