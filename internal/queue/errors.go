package queue

import "errors"

var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrNotFound       = errors.New("frame not found")
	ErrQueueFull      = errors.New("analysis queue is full")
	ErrClosed         = errors.New("analysis queue is closed")
)
