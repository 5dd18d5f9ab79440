package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func FrameKey(frameID uuid.UUID) string {
	return fmt.Sprintf("frame:%s", frameID)
}

// RateLimitKey names the counter for one client in the window starting at
// windowStart. Each window gets its own key so counts never carry over.
func RateLimitKey(clientID string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", clientID, windowStart.Unix())
}
