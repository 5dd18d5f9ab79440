package middleware

import "time"

// SetClock replaces the rate limiter's time source.
func SetClock(rl *RateLimit, now func() time.Time) {
	rl.now = now
}
