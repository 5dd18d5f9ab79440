package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/bovinoia/internal/api/response"
	"github.com/kiranshivaraju/bovinoia/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateLimitWindow          = time.Minute

	// SharedIPFactor scales the per-client limit into the budget shared by
	// every X-Client-ID seen from one remote address.
	SharedIPFactor = 10
)

// RateLimit counts requests per client in fixed one-minute windows aligned to
// the wall clock. Counters live in the shared cache so every replica sees
// the same budget.
//
// Requests that name themselves with X-Client-ID are also counted against
// their remote address, capped at SharedIPFactor times the per-client limit,
// so rotating the header cannot lift the ceiling for a single host.
type RateLimit struct {
	cache cache.Cache
	limit int
	now   func() time.Time
}

func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, limit: requestsPerMin, now: time.Now}
}

// Limit rejects a client's requests with 429 RATE_LIMIT_EXCEEDED once the
// current window's budget is spent. Requests without a client identity pass
// through, and so does everything while the cache is unreachable.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID, ok := GetClientID(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		windowStart := now.Truncate(rateLimitWindow)
		reset := windowStart.Add(rateLimitWindow)

		count, err := rl.incr(r.Context(), clientID, windowStart)
		if err != nil {
			slog.Warn("rate limit unavailable, allowing request",
				"client_id", clientID, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.limit-int(count), 0)
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.limit) {
			rl.reject(w, now, reset, clientID, "client", rl.limit, count)
			return
		}

		if ip, ok := GetClientIP(r); ok && clientID != "ip:"+ip {
			hostID := "ip:" + ip
			hostCount, err := rl.incr(r.Context(), hostID, windowStart)
			if err != nil {
				slog.Warn("rate limit unavailable, allowing request",
					"client_id", hostID, "error", err)
			} else if hostLimit := rl.limit * SharedIPFactor; hostCount > int64(hostLimit) {
				h.Set("X-RateLimit-Remaining", "0")
				rl.reject(w, now, reset, hostID, "ip", hostLimit, hostCount)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimit) incr(ctx context.Context, id string, windowStart time.Time) (int64, error) {
	// Keys outlive their window by one full window to tolerate replica clock skew.
	return rl.cache.IncrWithExpiry(ctx, cache.RateLimitKey(id, windowStart), 2*rateLimitWindow)
}

func (rl *RateLimit) reject(w http.ResponseWriter, now, reset time.Time, id, scope string, limit int, count int64) {
	slog.Debug("rate limit exceeded", "client_id", id, "scope", scope, "count", count)
	response.RetryLater(w, http.StatusTooManyRequests, reset.Sub(now), "RATE_LIMIT_EXCEEDED",
		"Too many requests, retry after the current window resets",
		map[string]any{
			"scope":          scope,
			"limit":          limit,
			"window_seconds": int(rateLimitWindow.Seconds()),
		})
}
