package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/bovinoia/internal/api/middleware"
	"github.com/kiranshivaraju/bovinoia/internal/cache"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Cache ---

type mockCache struct {
	counter int64
	lastKey string
	err     error
}

func (m *mockCache) Ping(_ context.Context) error {
	return nil
}
func (m *mockCache) SetFrame(_ context.Context, _ models.Frame, _ time.Duration) error {
	return nil
}
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.lastKey = key
	m.counter++
	return m.counter, m.err
}
func (m *mockCache) Close() error {
	return nil
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func withClientID(req *http.Request, id string) *http.Request {
	return req.WithContext(mw.SetClientID(req.Context(), id))
}

// ========================================
// Client Identity Middleware Tests
// ========================================

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"header wins", "phone-42", "client:phone-42"},
		{"missing header falls back to ip", "", "ip:192.0.2.1"},
		{"invalid characters fall back to ip", "bad id!", "ip:192.0.2.1"},
		{"overlong header falls back to ip", strings.Repeat("a", 65), "ip:192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got, ip string
			inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = mw.GetClientID(r)
				ip, _ = mw.GetClientIP(r)
			})

			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = "192.0.2.1:5555"
			if tt.header != "" {
				req.Header.Set(mw.ClientIDHeader, tt.header)
			}
			mw.ClientIdentity(inner).ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, "192.0.2.1", ip)
		})
	}
}

func TestGetClientID_Missing(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	_, ok := mw.GetClientID(req)
	assert.False(t, ok)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{counter: 0}
	rl := mw.NewRateLimit(mc, 60)

	handler := rl.Limit(okHandler())

	req := withClientID(httptest.NewRequest("POST", "/submit-frame", nil), "client:phone-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.True(t, strings.HasPrefix(mc.lastKey, "ratelimit:client:phone-1:"), mc.lastKey)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60} // next IncrWithExpiry will return 61
	rl := mw.NewRateLimit(mc, 60)

	handler := rl.Limit(okHandler())

	req := withClientID(httptest.NewRequest("POST", "/submit-frame", nil), "ip:10.0.0.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_WindowAlignment(t *testing.T) {
	mc := &mockCache{counter: 5}
	rl := mw.NewRateLimit(mc, 5)
	mw.SetClock(rl, func() time.Time { return time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC) })

	req := withClientID(httptest.NewRequest("POST", "/analyze-frame", nil), "ip:10.0.0.1")
	w := httptest.NewRecorder()
	rl.Limit(okHandler()).ServeHTTP(w, req)

	windowStart := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, cache.RateLimitKey("ip:10.0.0.1", windowStart), mc.lastKey)
	assert.Equal(t, "15", w.Header().Get("Retry-After"))
	assert.Equal(t, strconv.FormatInt(windowStart.Add(time.Minute).Unix(), 10), w.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimit_CacheErrorFailsOpen(t *testing.T) {
	mc := &mockCache{err: errors.New("redis down")}
	rl := mw.NewRateLimit(mc, 1)

	handler := rl.Limit(okHandler())

	req := withClientID(httptest.NewRequest("POST", "/submit-frame", nil), "ip:10.0.0.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_NoClientID_PassThrough(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60)

	handler := rl.Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, mc.counter)
}

func TestRateLimit_DefaultLimit(t *testing.T) {
	rl := mw.NewRateLimit(&mockCache{}, 0)

	req := withClientID(httptest.NewRequest("GET", "/test", nil), "ip:10.0.0.1")
	w := httptest.NewRecorder()
	rl.Limit(okHandler()).ServeHTTP(w, req)

	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
}

// keyedCache counts per key, like Redis.
type keyedCache struct {
	mockCache
	counts map[string]int64
}

func (k *keyedCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	k.counts[key]++
	return k.counts[key], nil
}

func TestRateLimit_RotatingClientIDsShareHostBudget(t *testing.T) {
	kc := &keyedCache{counts: map[string]int64{}}
	rl := mw.NewRateLimit(kc, 1)
	h := mw.ClientIdentity(rl.Limit(okHandler()))

	hostLimit := 1 * mw.SharedIPFactor
	for i := range hostLimit {
		req := httptest.NewRequest("POST", "/submit-frame", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set(mw.ClientIDHeader, "device-"+strconv.Itoa(i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
	}

	req := httptest.NewRequest("POST", "/submit-frame", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	req.Header.Set(mw.ClientIDHeader, "device-fresh")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	details := errBody(t, w)["details"].(map[string]any)
	assert.Equal(t, "ip", details["scope"])
	assert.Equal(t, float64(hostLimit), details["limit"])

	// Another host is unaffected.
	req = httptest.NewRequest("POST", "/submit-frame", nil)
	req.RemoteAddr = "203.0.113.9:4000"
	req.Header.Set(mw.ClientIDHeader, "device-fresh")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_AnonymousRequestsCountedOnce(t *testing.T) {
	kc := &keyedCache{counts: map[string]int64{}}
	rl := mw.NewRateLimit(kc, 5)
	h := mw.ClientIdentity(rl.Limit(okHandler()))

	req := httptest.NewRequest("POST", "/submit-frame", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Len(t, kc.counts, 1)
	for key, n := range kc.counts {
		assert.True(t, strings.HasPrefix(key, "ratelimit:ip:198.51.100.7:"), key)
		assert.Equal(t, int64(1), n)
	}
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_WithRequestID(t *testing.T) {
	handler := chimw.RequestID(mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}

func TestLogger_HijackUnsupported(t *testing.T) {
	var hijackErr error
	handler := mw.Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h, ok := w.(http.Hijacker)
		require.True(t, ok)
		_, _, hijackErr = h.Hijack()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ws", nil))
	assert.Error(t, hijackErr)
}

func TestRecovery_AbortHandlerRepanics(t *testing.T) {
	handler := mw.Recovery(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))
	})
}
