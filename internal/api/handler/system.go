package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/kiranshivaraju/bovinoia/internal/api/response"
	"github.com/kiranshivaraju/bovinoia/internal/predictor"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
	"github.com/shirou/gopsutil/v4/process"
)

const pingTimeout = 2 * time.Second

// ModelInfo reports predictor metadata.
type ModelInfo interface {
	Info() predictor.Info
}

// ClientCounter reports the number of connected realtime clients.
type ClientCounter interface {
	Clients() int
}

// Pinger is an optional backing service checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MemorySampler returns the resident memory of the process in megabytes.
type MemorySampler func() (float64, error)

type healthResponse struct {
	Status           string            `json:"status"`
	Timestamp        time.Time         `json:"timestamp"`
	QueueSize        int               `json:"queue_size"`
	ActiveAnalyses   int               `json:"active_analyses"`
	ModelReady       bool              `json:"model_ready"`
	WebsocketClients int               `json:"websocket_clients"`
	Services         map[string]string `json:"services,omitempty"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /health. A failed ping
// of an optional service reports status "degraded" but still answers 200.
func NewHealthHandler(q FrameQueue, m ModelInfo, hub ClientCounter, services map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := q.Stats()
		resp := healthResponse{
			Status:         "healthy",
			Timestamp:      time.Now().UTC(),
			QueueSize:      stats.Total,
			ActiveAnalyses: stats.Active(),
			ModelReady:     m.Info().ModelReady,
		}
		if hub != nil {
			resp.WebsocketClients = hub.Clients()
		}

		if len(services) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
			defer cancel()

			resp.Services = make(map[string]string, len(services))
			for name, svc := range services {
				if err := svc.Ping(ctx); err != nil {
					slog.Warn("health check failed", "service", name, "error", err)
					resp.Services[name] = "degraded"
					resp.Status = "degraded"
					continue
				}
				resp.Services[name] = "ok"
			}
		}

		response.JSON(w, resp)
	}
}

type statsResponse struct {
	models.QueueStats
	Model         predictor.Info `json:"model"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	MemoryUsageMB *float64       `json:"memory_usage_mb"`
}

// NewStatsHandler returns an http.HandlerFunc for GET /stats.
func NewStatsHandler(q FrameQueue, m ModelInfo, memory MemorySampler) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		info := m.Info()
		resp := statsResponse{
			QueueStats:    q.Stats(),
			Model:         info,
			UptimeSeconds: info.UptimeSeconds,
		}
		if memory != nil {
			mb, err := memory()
			if err != nil {
				slog.Warn("failed to sample process memory", "error", err)
			} else {
				resp.MemoryUsageMB = &mb
			}
		}
		response.JSON(w, resp)
	}
}

// ProcessMemoryMB samples the resident set size of the current process.
func ProcessMemoryMB() (float64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return math.Round(float64(mem.RSS)/(1<<20)*100) / 100, nil
}

// Endpoints is the directory served by GET /.
var Endpoints = map[string]string{
	"submit_frame":  "POST /submit-frame",
	"check_status":  "GET /check-status/{frame_id}",
	"analyze_frame": "POST /analyze-frame",
	"health":        "GET /health",
	"stats":         "GET /stats",
	"history":       "GET /history",
	"websocket":     "GET /ws",
}

// NewRootHandler returns an http.HandlerFunc for GET /.
func NewRootHandler(version string) http.HandlerFunc {
	features := []string{
		"asynchronous frame analysis",
		"breed identification",
		"weight estimation",
		"bounded processing queue",
		"realtime status over websocket",
	}
	return func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, map[string]any{
			"name":      "bovinoia",
			"version":   version,
			"status":    "running",
			"endpoints": Endpoints,
			"features":  features,
		})
	}
}
