package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mw "github.com/kiranshivaraju/bovinoia/internal/api/middleware"
	"github.com/kiranshivaraju/bovinoia/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	// RateLimit is optional; submissions are unlimited without it.
	RateLimit      *mw.RateLimit
	AllowedOrigins []string

	RootHandler        http.HandlerFunc
	HealthHandler      http.HandlerFunc
	StatsHandler       http.HandlerFunc
	SubmitFrameHandler http.HandlerFunc
	CheckStatusHandler http.HandlerFunc
	AnalyzeHandler     http.HandlerFunc
	ListHistory        http.HandlerFunc
	GetHistory         http.HandlerFunc
	WebSocketHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(cors.Handler(corsOptions(deps.AllowedOrigins)))
	r.Use(mw.ClientIdentity)

	r.Get("/", orNotImplemented(deps.RootHandler))
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Get("/stats", orNotImplemented(deps.StatsHandler))
	r.Get("/check-status/{frame_id}", orNotImplemented(deps.CheckStatusHandler))
	r.Get("/history", orNotImplemented(deps.ListHistory))
	r.Get("/history/{frame_id}", orNotImplemented(deps.GetHistory))
	r.Get("/ws", orNotImplemented(deps.WebSocketHandler))

	// Routes that run inference
	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/submit-frame", orNotImplemented(deps.SubmitFrameHandler))
		r.Post("/analyze-frame", orNotImplemented(deps.AnalyzeHandler))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", mw.ClientIDHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
