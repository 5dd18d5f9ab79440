package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/bovinoia/internal/api/response"
)

// Streamer serves a realtime stream of frame updates.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, filter uuid.UUID)
}

// NewWebSocketHandler returns an http.HandlerFunc for GET /ws. An optional
// frame_id query parameter limits the stream to one frame.
func NewWebSocketHandler(s Streamer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := uuid.Nil
		if raw := r.URL.Query().Get("frame_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "frame_id must be a valid UUID", nil)
				return
			}
			filter = id
		}
		s.Serve(w, r, filter)
	}
}
