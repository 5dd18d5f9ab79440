package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/bovinoia/internal/api/response"
	"github.com/kiranshivaraju/bovinoia/internal/store"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// History reads archived analyses.
type History interface {
	GetFrame(ctx context.Context, id uuid.UUID) (*models.Frame, error)
	ListFrames(ctx context.Context, filter store.FrameFilter) ([]*models.Frame, int, error)
}

// NewListHistoryHandler returns an http.HandlerFunc for GET /history.
// A nil History means the archive is not configured.
func NewListHistoryHandler(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			archiveDisabled(w)
			return
		}

		filter, details := parseHistoryFilter(r)
		if len(details) > 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid query parameters", details)
			return
		}
		filter = filter.Normalized()

		frames, total, err := h.ListFrames(r.Context(), filter)
		if err != nil {
			slog.Error("failed to list history", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list analyses", nil)
			return
		}

		response.Collection(w, frames, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}

// NewGetHistoryHandler returns an http.HandlerFunc for GET /history/{frame_id}.
func NewGetHistoryHandler(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			archiveDisabled(w)
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "frame_id"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "frame_id must be a valid UUID", nil)
			return
		}

		frame, err := h.GetFrame(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "FRAME_NOT_FOUND", "Analysis not found", nil)
				return
			}
			slog.Error("failed to get history entry", "frame_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to get analysis", nil)
			return
		}

		response.JSON(w, frame)
	}
}

func archiveDisabled(w http.ResponseWriter) {
	response.Error(w, http.StatusServiceUnavailable, "ARCHIVE_DISABLED",
		"Analysis history is not configured", nil)
}

func parseHistoryFilter(r *http.Request) (store.FrameFilter, map[string][]string) {
	q := r.URL.Query()
	details := map[string][]string{}
	filter := store.FrameFilter{Breed: q.Get("breed")}

	if status := q.Get("status"); status != "" {
		if !models.IsTerminalStatus(status) {
			details["status"] = append(details["status"], "status must be completed or failed")
		}
		filter.Status = status
	}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			details["since"] = append(details["since"], "since must be a valid RFC3339 timestamp")
		}
		filter.Since = t
	}
	if page := q.Get("page"); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			details["page"] = append(details["page"], "page must be a positive integer")
		}
		filter.Page = n
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			details["limit"] = append(details["limit"], "limit must be a positive integer")
		}
		filter.Limit = n
	}

	return filter, details
}
