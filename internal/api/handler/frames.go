package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/bovinoia/internal/api/response"
	"github.com/kiranshivaraju/bovinoia/internal/queue"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// uploadFields are the multipart field names accepted for the image, in order.
var uploadFields = []string{"file", "image"}

// FrameQueue is the part of the analysis queue the frame handlers use.
type FrameQueue interface {
	Submit(ctx context.Context, payload []byte, contentType string) (models.Frame, error)
	Analyze(ctx context.Context, payload []byte, contentType string) (models.Frame, error)
	Get(id uuid.UUID) (models.Frame, error)
	Stats() models.QueueStats
}

// NewSubmitFrameHandler returns an http.HandlerFunc for POST /submit-frame.
func NewSubmitFrameHandler(q FrameQueue, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, contentType, ok := readUpload(w, r, maxUploadBytes)
		if !ok {
			return
		}

		frame, err := q.Submit(r.Context(), payload, contentType)
		if err != nil {
			writeQueueError(w, err)
			return
		}

		slog.Info("frame submitted", "frame_id", frame.ID, "bytes", len(payload))
		response.JSON(w, frame)
	}
}

// NewCheckStatusHandler returns an http.HandlerFunc for GET /check-status/{frame_id}.
func NewCheckStatusHandler(q FrameQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "frame_id"))
		if err != nil {
			// A malformed id can never have been issued.
			response.Error(w, http.StatusNotFound, "FRAME_NOT_FOUND", "Frame not found", nil)
			return
		}

		frame, err := q.Get(id)
		if err != nil {
			writeQueueError(w, err)
			return
		}

		response.JSON(w, frame)
	}
}

// NewAnalyzeFrameHandler returns an http.HandlerFunc for POST /analyze-frame.
// It runs the analysis on the request and answers with the result itself.
func NewAnalyzeFrameHandler(q FrameQueue, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, contentType, ok := readUpload(w, r, maxUploadBytes)
		if !ok {
			return
		}

		frame, err := q.Analyze(r.Context(), payload, contentType)
		if err != nil {
			writeQueueError(w, err)
			return
		}

		if frame.Status != models.FrameStatusCompleted || frame.Result == nil {
			code, message := models.ErrorCodeInternal, "Analysis failed"
			if frame.ErrorCode != nil {
				code = *frame.ErrorCode
			}
			if frame.Error != nil {
				message = *frame.Error
			}
			response.Error(w, analysisFailureStatus(code), code, message,
				map[string]string{"frame_id": frame.ID.String()})
			return
		}

		response.JSON(w, frame.Result)
	}
}

func analysisFailureStatus(code string) int {
	switch code {
	case models.ErrorCodeDecode:
		return http.StatusUnprocessableEntity
	case models.ErrorCodePredictorNotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrInvalidPayload):
		response.Error(w, http.StatusBadRequest, "INVALID_PAYLOAD", err.Error(), nil)
	case errors.Is(err, queue.ErrNotFound):
		response.Error(w, http.StatusNotFound, "FRAME_NOT_FOUND", "Frame not found", nil)
	case errors.Is(err, queue.ErrQueueFull):
		response.RetryLater(w, http.StatusServiceUnavailable, time.Second, "QUEUE_FULL",
			"Analysis queue is full, retry shortly", nil)
	case errors.Is(err, queue.ErrClosed):
		response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
			"Server is shutting down", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		response.Error(w, http.StatusServiceUnavailable, "REQUEST_CANCELLED",
			"Request cancelled before analysis finished", nil)
	default:
		slog.Error("frame request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// readUpload extracts the image bytes and their declared content type. It
// accepts a multipart form with a "file" or "image" field, or a raw image
// body. On failure it writes the error response and returns ok=false.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"Content-Type must be multipart/form-data or an image type", nil)
		return nil, "", false
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			writeReadError(w, err)
			return nil, "", false
		}
		return payload, mediaType, true
	}

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeReadError(w, err)
		return nil, "", false
	}
	defer r.MultipartForm.RemoveAll()

	for _, field := range uploadFields {
		file, header, err := r.FormFile(field)
		if err != nil {
			continue
		}
		payload, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeReadError(w, err)
			return nil, "", false
		}
		return payload, header.Header.Get("Content-Type"), true
	}

	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
		"multipart form must contain a \"file\" field", nil)
	return nil, "", false
}

func writeReadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			"Upload exceeds the maximum allowed size", map[string]int64{"max_bytes": tooLarge.Limit})
		return
	}
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Could not read upload", nil)
}
