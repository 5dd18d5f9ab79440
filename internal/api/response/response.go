// Package response writes JSON bodies. Single resources are written bare,
// lists carry pagination meta, and errors use a stable error envelope.
package response

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
)

// ErrorBody is the payload under the "error" key of every failure response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type PaginationMeta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// NewPaginationMeta computes HasNext from the page window and total.
func NewPaginationMeta(page, limit, total int) PaginationMeta {
	return PaginationMeta{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: page*limit < total,
	}
}

// JSON writes v as a bare 200 body.
func JSON(w http.ResponseWriter, v any) {
	write(w, http.StatusOK, v)
}

// Collection writes one page of items as {"data": [...], "meta": {...}}.
func Collection(w http.ResponseWriter, items any, meta PaginationMeta) {
	write(w, http.StatusOK, struct {
		Data any            `json:"data"`
		Meta PaginationMeta `json:"meta"`
	}{items, meta})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, struct {
		Error ErrorBody `json:"error"`
	}{ErrorBody{Code: code, Message: message, Details: details}})
}

// RetryLater is Error plus a Retry-After header, rounded up to whole seconds
// with a floor of one.
func RetryLater(w http.ResponseWriter, status int, after time.Duration, code, message string, details any) {
	secs := max(int(math.Ceil(after.Seconds())), 1)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	Error(w, status, code, message, details)
}

func write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent.
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "status", status, "error", err)
	}
}
