package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/google-pay/storefront/internal/platform/requestctx"
)

const (
	maxCodeLen    = 64
	maxMessageLen = 400
	maxIDLen      = 64
)

// Error is the body every storefront endpoint answers with when a request fails. Retryable
// tells the client the same request may succeed later without changes.
type Error struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// NewError builds an error body. A zero status means 500; 502, 503 and 504 are retryable.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:      oneLine(code, maxCodeLen),
		Message:   oneLine(message, maxMessageLen),
		Status:    status,
		Retryable: retryableStatus(status),
	}
}

// WriteError stamps the request and trace ids onto err and writes it as JSON.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	if err.RequestID == "" {
		err.RequestID = oneLine(middleware.GetReqID(ctx), maxIDLen)
	}
	if err.TraceID == "" {
		err.TraceID = oneLine(requestctx.TraceID(ctx), maxIDLen)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(err)
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// oneLine folds control characters and runs of whitespace into single spaces and caps the result
// at limit runes.
func oneLine(value string, limit int) string {
	value = strings.Join(strings.FieldsFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
	if utf8.RuneCountInString(value) > limit {
		value = string([]rune(value)[:limit])
	}
	return value
}
