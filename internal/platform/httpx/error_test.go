package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google-pay/storefront/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "trace-1"})
	rec := httptest.NewRecorder()

	WriteError(ctx, rec, NewError("invalid_quantity", "quantity\nmust be  positive", http.StatusBadRequest))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_quantity", body["error"])
	assert.Equal(t, "quantity must be positive", body["message"])
	assert.Equal(t, "trace-1", body["trace_id"])
	assert.EqualValues(t, http.StatusBadRequest, body["status"])
	assert.NotContains(t, body, "retryable")
	assert.NotContains(t, body, "request_id")
}

func TestNewErrorRetryableStatuses(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, NewError("boom", "failed", 0).Status)
	assert.False(t, NewError("boom", "failed", 0).Retryable)
	assert.False(t, NewError("cart_empty", "cart is empty", http.StatusConflict).Retryable)
	assert.True(t, NewError("catalog_unavailable", "down", http.StatusBadGateway).Retryable)
	assert.True(t, NewError("cart_unavailable", "down", http.StatusServiceUnavailable).Retryable)
	assert.True(t, NewError("checkout_timeout", "slow", http.StatusGatewayTimeout).Retryable)
}

func TestNewErrorCapsMessageLength(t *testing.T) {
	err := NewError("invalid_request", strings.Repeat("é", maxMessageLen+10), http.StatusBadRequest)
	assert.Equal(t, maxMessageLen, len([]rune(err.Message)))
}
