package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	// Given: an invalid query error with a suggestion
	err := InvalidQuery("query is empty")

	// When: formatting for the CLI
	out := FormatForCLI(err)

	// Then: message, hint and code are present
	assert.Contains(t, out, "Error: query is empty")
	assert.Contains(t, out, "Hint: ")
	assert.Contains(t, out, "Code: ERR_403_INVALID_QUERY")
}

func TestFormatForCLI_PlainErrorWrappedAsInternal(t *testing.T) {
	out := FormatForCLI(errors.New("disk on fire"))

	assert.Contains(t, out, "disk on fire")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatJSON_RoundTripsFields(t *testing.T) {
	// Given: a retrieval error with a cause
	err := RetrievalUnavailable(errors.New("qdrant: 502")).WithDetail("backend", "qdrant")

	// When: formatting as JSON
	data, ferr := FormatJSON(err)
	require.NoError(t, ferr)

	// Then: the JSON carries the structured fields
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ErrCodeRetrievalUnavailable, got["code"])
	assert.Equal(t, "NETWORK", got["category"])
	assert.Equal(t, "qdrant: 502", got["cause"])
	assert.Equal(t, true, got["retryable"])
	assert.Equal(t, "qdrant", got["details"].(map[string]any)["backend"])
}

func TestFormatForLog_FlattensDetails(t *testing.T) {
	fields := FormatForLog(AgentTimeout("video"))

	assert.Equal(t, ErrCodeAgentTimeout, fields["error_code"])
	assert.Equal(t, "video", fields["detail_modality"])
	assert.Equal(t, map[string]any{"error": "x"}, FormatForLog(errors.New("x")))
	assert.Nil(t, FormatForLog(nil))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"invalid query", InvalidQuery("empty"), http.StatusBadRequest},
		{"unsupported modality", UnsupportedModality("smell"), http.StatusBadRequest},
		{"rate limited", New(ErrCodeRateLimited, "slow down", nil), http.StatusTooManyRequests},
		{"service unavailable", New(ErrCodeServiceUnavailable, "down", nil), http.StatusServiceUnavailable},
		{"network", NetworkError("timeout", nil), http.StatusBadGateway},
		{"plain", errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "invalid_request_error", ErrorType(InvalidQuery("x")))
	assert.Equal(t, "rate_limit_error", ErrorType(New(ErrCodeRateLimited, "x", nil)))
	assert.Equal(t, "unavailable_error", ErrorType(New(ErrCodeServiceUnavailable, "x", nil)))
	assert.Equal(t, "server_error", ErrorType(errors.New("x")))
}
