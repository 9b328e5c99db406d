package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping it as a retrieval failure
	se := RetrievalUnavailable(originalErr)

	// Then: unwrapping returns the original error
	require.NotNil(t, se)
	assert.Equal(t, originalErr, errors.Unwrap(se))
	assert.True(t, errors.Is(se, originalErr))
}

func TestSearchError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *SearchError
		expected string
	}{
		{
			name:     "invalid query",
			err:      New(ErrCodeInvalidQuery, "query is empty", nil),
			expected: "[ERR_403_INVALID_QUERY] query is empty",
		},
		{
			name:     "agent timeout",
			err:      AgentTimeout("image"),
			expected: "[ERR_507_AGENT_TIMEOUT] agent image missed its deadline",
		},
		{
			name:     "unsupported modality",
			err:      UnsupportedModality("hologram"),
			expected: `[ERR_407_UNSUPPORTED_MODALITY] unsupported modality "hologram"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestSearchError_Is_MatchesByCode(t *testing.T) {
	// Given: two agent timeouts for different modalities
	a := AgentTimeout("text")
	b := AgentTimeout("video")

	// Then: they match each other and the sentinel, not other codes
	assert.True(t, errors.Is(a, b))
	assert.True(t, errors.Is(a, ErrAgentTimeout))
	assert.False(t, errors.Is(a, ErrAgentFailure))
}

func TestSearchError_Is_ThroughFmtWrapping(t *testing.T) {
	// Given: a SearchError wrapped with fmt.Errorf
	wrapped := fmt.Errorf("dispatch: %w", InvalidQuery("query is empty"))

	// Then: errors.Is and the helpers still see it
	assert.True(t, errors.Is(wrapped, ErrInvalidQuery))
	assert.Equal(t, ErrCodeInvalidQuery, GetCode(wrapped))
	assert.Equal(t, CategoryValidation, GetCategory(wrapped))
}

func TestNew_DerivesCategorySeverityRetryable(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCorruptIndex, CategoryIO, SeverityFatal, false},
		{ErrCodeRetrievalUnavailable, CategoryNetwork, SeverityWarning, true},
		{ErrCodeInvalidQuery, CategoryValidation, SeverityError, false},
		{ErrCodeUnsupportedModality, CategoryValidation, SeverityError, false},
		{ErrCodeAgentTimeout, CategoryInternal, SeverityWarning, false},
		{ErrCodeCacheUnavailable, CategoryInternal, SeverityWarning, false},
		{"short", CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail_Chains(t *testing.T) {
	err := New(ErrCodeAgentFailure, "boom", nil).
		WithDetail("modality", "audio").
		WithDetail("query_id", "q-1")

	assert.Equal(t, "audio", err.Details["modality"])
	assert.Equal(t, "q-1", err.Details["query_id"])
}

func TestIsRetryable_IsFatal(t *testing.T) {
	assert.True(t, IsRetryable(RetrievalUnavailable(nil)))
	assert.False(t, IsRetryable(InvalidQuery("x")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))

	assert.True(t, IsFatal(New(ErrCodeDataDirLocked, "locked", nil)))
	assert.False(t, IsFatal(AgentFailure("text", nil)))
	assert.False(t, IsFatal(nil))
}
