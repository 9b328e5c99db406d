package errors

import (
	"errors"
	"fmt"
)

// SearchError is the structured error type for HyperSearch.
// It carries enough context for logging, HTTP mapping, and user presentation.
type SearchError struct {
	// Code is the unique error code (e.g., "ERR_403_INVALID_QUERY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the caller.
	Suggestion string
}

// Error implements the error interface.
func (e *SearchError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SearchError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, &SearchError{Code: ErrCodeAgentTimeout}) works
// regardless of message or cause.
func (e *SearchError) Is(target error) bool {
	if t, ok := target.(*SearchError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *SearchError) WithDetail(key, value string) *SearchError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the caller.
func (e *SearchError) WithSuggestion(suggestion string) *SearchError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SearchError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SearchError {
	return &SearchError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a SearchError from an existing error.
// The error's message becomes the SearchError message.
func Wrap(code string, err error) *SearchError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel values for errors.Is comparisons. Only the code is significant.
var (
	ErrInvalidQuery         = &SearchError{Code: ErrCodeInvalidQuery}
	ErrUnsupportedModality  = &SearchError{Code: ErrCodeUnsupportedModality}
	ErrAgentFailure         = &SearchError{Code: ErrCodeAgentFailure}
	ErrAgentTimeout         = &SearchError{Code: ErrCodeAgentTimeout}
	ErrRetrievalUnavailable = &SearchError{Code: ErrCodeRetrievalUnavailable}
	ErrCacheUnavailable     = &SearchError{Code: ErrCodeCacheUnavailable}
	ErrSessionUnavailable   = &SearchError{Code: ErrCodeSessionUnavailable}
	ErrAllSourcesFailed     = &SearchError{Code: ErrCodeAllSourcesFailed}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SearchError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *SearchError {
	return New(ErrCodeFileNotFound, message, cause)
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *SearchError {
	return New(ErrCodeNetworkTimeout, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *SearchError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SearchError {
	return New(ErrCodeInternal, message, cause)
}

// InvalidQuery reports a query that failed normalization.
func InvalidQuery(message string) *SearchError {
	return New(ErrCodeInvalidQuery, message, nil).
		WithSuggestion("provide a non-empty query and one of: comprehensive, quick, detailed, creative")
}

// UnsupportedModality reports a modality outside the supported set, or one with
// no registered capability.
func UnsupportedModality(modality string) *SearchError {
	return New(ErrCodeUnsupportedModality, fmt.Sprintf("unsupported modality %q", modality), nil).
		WithDetail("modality", modality).
		WithSuggestion("use one of: text, image, audio, video, code")
}

// AgentFailure reports a capability that errored or panicked.
func AgentFailure(modality string, cause error) *SearchError {
	return New(ErrCodeAgentFailure, fmt.Sprintf("agent %s failed", modality), cause).
		WithDetail("modality", modality)
}

// AgentTimeout reports a task that missed its deadline, including tasks that
// never left the queue.
func AgentTimeout(modality string) *SearchError {
	return New(ErrCodeAgentTimeout, fmt.Sprintf("agent %s missed its deadline", modality), nil).
		WithDetail("modality", modality)
}

// RetrievalUnavailable reports a vector retrieval failure of any kind.
func RetrievalUnavailable(cause error) *SearchError {
	return New(ErrCodeRetrievalUnavailable, "vector retrieval unavailable", cause)
}

// CacheUnavailable reports a cache that cannot serve reads or writes.
func CacheUnavailable(cause error) *SearchError {
	return New(ErrCodeCacheUnavailable, "response cache unavailable", cause)
}

// SessionUnavailable reports a session store that could not record an entry.
func SessionUnavailable(cause error) *SearchError {
	return New(ErrCodeSessionUnavailable, "search session store unavailable", cause)
}

// AllSourcesFailed reports that no agent and no retrieval call produced candidates.
func AllSourcesFailed() *SearchError {
	return New(ErrCodeAllSourcesFailed, "all sources failed", nil)
}

// As extracts a SearchError from anywhere in an error chain.
func As(err error) (*SearchError, bool) {
	var se *SearchError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if se, ok := As(err); ok {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if se, ok := As(err); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a SearchError.
// Returns empty string if not a SearchError.
func GetCode(err error) string {
	if se, ok := As(err); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SearchError.
// Returns empty string if not a SearchError.
func GetCategory(err error) Category {
	if se, ok := As(err); ok {
		return se.Category
	}
	return ""
}
