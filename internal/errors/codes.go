// Package errors provides structured error handling for HyperSearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, index)
//   - 3XX: Network errors (retrieval backends, embedders, LLM providers)
//   - 4XX: Validation errors (queries, modalities, filters)
//   - 5XX: Internal errors (agents, cache, session store)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates internal errors, including degraded sources.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"

	// IO errors (200-299)
	ErrCodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCorpusInvalid = "ERR_202_CORPUS_INVALID"
	ErrCodeDataDirLocked = "ERR_203_DATA_DIR_LOCKED"
	ErrCodeCorruptIndex  = "ERR_205_CORRUPT_INDEX"

	// Network errors (300-399)
	ErrCodeNetworkTimeout       = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable   = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeLLMUnavailable       = "ERR_303_LLM_UNAVAILABLE"
	ErrCodeRetrievalUnavailable = "ERR_304_RETRIEVAL_UNAVAILABLE"
	ErrCodeEmbedderUnavailable  = "ERR_305_EMBEDDER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput        = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch   = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery        = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty          = "ERR_404_QUERY_EMPTY"
	ErrCodeQueryTooLong        = "ERR_405_QUERY_TOO_LONG"
	ErrCodeInvalidSearchType   = "ERR_406_INVALID_SEARCH_TYPE"
	ErrCodeUnsupportedModality = "ERR_407_UNSUPPORTED_MODALITY"
	ErrCodeRateLimited         = "ERR_429_RATE_LIMITED"

	// Internal errors (500-599)
	ErrCodeInternal           = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed    = "ERR_502_EMBEDDING_FAILED"
	ErrCodeIndexFailed        = "ERR_505_INDEX_FAILED"
	ErrCodeAgentFailure       = "ERR_506_AGENT_FAILURE"
	ErrCodeAgentTimeout       = "ERR_507_AGENT_TIMEOUT"
	ErrCodeCacheUnavailable   = "ERR_508_CACHE_UNAVAILABLE"
	ErrCodeAllSourcesFailed   = "ERR_509_ALL_SOURCES_FAILED"
	ErrCodeSessionUnavailable = "ERR_510_SESSION_UNAVAILABLE"
	ErrCodeServiceUnavailable = "ERR_511_SERVICE_UNAVAILABLE"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "403" from "ERR_403_INVALID_QUERY"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDataDirLocked:
		return SeverityFatal
	case ErrCodeAgentFailure, ErrCodeAgentTimeout, ErrCodeCacheUnavailable,
		ErrCodeSessionUnavailable, ErrCodeAllSourcesFailed, ErrCodeLLMUnavailable:
		// Degraded sources: the search still answers.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeLLMUnavailable,
		ErrCodeRetrievalUnavailable, ErrCodeEmbedderUnavailable, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}
