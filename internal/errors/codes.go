// Package errors provides structured error handling for amanrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors (rejected at startup)
//   - 2XX: Content errors (nothing extractable, missing input)
//   - 3XX: Transient backend errors (embedding timeouts, unreachable model)
//   - 4XX: Validation errors (rejected before any write)
//   - 5XX: Internal and consistency errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryContent indicates the input carried no usable content.
	CategoryContent Category = "CONTENT"
	// CategoryTransient indicates a backend failure that may succeed on retry.
	CategoryTransient Category = "TRANSIENT"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
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
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound     = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid      = "ERR_102_CONFIG_INVALID"
	ErrCodeUnsupportedBackend = "ERR_104_UNSUPPORTED_BACKEND"

	// Content errors (200-299)
	ErrCodeFileNotFound      = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileTooLarge      = "ERR_204_FILE_TOO_LARGE"
	ErrCodeNoExtractableText = "ERR_210_NO_EXTRACTABLE_TEXT"
	ErrCodeUnreadableContent = "ERR_211_UNREADABLE_CONTENT"

	// Transient backend errors (300-399)
	ErrCodeEmbedTimeout     = "ERR_301_EMBED_TIMEOUT"
	ErrCodeEmbedUnavailable = "ERR_302_EMBED_UNAVAILABLE"
	ErrCodeVersionConflict  = "ERR_303_VERSION_CONFLICT"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeContractTooLarge  = "ERR_407_CONTRACT_TOO_LARGE"
	ErrCodeContractViolation = "ERR_408_CONTRACT_VIOLATION"
	ErrCodeInvalidMetadata   = "ERR_409_INVALID_METADATA"
	ErrCodeDocumentNotFound  = "ERR_410_DOCUMENT_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal          = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed   = "ERR_502_EMBEDDING_FAILED"
	ErrCodeStoreFailed       = "ERR_505_STORE_FAILED"
	ErrCodeDimensionMismatch = "ERR_506_DIMENSION_MISMATCH"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_301_..." -> '3'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryContent
	case '3':
		return CategoryTransient
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeUnsupportedBackend:
		return SeverityFatal
	case ErrCodeDimensionMismatch:
		// Repaired by the index rebuild path, never surfaced as a failure.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	return categoryFromCode(code) == CategoryTransient
}
