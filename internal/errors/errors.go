package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// AmanError is the structured error type for amanrag.
// It carries enough context to be recorded in ingest lineage and shown to operators.
type AmanError struct {
	// Code is the unique error code (e.g., "ERR_408_CONTRACT_VIOLATION").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code range.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs (field, run_id, event_id).
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AmanError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is(err, &AmanError{Code: ...}) works.
func (e *AmanError) Is(target error) bool {
	if t, ok := target.(*AmanError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AmanError) WithSuggestion(suggestion string) *AmanError {
	e.Suggestion = suggestion
	return e
}

// DetailString renders details as sorted key=value pairs.
func (e *AmanError) DetailString() string {
	if len(e.Details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Details[k])
	}
	return strings.Join(parts, " ")
}

// New creates a new AmanError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AmanError from an existing error.
func Wrap(code string, err error) *AmanError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration error naming the offending field.
func ConfigError(field, message string) *AmanError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("%s: %s", field, message), nil).
		WithDetail("field", field)
}

// ValidationError creates a validation error naming the offending field.
func ValidationError(field, message string) *AmanError {
	return New(ErrCodeInvalidInput, fmt.Sprintf("%s: %s", field, message), nil).
		WithDetail("field", field)
}

// ContentError creates a content error.
func ContentError(message string) *AmanError {
	return New(ErrCodeNoExtractableText, message, nil)
}

// TransientError classifies an embedding backend failure.
// Deadline errors become ERR_301, everything else ERR_302.
func TransientError(message string, cause error) *AmanError {
	code := ErrCodeEmbedUnavailable
	if IsTimeout(cause) {
		code = ErrCodeEmbedTimeout
	}
	return New(code, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AmanError {
	return New(ErrCodeInternal, message, cause)
}

// IsTimeout reports whether err stems from a deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, contextDeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	if stderrors.As(err, &t) {
		return t.Timeout()
	}
	return false
}

// As finds the first AmanError in err's chain.
func As(err error) (*AmanError, bool) {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if ae, ok := As(err); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if ae, ok := As(err); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an AmanError anywhere in the chain.
// Returns empty string if none.
func GetCode(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from an AmanError anywhere in the chain.
func GetCategory(err error) Category {
	if ae, ok := As(err); ok {
		return ae.Category
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}
