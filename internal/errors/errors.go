package errors

import (
	"errors"
	"fmt"
)

// AmanError is the structured error type for amanrag.
// It provides rich context for error handling, logging, and user presentation.
type AmanError struct {
	// Code is the unique error code (e.g., "ERR_104_UNSUPPORTED_METRIC").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
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

// Is matches another AmanError by code, so errors.Is works against the
// package-level sentinels below.
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

// Sentinels for errors.Is checks. They carry only a code.
var (
	ErrUnsupportedMetric       = &AmanError{Code: ErrCodeUnsupportedMetric}
	ErrEmbeddingsModelNotFound = &AmanError{Code: ErrCodeEmbeddingsModelNotFound}
	ErrCrossEncoderNotFound    = &AmanError{Code: ErrCodeCrossEncoderNotFound}
	ErrWorkspaceNotFound       = &AmanError{Code: ErrCodeWorkspaceNotFound}
	ErrCircuitOpen             = &AmanError{Code: ErrCodeCircuitOpen}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AmanError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// UnsupportedMetric is the common error for a workspace metric outside
// cosine, l2 and inner.
func UnsupportedMetric(metric string) *AmanError {
	return New(ErrCodeUnsupportedMetric, fmt.Sprintf("Unsupported metric: %s", metric), nil).
		WithDetail("metric", metric).
		WithSuggestion("Set the workspace metric to one of: cosine, l2, inner")
}

// EmbeddingsModelNotFound is the common error for an embeddings
// provider/model pair that no registered provider serves.
func EmbeddingsModelNotFound(provider, model string) *AmanError {
	return New(ErrCodeEmbeddingsModelNotFound, "Embeddings model not found", nil).
		WithDetail("provider", provider).
		WithDetail("model", model)
}

// CrossEncoderModelNotFound is the common error for a configured
// cross-encoder that cannot be resolved.
func CrossEncoderModelNotFound(provider, model string) *AmanError {
	return New(ErrCodeCrossEncoderNotFound, "Cross encoder model not found", nil).
		WithDetail("provider", provider).
		WithDetail("model", model)
}

// UnsupportedEngine is the common error for a workspace engine with no backend.
func UnsupportedEngine(engine string) *AmanError {
	return New(ErrCodeUnsupportedEngine, fmt.Sprintf("Unsupported engine: %s", engine), nil).
		WithDetail("engine", engine)
}

// WorkspaceNotFound reports an unknown workspace id.
func WorkspaceNotFound(id string) *AmanError {
	return New(ErrCodeWorkspaceNotFound, fmt.Sprintf("Workspace not found: %s", id), nil).
		WithDetail("workspace_id", id)
}

// NetworkError creates a retryable network error.
func NetworkError(message string, cause error) *AmanError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *AmanError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AmanError {
	return New(ErrCodeInternal, message, cause)
}

// IsCommon reports whether err is a common error: a configuration mistake on
// the caller or deployment side that must propagate unmodified and is never
// retried.
func IsCommon(err error) bool {
	return GetCategory(err) == CategoryConfig
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var ae *AmanError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	var ae *AmanError
	if errors.As(err, &ae) {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first AmanError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var ae *AmanError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// GetCategory extracts the category from the first AmanError in the chain.
func GetCategory(err error) Category {
	var ae *AmanError
	if errors.As(err, &ae) {
		return ae.Category
	}
	return ""
}
