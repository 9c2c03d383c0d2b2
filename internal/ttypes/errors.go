package ttypes

import (
	"errors"
	"fmt"
)

// Common pipeline errors
var (
	// ErrEngineUnavailable indicates the speech engine is not ready or disconnected
	ErrEngineUnavailable = errors.New("speech engine is not available")

	// ErrQueueLockTimeout indicates the event queue lock could not be acquired in time
	ErrQueueLockTimeout = errors.New("timed out waiting for event queue lock")

	// ErrUnknownProperty indicates a rule document names a property that does not exist
	ErrUnknownProperty = errors.New("unknown property")

	// ErrCapabilityNotFound indicates no custom filter or formatter is registered under a name
	ErrCapabilityNotFound = errors.New("custom capability not found")

	// ErrWrongCapability indicates a registered name does not provide the requested capability
	ErrWrongCapability = errors.New("custom capability has wrong type")
)

// PipelineError is a recoverable pipeline failure with additional context.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ErrorCode identifies specific error types
type ErrorCode string

const (
	// Rule definition errors
	ErrorCodeDefinitionParse   ErrorCode = "DEFINITION_PARSE"
	ErrorCodeUnknownProperty   ErrorCode = "UNKNOWN_PROPERTY"
	ErrorCodeDynamicResolution ErrorCode = "DYNAMIC_RESOLUTION"

	// Formatting errors
	ErrorCodeFormatMismatch ErrorCode = "FORMAT_MISMATCH"

	// Engine errors
	ErrorCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorCodeEngineFailure     ErrorCode = "ENGINE_FAILURE"

	// Queue errors
	ErrorCodeQueueLockTimeout ErrorCode = "QUEUE_LOCK_TIMEOUT"

	// Input errors
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// NewPipelineError creates a new pipeline error with context
func NewPipelineError(code ErrorCode, message string, cause error) *PipelineError {
	return &PipelineError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	e.Context[key] = value
	return e
}

// IsFatal returns true if the error must abort the operation that raised it.
// Only an unknown property name aborts a rule document load; everything else
// degrades silently.
func (e *PipelineError) IsFatal() bool {
	return e.Code == ErrorCodeUnknownProperty
}

// IsRetryable returns true if the operation may succeed on the next event
// or timer fire.
func (e *PipelineError) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeQueueLockTimeout,
		ErrorCodeEngineUnavailable:
		return true
	default:
		return false
	}
}

// HasCode reports whether err is a PipelineError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Code == code
}

// IsDefinitionError reports whether err came from parsing a rule document.
func IsDefinitionError(err error) bool {
	return HasCode(err, ErrorCodeDefinitionParse) || HasCode(err, ErrorCodeUnknownProperty)
}

// IsEngineUnavailable reports whether err means the engine could not take the request.
func IsEngineUnavailable(err error) bool {
	return errors.Is(err, ErrEngineUnavailable) || HasCode(err, ErrorCodeEngineUnavailable)
}
