package entity

import (
	"errors"
	"fmt"
)

// Messages below are returned verbatim to API clients.
var (
	ErrInvalidTransformer       = errors.New("Invalid transformer param")
	ErrMissingProcess           = errors.New("Missing process name params")
	ErrInvalidArchitecture      = errors.New("Invalid architecture param")
	ErrInvalidCompiler          = errors.New("Invalid compiler param")
	ErrInvalidDelay             = errors.New("Invalid delay param")
	ErrMissingExportTarget      = errors.New("Native DLLs require to specify an exported function")
	ErrMissingManagedEntryPoint = errors.New(".NET DLLs require to specify both class and method names")
	ErrMissingSource            = errors.New("Missing source binary")
	ErrInvalidSourceName        = errors.New("Invalid source file name")
	ErrThreatCheckDisabled      = errors.New("threat check backend is not configured")
)

// PublicError is implemented by errors whose message is safe to send to clients.
type PublicError interface {
	error
	Public() string
}

// ValidationError reports a malformed, missing or conflicting request field.
type ValidationError struct {
	Field string
	Err   error
}

func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Public() string { return e.Err.Error() }

// GenerationError reports a failed generation strategy.
type GenerationError struct {
	Kind OutputKind
	// Reason is a short description without filesystem paths.
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s generation failed: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s generation failed: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Public() string {
	return fmt.Sprintf("Unable to generate %s artifact: %s", e.Kind, e.Reason)
}

// BackendError reports a failure of the detection backend. A report with
// detections is not an error.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return "threat check failed: " + e.Err.Error()
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Public() string { return "Threat check backend failed" }

// StorageError reports an upload persistence or cleanup failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Public() string {
	return "Unable to " + e.Op
}

// ErrorClass names the taxonomy class of err for records and metrics.
func ErrorClass(err error) string {
	var (
		ve *ValidationError
		ge *GenerationError
		be *BackendError
		se *StorageError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ge):
		return "generation"
	case errors.As(err, &be):
		return "validation_backend"
	case errors.As(err, &se):
		return "storage"
	default:
		return "internal"
	}
}
