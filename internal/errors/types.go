package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// TemplcError is a structured error type with context.
//
// It is reserved for hard failures that cross the pipeline boundary
// (catalog fetches, corrupt modules, configuration, cancellation).
// Problems in user sources are reported as diagnostics instead.
type TemplcError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Module      string
	FilePath    string
	Line        int
	Recoverable bool
}

// Error implements the error interface.
func (e *TemplcError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Module != "" {
		parts = append(parts, "module:"+e.Module)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *TemplcError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *TemplcError) Is(target error) bool {
	var t *TemplcError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *TemplcError) WithContext(key string, value interface{}) *TemplcError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *TemplcError) WithLocation(filePath string, line int) *TemplcError {
	e.FilePath = filePath
	e.Line = line

	return e
}

// WithModule names the reference module the error concerns.
func (e *TemplcError) WithModule(module string) *TemplcError {
	e.Module = module

	return e
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *TemplcError {
	return &TemplcError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *TemplcError {
	return &TemplcError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *TemplcError {
	return &TemplcError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *TemplcError {
	return &TemplcError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *TemplcError {
	return &TemplcError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var te *TemplcError
	if errors.As(err, &te) {
		return te.Recoverable
	}

	return false
}

// IsNetworkError checks if an error is network-related.
func IsNetworkError(err error) bool {
	var te *TemplcError
	if errors.As(err, &te) {
		return te.Type == ErrorTypeNetwork
	}

	return false
}

// CodeOf returns the code of the first TemplcError in err's chain.
func CodeOf(err error) string {
	var te *TemplcError
	if errors.As(err, &te) {
		return te.Code
	}

	return ""
}

// Common error codes.
const (
	ErrCodeFetchFailed     = "ERR_FETCH_FAILED"
	ErrCodeModuleCorrupt   = "ERR_MODULE_CORRUPT"
	ErrCodeModuleFormat    = "ERR_MODULE_FORMAT"
	ErrCodeExportFailed    = "ERR_EXPORT_FAILED"
	ErrCodeCatalogEmpty    = "ERR_CATALOG_EMPTY"
	ErrCodeCancelled       = "ERR_CANCELLED"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound    = "ERR_FILE_NOT_FOUND"
	ErrCodeFileWriteFailed = "ERR_FILE_WRITE_FAILED"
	ErrCodeCompileFailed   = "ERR_COMPILE_FAILED"
	ErrCodeInternalError   = "ERR_INTERNAL"
	ErrCodeInvalidRequest  = "ERR_INVALID_REQUEST"
	ErrCodeUnknownTemplate = "ERR_UNKNOWN_TEMPLATE"
)
