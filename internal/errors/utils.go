package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a TemplcError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *TemplcError {
	if err == nil {
		return nil
	}

	// Keep the location of an inner TemplcError so callers still see where it happened
	var te *TemplcError
	if errors.As(err, &te) {
		return &TemplcError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       te,
			Context:     te.Context,
			Module:      te.Module,
			FilePath:    te.FilePath,
			Line:        te.Line,
			Recoverable: te.Recoverable,
		}
	}

	return &TemplcError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeBuild,
	}
}

// WrapBuild wraps an error as a build error with module context
func WrapBuild(err error, code, message, module string) *TemplcError {
	templErr := Wrap(err, ErrorTypeBuild, code, message)
	if templErr != nil {
		templErr.Module = module
	}
	return templErr
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *TemplcError {
	templErr := Wrap(err, ErrorTypeIO, code, message)
	if templErr != nil {
		templErr.Recoverable = false
	}
	return templErr
}

// WrapInternal wraps an error as an internal error
func WrapInternal(err error, code, message string) *TemplcError {
	templErr := Wrap(err, ErrorTypeInternal, code, message)
	if templErr != nil {
		templErr.Recoverable = false
	}
	return templErr
}

// FetchError reports a reference module that could not be retrieved.
// Fetches can be retried, so it is recoverable.
func FetchError(module string, cause error) *TemplcError {
	return NewNetworkError(ErrCodeFetchFailed,
		fmt.Sprintf("fetching reference module %q failed", module), cause).
		WithModule(module)
}

// ModuleError reports a module envelope or export data that could not be decoded.
func ModuleError(module, message string, cause error) *TemplcError {
	return WrapBuild(cause, ErrCodeModuleCorrupt, message, module)
}

// Cancelled converts a context error into an internal error, or returns nil
// if the context is still live.
func Cancelled(ctx context.Context, phase string) error {
	if err := ctx.Err(); err != nil {
		return WrapInternal(err, ErrCodeCancelled, "compilation cancelled during "+phase)
	}
	return nil
}
