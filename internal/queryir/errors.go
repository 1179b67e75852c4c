package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/polystore/internal/ir"
)

// CompileErrorCode categorizes compile-time failures.
type CompileErrorCode string

const (
	// ErrCodeUnsupported indicates the backend cannot express a feature.
	ErrCodeUnsupported CompileErrorCode = "UNSUPPORTED_OPERATION"

	// ErrCodeRequiredArgument indicates a mandatory input is missing or has
	// the wrong shape (for example In without a list).
	ErrCodeRequiredArgument CompileErrorCode = "REQUIRED_ARGUMENT"

	// ErrCodeInvalidCondition indicates a structurally invalid condition tree.
	ErrCodeInvalidCondition CompileErrorCode = "INVALID_CONDITION"

	// ErrCodeForeignCursor indicates a cursor produced by another backend.
	ErrCodeForeignCursor CompileErrorCode = "FOREIGN_CURSOR"
)

// Sentinels matched by CompileError.Is.
var (
	ErrUnsupportedOperation = errors.New("polystore: unsupported operation")
	ErrRequiredArgument     = ir.ErrRequiredArgument
	ErrInvalidCondition     = errors.New("polystore: invalid condition")
	ErrForeignCursor        = errors.New("polystore: cursor belongs to another backend")
)

// CompileError is returned synchronously by every compiler. It is never
// retried and never degraded into a partial query.
type CompileError struct {
	// Code identifies the error category.
	Code CompileErrorCode

	// Backend names the compiler that rejected the input.
	Backend string

	// Feature names the offending construct (operator, option, field).
	Feature string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	if e.Backend != "" {
		return fmt.Sprintf("%s: %s (backend=%s)", e.Code, e.Message, e.Backend)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is maps the error code onto the package sentinels so callers can use
// errors.Is(err, ErrUnsupportedOperation).
func (e *CompileError) Is(target error) bool {
	switch e.Code {
	case ErrCodeUnsupported:
		return target == ErrUnsupportedOperation
	case ErrCodeRequiredArgument:
		return target == ErrRequiredArgument
	case ErrCodeInvalidCondition:
		return target == ErrInvalidCondition
	case ErrCodeForeignCursor:
		return target == ErrForeignCursor
	}
	return false
}

// Unsupported builds an UNSUPPORTED_OPERATION error.
func Unsupported(backend, feature string) *CompileError {
	return &CompileError{
		Code:    ErrCodeUnsupported,
		Backend: backend,
		Feature: feature,
		Message: fmt.Sprintf("%s is not supported", feature),
	}
}

// Required builds a REQUIRED_ARGUMENT error.
func Required(backend, what string) *CompileError {
	return &CompileError{
		Code:    ErrCodeRequiredArgument,
		Backend: backend,
		Feature: what,
		Message: fmt.Sprintf("%s is required", what),
	}
}

// Invalid builds an INVALID_CONDITION error.
func Invalid(backend, feature, format string, args ...any) *CompileError {
	return &CompileError{
		Code:    ErrCodeInvalidCondition,
		Backend: backend,
		Feature: feature,
		Message: fmt.Sprintf(format, args...),
	}
}

// Foreign builds a FOREIGN_CURSOR error for a cursor handed to the wrong
// backend.
func Foreign(backend string, c Cursor) *CompileError {
	return &CompileError{
		Code:    ErrCodeForeignCursor,
		Backend: backend,
		Feature: "cursor",
		Message: fmt.Sprintf("cursor from %q cannot resume a %s query", c.Backend(), backend),
	}
}

// IsUnsupported returns true if err is an UNSUPPORTED_OPERATION error.
// Uses errors.As to handle wrapped errors.
func IsUnsupported(err error) bool {
	return hasCode(err, ErrCodeUnsupported)
}

// IsRequired returns true if err is a REQUIRED_ARGUMENT error or wraps
// ErrRequiredArgument.
func IsRequired(err error) bool {
	return hasCode(err, ErrCodeRequiredArgument) || errors.Is(err, ErrRequiredArgument)
}

// IsForeignCursor returns true if err is a FOREIGN_CURSOR error.
func IsForeignCursor(err error) bool {
	return hasCode(err, ErrCodeForeignCursor)
}

func hasCode(err error, code CompileErrorCode) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
