// Package errors defines the sentinel errors shared by the broadcast builders
// and the traversal simulator, and classifies them into input violations,
// index corruption and semantic not-found outcomes.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyBatch      = errors.New("empty record batch")
	ErrMisalignedBatch = errors.New("batch size is not a multiple of bucket size")
	ErrMixedGroup      = errors.New("batch mixes group labels")
	ErrUnknownGroup    = errors.New("unknown group")
	ErrIncompleteOrder = errors.New("group order does not cover every group exactly once")
	ErrPhaseOrder      = errors.New("construction phase out of order")
	ErrUnsupported     = errors.New("operation not supported")
	ErrInvalidConfig   = errors.New("invalid configuration")
	ErrNoRecords       = errors.New("no records submitted")
	ErrCorruptIndex    = errors.New("corrupt index")
	ErrUnexpectedBlock = errors.New("unexpected block kind")
	ErrKeyNotFound     = errors.New("key not found")
)

// Class is the failure category of an error.
type Class int

const (
	ClassInternal Class = iota
	ClassInput
	ClassCorruption
	ClassNotFound
)

func (c Class) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassCorruption:
		return "corruption"
	case ClassNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

type AppError struct {
	Err     error
	Message string
	Class   Class
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
		Class:   classOf(sentinel),
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
		Class:   classOf(sentinel),
	}
}

// Classify reports the failure category of err.
func Classify(err error) Class {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Class
	}
	return classOf(err)
}

// IsNotFound reports whether err is a recoverable not-found outcome.
func IsNotFound(err error) bool {
	return Classify(err) == ClassNotFound
}

// ExitCode maps err to a process exit status for the command-line tools.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch Classify(err) {
	case ClassInput:
		return 2
	case ClassCorruption:
		return 3
	case ClassNotFound:
		return 4
	default:
		return 1
	}
}

func classOf(err error) Class {
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return ClassNotFound
	case errors.Is(err, ErrCorruptIndex), errors.Is(err, ErrUnexpectedBlock):
		return ClassCorruption
	case errors.Is(err, ErrEmptyBatch),
		errors.Is(err, ErrMisalignedBatch),
		errors.Is(err, ErrMixedGroup),
		errors.Is(err, ErrUnknownGroup),
		errors.Is(err, ErrIncompleteOrder),
		errors.Is(err, ErrPhaseOrder),
		errors.Is(err, ErrUnsupported),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrNoRecords):
		return ClassInput
	default:
		return ClassInternal
	}
}
