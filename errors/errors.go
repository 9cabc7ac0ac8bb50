package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// Failure kinds surfaced by the orchestrator, the registry and the adapters.
var (
	ErrUnsupportedBackend     = stderrors.New("unsupported backend")
	ErrUnknownCapability      = stderrors.New("unknown capability")
	ErrInvalidArguments       = stderrors.New("invalid arguments")
	ErrMalformedToolArguments = stderrors.New("malformed tool arguments")
	ErrExecution              = stderrors.New("execution error")
	ErrDuplicateCapability    = stderrors.New("duplicate capability")
	ErrTurnInProgress         = stderrors.New("turn already in progress")
	ErrToolDenied             = stderrors.New("tool execution denied by user")
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// StreamFailure is returned when a backend stream breaks before completing.
// PartialText holds whatever text had been received.
type StreamFailure struct {
	PartialText string
	Err         error
}

func (e *StreamFailure) Error() string {
	return fmt.Sprintf("stream failed after %d bytes of text: %v", len(e.PartialText), e.Err)
}

func (e *StreamFailure) Unwrap() error { return e.Err }

// ExecutionError wraps a failure raised by a capability while running.
type ExecutionError struct {
	Capability string
	Cause      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExecution, e.Capability, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrExecution) hold for every ExecutionError.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }
