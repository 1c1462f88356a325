package tools

import (
	"errors"
	"fmt"
)

// ValidationError reports arguments that do not match the tool's input
// schema, or a tool that is not registered. The handler is never called.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s: invalid arguments: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ExecutionError reports a handler failure.
type ExecutionError struct {
	Tool string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("tool %s: execution failed: %v", e.Tool, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// UnavailableError reports a transient failure: a timeout or an
// unreachable backend.
type UnavailableError struct {
	Tool string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tool %s: unavailable: %v", e.Tool, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Unavailable lets a handler mark its failure as transient.
func Unavailable(tool string, err error) error {
	return &UnavailableError{Tool: tool, Err: err}
}

func IsRetryable(err error) bool {
	var execErr *ExecutionError
	var unavailableErr *UnavailableError

	return errors.As(err, &execErr) || errors.As(err, &unavailableErr)
}

// Kind names the error class for logs and metrics.
func Kind(err error) string {
	var validationErr *ValidationError
	var execErr *ExecutionError
	var unavailableErr *UnavailableError

	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &unavailableErr):
		return "unavailable"
	case errors.As(err, &execErr):
		return "execution"
	default:
		return "error"
	}
}
