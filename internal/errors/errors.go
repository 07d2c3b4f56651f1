package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig = "CONFIG"
	ErrSSH    = "SSH"   // Transport: dialing, auth, session setup
	ErrExec   = "EXEC"  // Benchmark process exited non-zero on a host
	ErrStage  = "STAGE" // Scratch directory or payload staging on a host
	ErrParse  = "PARSE" // Host facts or raw benchmark CSV could not be parsed
	ErrIO     = "IO"    // Local output files
	ErrLock   = "LOCK"  // Another run holds the benchmark lock on a host
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// Rendered as:
//
//	✗ <What failed>
//
//	  <Why it failed - technical details>
//
//	  <How to fix it - actionable steps>
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps a transport error as ErrSSH with no suggestion.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrSSH,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	// First line: failure symbol + main message
	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}

	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}

	return b.String()
}

// Short returns the message and cause on a single line, for log records and
// CSV-adjacent output where the multi-line rendering would be noise.
func (e *Error) Short() string {
	if e.Cause == nil {
		return e.Message
	}
	cause := e.Cause.Error()
	var inner *Error
	if errors.As(e.Cause, &inner) {
		cause = inner.Short()
	}
	return e.Message + ": " + strings.Join(strings.Fields(cause), " ")
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var pbErr *Error
	if errors.As(err, &pbErr) {
		return pbErr.Code == code
	}
	return false
}

// Summary renders any error on one line, using Short for structured errors.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var pbErr *Error
	if errors.As(err, &pbErr) {
		return pbErr.Short()
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}

// ExitError carries a process exit code through cobra's RunE without
// printing anything extra. The command has already reported what went wrong.
type ExitError struct {
	Code int
}

// NewExitError creates an ExitError with the given code.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// GetExitCode extracts the code from an ExitError anywhere in err's chain.
func GetExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
