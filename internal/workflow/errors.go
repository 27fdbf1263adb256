package workflow

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes workflow errors.
type ErrorCode string

const (
	// ErrCodeLookupFailure indicates an identify call failed or resolved
	// nothing usable. Lookup failures never change workflow state.
	ErrCodeLookupFailure ErrorCode = "LOOKUP_FAILURE"

	// ErrCodeTerminalSelectionRequired indicates an ambiguous junction
	// paused the addition. Not a failure - the workflow is waiting for
	// SelectTerminal.
	ErrCodeTerminalSelectionRequired ErrorCode = "TERMINAL_SELECTION_REQUIRED"

	// ErrCodeTraceSubmissionFailure indicates the trace service reported
	// a transport or service error. The workflow exits tracing with an
	// empty result.
	ErrCodeTraceSubmissionFailure ErrorCode = "TRACE_SUBMISSION_FAILURE"

	// ErrCodeCancellationRequested indicates a user-initiated abort. The
	// in-flight trace outcome is discarded silently.
	ErrCodeCancellationRequested ErrorCode = "CANCELLATION_REQUESTED"

	// ErrCodeInvalidTransition indicates the operation is not available
	// in the current state.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeNoStartPoints indicates an attempt to advance past point
	// selection (or submit a trace) with zero start points.
	ErrCodeNoStartPoints ErrorCode = "NO_START_POINTS"
)

// WorkflowError is a structured error carrying the workflow state it was
// raised in. None of these errors is fatal; all are recoverable via Reset.
type WorkflowError struct {
	Code    ErrorCode
	Message string

	// State is the workflow state at the time of the error.
	State string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%s: %s (state=%s)", e.Code, e.Message, e.State)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the ErrorCode from an error, or "" if it is not a
// WorkflowError. Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// IsLookupFailure reports whether the error is an ignored lookup failure.
func IsLookupFailure(err error) bool {
	return CodeOf(err) == ErrCodeLookupFailure
}

// IsTerminalSelectionRequired reports whether the error is the
// pending-disambiguation pause.
func IsTerminalSelectionRequired(err error) bool {
	return CodeOf(err) == ErrCodeTerminalSelectionRequired
}

// IsInvalidTransition reports whether the error is a state-machine
// rejection.
func IsInvalidTransition(err error) bool {
	return CodeOf(err) == ErrCodeInvalidTransition
}

func newError(code ErrorCode, state, message string) *WorkflowError {
	return &WorkflowError{Code: code, Message: message, State: state}
}

func wrapError(code ErrorCode, state, message string, err error) *WorkflowError {
	return &WorkflowError{Code: code, Message: message, State: state, Err: err}
}
