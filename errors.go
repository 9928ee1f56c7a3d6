package nunitrunner

import (
	"errors"
	"fmt"
)

// RuntimeError represents an operational error that should lead to exit code 2.
// Examples include configuration errors, unreadable files and failed report merges.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError is returned when a run completed with unresolved failures (exit code 1)
type TestFailureError struct {
	RunID       string
	FailedCases int // Cases still failing after the optional rerun
	FailedRuns  int // Runs that could not be started or failed without reporting a failing case
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: run %s has %d failing test case(s) and %d failed run(s)", e.RunID, e.FailedCases, e.FailedRuns)
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
