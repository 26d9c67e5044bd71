package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/conformity/internal/ir"
)

var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("orchestrator closed")

	// ErrNotFound is returned for an unknown or evicted analysis id.
	ErrNotFound = errors.New("analysis not found")

	// ErrNotReady is returned by Result while an analysis is still running.
	ErrNotReady = errors.New("analysis not finished")

	// errTimedOut is the cancellation cause of an analysis whose timeout
	// expired.
	errTimedOut = errors.New("analysis timed out")

	// errCancelledByCaller is the cancellation cause set by Cancel.
	errCancelledByCaller = errors.New("analysis cancelled")
)

// AnalysisError is the terminal error of a Failed or Cancelled analysis.
//
// Kind matches AnalysisStatus.Error.Kind; Err is the underlying cause and
// is never swallowed.
type AnalysisError struct {
	AnalysisID string
	Kind       ir.ErrorKind
	Err        error
}

// Error implements the error interface.
func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s: %s: %v", e.AnalysisID, e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// ResourceExhaustedError is returned by Submit when every processing slot is
// busy and the pending queue is full.
type ResourceExhaustedError struct {
	Running    int
	Pending    int
	QueueLimit int
}

// Error implements the error interface.
func (e *ResourceExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d running, %d pending (queue limit %d)",
		ir.ErrorResourceExhausted, e.Running, e.Pending, e.QueueLimit)
}

// panicError wraps a recovered panic from the analysis pipeline.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// kindError tags a pipeline error with the ErrorKind it should surface as.
type kindError struct {
	kind ir.ErrorKind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// IsTimeout returns true if err is an AnalysisError of kind Timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	return hasKind(err, ir.ErrorTimeout)
}

// IsCancelled returns true if err is an AnalysisError of kind Cancelled.
func IsCancelled(err error) bool {
	return hasKind(err, ir.ErrorCancelled)
}

// IsValidation returns true if err is an AnalysisError of kind ValidationError.
func IsValidation(err error) bool {
	return hasKind(err, ir.ErrorValidation)
}

// IsResourceExhausted returns true if err is a ResourceExhaustedError.
func IsResourceExhausted(err error) bool {
	var re *ResourceExhaustedError
	return errors.As(err, &re)
}

func hasKind(err error, kind ir.ErrorKind) bool {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
