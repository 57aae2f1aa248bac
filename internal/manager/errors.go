package manager

import (
	"errors"
	"fmt"

	"lorad/internal/inference"
)

// ErrModelRequired is returned when a request names no model and no default
// model is configured.
var ErrModelRequired = errors.New("model name is required")

// ErrClosed is returned by Ready once Close has been called.
var ErrClosed = errors.New("manager closed")

// adapterNotFoundError signals a requested adapter file that does not exist.
type adapterNotFoundError struct {
	name string
	err  error
}

func (e adapterNotFoundError) Error() string { return "adapter not found: " + e.name }

func (e adapterNotFoundError) Unwrap() error { return e.err }

// ErrAdapterNotFound constructs an adapterNotFoundError.
func ErrAdapterNotFound(name string) error { return adapterNotFoundError{name: name} }

// IsAdapterNotFound reports whether err indicates a missing adapter (return 404).
func IsAdapterNotFound(err error) bool {
	var e adapterNotFoundError
	return errors.As(err, &e)
}

// swapFailedError wraps the upstream failure that aborted a swap. Any
// composite created for the swap has already been cleaned up when it is seen.
type swapFailedError struct {
	target string
	stage  string
	err    error
}

func (e swapFailedError) Error() string {
	return fmt.Sprintf("swap to %s failed during %s: %v", e.target, e.stage, e.err)
}

func (e swapFailedError) Unwrap() error { return e.err }

// ErrSwapFailed constructs a swapFailedError.
func ErrSwapFailed(target, stage string, err error) error {
	return swapFailedError{target: target, stage: stage, err: err}
}

// IsSwapFailed reports whether err came from a failed swap.
func IsSwapFailed(err error) bool {
	var e swapFailedError
	return errors.As(err, &e)
}

// streamInterruptedError reports a generation that broke after output was
// delivered. The delivered output stands.
type streamInterruptedError struct {
	model     string
	delivered int
	err       error
}

func (e streamInterruptedError) Error() string {
	return fmt.Sprintf("generation on %s interrupted after %d deltas: %v", e.model, e.delivered, e.err)
}

func (e streamInterruptedError) Unwrap() error { return e.err }

// IsStreamInterrupted reports whether err ended a stream abnormally.
func IsStreamInterrupted(err error) bool {
	var e streamInterruptedError
	return errors.As(err, &e)
}

// Delivered returns how many deltas reached the caller before err, if err is
// a stream interruption.
func Delivered(err error) (int, bool) {
	var e streamInterruptedError
	if errors.As(err, &e) {
		return e.delivered, true
	}
	return 0, false
}

// IsUpstreamUnreachable reports a transport failure talking to the inference service.
func IsUpstreamUnreachable(err error) bool { return inference.IsUnreachable(err) }

// UpstreamStatus returns the status the inference service rejected a request
// with, if err carries one.
func UpstreamStatus(err error) (int, bool) {
	u, ok := inference.AsUpstream(err)
	if !ok {
		return 0, false
	}
	return u.StatusCode, true
}

// IsUpstreamRejected reports whether the inference service answered with an error.
func IsUpstreamRejected(err error) bool {
	_, ok := inference.AsUpstream(err)
	return ok
}
