package inference

import (
	"errors"
	"fmt"
	"net/http"
)

// UnreachableError signals a transport-level failure: the inference service
// could not be reached or did not answer in time.
type UnreachableError struct {
	Op  string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("inference service unreachable (%s): %v", e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// UpstreamError signals that the inference service answered but rejected the
// request, or answered with a payload that could not be decoded. StatusCode is
// zero when the failure did not come with an HTTP status (CLI transport).
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("inference service rejected %s: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("inference service rejected %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// StreamError reports a generation stream that failed after Delivered deltas
// were already handed to the caller.
type StreamError struct {
	Delivered int
	Err       error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("generation stream interrupted after %d deltas: %v", e.Delivered, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err is a transport failure.
func IsUnreachable(err error) bool {
	var u *UnreachableError
	return errors.As(err, &u)
}

// AsUpstream extracts the UpstreamError from err's chain.
func AsUpstream(err error) (*UpstreamError, bool) {
	var u *UpstreamError
	if errors.As(err, &u) {
		return u, true
	}
	return nil, false
}

// IsNotFound reports whether the upstream said the named model does not exist.
func IsNotFound(err error) bool {
	u, ok := AsUpstream(err)
	return ok && u.StatusCode == http.StatusNotFound
}
