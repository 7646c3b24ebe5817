package model

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
)

var (
	// ErrNoCredential is returned when no access token is stored.
	ErrNoCredential = errors.New("no credential stored")
	// ErrAuthDeclined is returned when the user cancels interactive authorization.
	ErrAuthDeclined = errors.New("authorization declined by user")
	// ErrTaskNotFound is returned when an operation names an unknown task.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when cancel/retry is called in a state
	// that does not allow it. It signals a caller bug, not an operational failure.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrInvalidTaskSpec is returned when an upload request is missing required fields.
	ErrInvalidTaskSpec = errors.New("invalid task spec")
)

// ErrorKind classifies failures by how the system reacts to them.
type ErrorKind int

const (
	// KindPermanent errors are not retried: the request itself is invalid.
	KindPermanent ErrorKind = iota
	// KindTransient errors (timeouts, 5xx, flood control) are retried.
	KindTransient
	// KindAuthInvalid errors trigger a credential refresh before retrying.
	KindAuthInvalid
	// KindLocalIO errors come from the local file system and are not retried.
	KindLocalIO
	// KindAuthCancelled means the user declined reauthorization.
	KindAuthCancelled
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindTransient:
		return "transient"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindLocalIO:
		return "local_io"
	case KindAuthCancelled:
		return "auth_cancelled"
	default:
		return "unknown"
	}
}

// Remote API error codes with special handling.
const (
	CodeUnknown        = 1
	CodeAuthFailed     = 5
	CodeTooManyRequest = 6
	CodeFloodControl   = 9
	CodeInternalError  = 10
)

// APIError is a well-formed error response from the remote API.
type APIError struct {
	Method  string
	Code    int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("api %s: error %d: %s", e.Method, e.Code, e.Message)
}

// Kind classifies the API error code.
func (e *APIError) Kind() ErrorKind {
	switch e.Code {
	case CodeAuthFailed:
		return KindAuthInvalid
	case CodeUnknown, CodeTooManyRequest, CodeFloodControl, CodeInternalError:
		return KindTransient
	default:
		return KindPermanent
	}
}

// TransportError wraps a network failure or a non-2xx HTTP status.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: http status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Kind classifies the transport failure. 4xx responses other than 408 and 429
// will not get better by retrying.
func (e *TransportError) Kind() ErrorKind {
	switch {
	case e.StatusCode == 0:
		return KindTransient
	case e.StatusCode >= http.StatusInternalServerError,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests:
		return KindTransient
	default:
		return KindPermanent
	}
}

// CallError is returned by the API client once a logical call gives up.
type CallError struct {
	Method   string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Method, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *CallError) Unwrap() error {
	return e.Err
}

// Classify maps any error to its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindPermanent
	}
	if errors.Is(err, ErrAuthDeclined) {
		return KindAuthCancelled
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
		return KindLocalIO
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Kind()
	}

	return KindPermanent
}
