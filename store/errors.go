package store

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a document doesn't exist.
	ErrNotFound = errors.New("store: document not found")

	// ErrConflict is returned when creating a document whose (key, id) already exists.
	ErrConflict = errors.New("store: document already exists")

	// ErrPreconditionFailed is returned when a conditional write carries a stale version.
	ErrPreconditionFailed = errors.New("store: version mismatch")
)

// Status classifies the outcome of a store operation.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusConflict
	StatusPreconditionFailed
	StatusBadRequest
	StatusForbidden
	StatusTooManyRequests
	StatusUnavailable
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusConflict:
		return "conflict"
	case StatusPreconditionFailed:
		return "precondition_failed"
	case StatusBadRequest:
		return "bad_request"
	case StatusForbidden:
		return "forbidden"
	case StatusTooManyRequests:
		return "too_many_requests"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// HTTPStatus returns the HTTP status code the status corresponds to.
func (s Status) HTTPStatus() int {
	switch s {
	case StatusOK:
		return http.StatusOK
	case StatusNotFound:
		return http.StatusNotFound
	case StatusConflict:
		return http.StatusConflict
	case StatusPreconditionFailed:
		return http.StatusPreconditionFailed
	case StatusBadRequest:
		return http.StatusBadRequest
	case StatusForbidden:
		return http.StatusForbidden
	case StatusTooManyRequests:
		return http.StatusTooManyRequests
	case StatusUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// sentinel returns the package error matching s, or nil.
func (s Status) sentinel() error {
	switch s {
	case StatusNotFound:
		return ErrNotFound
	case StatusConflict:
		return ErrConflict
	case StatusPreconditionFailed:
		return ErrPreconditionFailed
	default:
		return nil
	}
}

// StatusError is the failure returned by Client implementations.
type StatusError struct {
	Status Status
	// Op is the failing operation: "read", "create" or "conditional_write".
	Op  string
	Err error
}

// NewError returns a StatusError for op. err may be nil.
func NewError(status Status, op string, err error) *StatusError {
	return &StatusError{Status: status, Op: op, Err: err}
}

func (e *StatusError) Error() string {
	msg := e.Status.String()
	if s := e.Status.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Op)
	}
	if e.Err != nil && e.Err != e.Status.sentinel() {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StatusError) Unwrap() error { return e.Err }

// Is makes a StatusError match the sentinel of its status.
func (e *StatusError) Is(target error) bool {
	s := e.Status.sentinel()
	return s != nil && target == s
}

// StatusCode returns the HTTP-equivalent status code.
func (e *StatusError) StatusCode() int { return e.Status.HTTPStatus() }

// StatusOf extracts the status of err. Bare sentinels are recognised;
// unclassified errors are StatusInternal.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	case errors.Is(err, ErrConflict):
		return StatusConflict
	case errors.Is(err, ErrPreconditionFailed):
		return StatusPreconditionFailed
	}
	return StatusInternal
}
