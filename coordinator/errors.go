package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacentio/occ/store"
)

// FailureKind classifies why an invocation did not succeed (or why a single
// step failed, for the retryable kinds).
type FailureKind int

const (
	// None means no failure has been recorded.
	None FailureKind = iota

	// InvalidArgument means the key or id was rejected before any store call.
	InvalidArgument

	// NotFound means the document doesn't exist where the flow requires one.
	NotFound

	// VersionMismatch means a conditional write carried a stale version.
	// Retryable within the bounded budget.
	VersionMismatch

	// CreationConflict means a create raced with a concurrent creator.
	// Triggers one fallback read outside the bounded budget.
	CreationConflict

	// RetriesExhausted means every allowed write attempt hit a version mismatch.
	RetriesExhausted

	// Cancelled means the context was done at a suspension point.
	Cancelled

	// Fatal covers every other store failure and mutation errors.
	Fatal
)

func (k FailureKind) String() string {
	switch k {
	case None:
		return "none"
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case VersionMismatch:
		return "version_mismatch"
	case CreationConflict:
		return "creation_conflict"
	case RetriesExhausted:
		return "retries_exhausted"
	case Cancelled:
		return "cancelled"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("FailureKind(%d)", int(k))
	}
}

// Sentinels matching *Error by kind with errors.Is.
var (
	ErrInvalidArgument  = errors.New("coordinator: invalid argument")
	ErrNotFound         = errors.New("coordinator: document not found")
	ErrCreationConflict = errors.New("coordinator: creation conflict")
	ErrRetriesExhausted = errors.New("coordinator: retries exhausted")
	ErrCancelled        = errors.New("coordinator: cancelled")
	ErrFatal            = errors.New("coordinator: fatal store failure")
)

func (k FailureKind) sentinel() error {
	switch k {
	case InvalidArgument:
		return ErrInvalidArgument
	case NotFound:
		return ErrNotFound
	case CreationConflict:
		return ErrCreationConflict
	case RetriesExhausted:
		return ErrRetriesExhausted
	case Cancelled:
		return ErrCancelled
	case Fatal:
		return ErrFatal
	default:
		return nil
	}
}

// Error is the terminal failure of ApplyMutation.
type Error struct {
	Kind FailureKind

	// Status is the store status of the failing call, StatusOK if none was made.
	Status store.Status

	// State is the retry state at termination.
	State RetryState

	// Version is the last version token observed, empty if nothing was read.
	Version store.Version

	// Document is the last document read, for RetriesExhausted and Fatal
	// write failures. Zero otherwise.
	Document store.Document

	// Err is the underlying cause: the store error, the mutation error or the
	// context error.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("coordinator: %s", e.Kind)
	if e.Document.ID != "" {
		msg += " " + e.Document.Ref()
	}
	if e.State.Attempt > 0 {
		msg += fmt.Sprintf(" after %d/%d attempts", e.State.Attempt, e.State.MaxAttempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind. Cancelled errors also match
// their context error through Unwrap.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the failure kind of err: None for nil, Cancelled for bare
// context errors and Fatal for anything else that isn't an *Error.
func KindOf(err error) FailureKind {
	if err == nil {
		return None
	}
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	return Fatal
}

// StatusOf returns the store status carried by err.
func StatusOf(err error) store.Status {
	var coordErr *Error
	if errors.As(err, &coordErr) {
		return coordErr.Status
	}
	return store.StatusOf(err)
}
