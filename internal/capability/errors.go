package capability

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed capability call.
type Kind string

const (
	KindUnavailable     Kind = "unavailable"
	KindTimeout         Kind = "timeout"
	KindEmptyGeneration Kind = "empty_generation"
	KindContextBinding  Kind = "context_binding"
	KindCanceled        Kind = "canceled"
)

// Error is returned by every failed Invoke. Match a kind with errors.Is
// against the sentinels below, or extract details with errors.As.
type Error struct {
	Kind     Kind
	Task     string
	Provider string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("capability %s", e.Kind)
	if e.Task != "" {
		msg += fmt.Sprintf(" (task %s)", e.Task)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Task == "" && t.Err == nil
}

var (
	// ErrUnavailable covers provider, network and auth failures, and calls
	// rejected by an open circuit.
	ErrUnavailable = &Error{Kind: KindUnavailable}
	// ErrTimeout means the call exceeded its configured bound.
	ErrTimeout = &Error{Kind: KindTimeout}
	// ErrEmptyGeneration means the provider answered with blank text.
	ErrEmptyGeneration = &Error{Kind: KindEmptyGeneration}
	// ErrContextBinding means a task placeholder had no value.
	ErrContextBinding = &Error{Kind: KindContextBinding}
	// ErrCanceled means the caller abandoned the call.
	ErrCanceled = &Error{Kind: KindCanceled}
)

// KindOf returns the capability kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}

// classify maps a provider failure onto a kind. parent is the caller's
// context; call is the per-call context carrying the timeout.
func classify(parent, call context.Context, err error) Kind {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return KindCanceled
	case errors.Is(parent.Err(), context.DeadlineExceeded),
		errors.Is(call.Err(), context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnavailable
	}
}
