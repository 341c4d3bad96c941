package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers and for user-visible reporting.
// Kinds are stable strings, never language-specific error types.
type Kind string

const (
	KindInvalidInput    Kind = "invalid-input"
	KindPlanInvalidJSON Kind = "plan-invalid-json"
	KindPlanShape       Kind = "plan-shape-invalid"
	KindDuplicateTool   Kind = "duplicate-tool"
	KindToolNotFound    Kind = "tool-not-found"
	KindToolFailed      Kind = "tool-failed"
	KindTimeout         Kind = "timeout"
	KindAborted         Kind = "aborted"
	KindApprovalDenied  Kind = "approval-denied"
	KindSynthesisFailed Kind = "synthesis-failed"
	KindInternal        Kind = "internal"
)

// KindError attaches a Kind to an underlying error.
type KindError struct {
	Kind Kind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// New creates a kinded error from a format string.
func New(kind Kind, format string, args ...any) error {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error. A nil err yields nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// KindOf walks the error chain and returns the first attached Kind,
// or KindInternal when none is found.
func KindOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindInternal
}

// HasKind reports whether err carries the given kind anywhere in its chain.
func HasKind(err error, kind Kind) bool {
	var ke *KindError
	return errors.As(err, &ke) && ke.Kind == kind
}
