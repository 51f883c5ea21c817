package conversation

import (
	"errors"
	"fmt"
)

// Kind classifies a turn failure. Every kind is recoverable: the session
// keeps its state and the requester may try again.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindAdapter    Kind = "adapter"
	KindStore      Kind = "store"
	KindUnexpected Kind = "unexpected"
)

// Error carries the reply shown to the requester alongside the cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("conversation: %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("conversation: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Reply returns the text to send back for this failure.
func (e *Error) Reply() string {
	if e.Msg != "" {
		return e.Msg
	}
	switch e.Kind {
	case KindValidation:
		return msgInvalidInput
	case KindNotFound:
		return msgNoAvailability
	case KindAdapter:
		return msgRecommendRetry
	default:
		return msgApology
	}
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// AsError classifies err, treating anything that is not an *Error as
// unexpected.
func AsError(err error) *Error {
	var convErr *Error
	if errors.As(err, &convErr) {
		return convErr
	}
	return newError(KindUnexpected, "", err)
}
