// Package apperr defines the error kinds surfaced by DevScript operations.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for reporting and exit handling.
type Kind int

const (
	// KindUnknown is any error that was not classified.
	KindUnknown Kind = iota

	// KindConfigMissing means a required setting (API key, cached state) is absent.
	KindConfigMissing

	// KindNetworkFailure means the remote API or model could not be reached.
	KindNetworkFailure

	// KindInvalidResponse means the remote side answered with something unusable.
	KindInvalidResponse

	// KindExecutionFailure means generated code could not be run to completion.
	KindExecutionFailure

	// KindFileNotFound means a user-supplied path does not exist.
	KindFileNotFound
)

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfigMissing:
		return "config_missing"
	case KindNetworkFailure:
		return "network_failure"
	case KindInvalidResponse:
		return "invalid_response"
	case KindExecutionFailure:
		return "execution_failure"
	case KindFileNotFound:
		return "file_not_found"
	default:
		return "unknown"
	}
}

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// New creates an Error with a message and no cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap creates an Error around a cause. A nil cause yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrapf creates an Error around a cause with an extra message.
func Wrapf(kind Kind, op string, err error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	switch {
	case msg != "" && e.Err != nil:
		msg = msg + ": " + e.Err.Error()
	case msg == "" && e.Err != nil:
		msg = e.Err.Error()
	case msg == "":
		msg = e.Kind.String()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that errors.Is(err, apperr.ConfigMissing) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ConfigMissing    = &Error{Kind: KindConfigMissing}
	NetworkFailure   = &Error{Kind: KindNetworkFailure}
	InvalidResponse  = &Error{Kind: KindInvalidResponse}
	ExecutionFailure = &Error{Kind: KindExecutionFailure}
	FileNotFound     = &Error{Kind: KindFileNotFound}
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
