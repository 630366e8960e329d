// File: mserrors/errors.go
// Author: clustersched
//
// Package mserrors defines the structured error type shared by the
// channel and messaging packages: a kind, a message, and an optional
// wrapped cause, covering the error surfaces this transport's operations
// can produce.
package mserrors

import "fmt"

// Kind identifies which part of the transport's contract was violated.
type Kind int

const (
	// NotReady: operation attempted on a channel whose socket is not open.
	NotReady Kind = iota
	// Resolve: hostname resolution or candidate exhaustion.
	Resolve
	// Connect: all candidate addresses refused the connection.
	Connect
	// ShortIO: write or read returned fewer bytes than demanded, no OS error.
	ShortIO
	// Transport: underlying OS error during read or write.
	Transport
	// EOF: remote closed cleanly mid-frame.
	EOF
	// Framing: length prefix decoded to zero or an absurd value.
	Framing
	// Parse: envelope refused the payload bytes.
	Parse
	// Usage: programming error (bad index, duplicate async receive, ...).
	Usage
)

func (k Kind) String() string {
	switch k {
	case NotReady:
		return "not-ready"
	case Resolve:
		return "resolve"
	case Connect:
		return "connect"
	case ShortIO:
		return "short-io"
	case Transport:
		return "transport"
	case EOF:
		return "eof"
	case Framing:
		return "framing"
	case Parse:
		return "parse"
	case Usage:
		return "usage"
	default:
		return "unknown"
	}
}

// Error is the structured error returned across the transport's public
// operations. It wraps an underlying cause (if any) and carries the kind
// so callers can branch on its Kind field without string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error around a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, mserrors.New(mserrors.NotReady, "")).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}
