package video

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced while opening, decoding or comparing
// videos matches exactly one of these with errors.Is.
var (
	ErrIO                    = errors.New("io error")
	ErrHeaderParse           = errors.New("header parse error")
	ErrDecode                = errors.New("decode error")
	ErrDimensionMismatch     = errors.New("dimension mismatch")
	ErrUnsupportedColorSpace = errors.New("unsupported color space")
)

// Error carries the kind of a failure together with the operation and file
// that triggered it.
//
// Both the kind sentinel and the underlying cause are reachable through
// errors.Is and errors.As, so callers can test for ErrDecode and for
// io.ErrUnexpectedEOF on the same value.
type Error struct {
	Kind error  // One of the Err* sentinels above.
	Op   string // Operation that failed, e.g. "open" or "next".
	Path string // File involved, empty when not applicable.
	Err  error  // Underlying cause, may be nil.
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError wraps err as a failure of the given kind.
func NewError(kind error, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf builds an Error of the given kind whose cause is a formatted
// message.
func Errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
