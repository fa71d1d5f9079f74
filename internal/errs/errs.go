// Package errs provides the tagged error type returned by every feedme
// component. Callers branch on the kind with errors.Is:
//
//	if errors.Is(err, errs.Security) { ... }
package errs

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
)

// Kind classifies an error. A Kind is itself an error so it can be used as
// an errors.Is target.
type Kind string

const (
	IO         Kind = "io error"
	NotFound   Kind = "not found"
	Parse      Kind = "parse error"
	Security   Kind = "security error"
	Encoding   Kind = "encoding error"
	Range      Kind = "range error"
	Format     Kind = "format error"
	HashConfig Kind = "hash config error"
	Config     Kind = "config error"
	External   Kind = "external tool error"
)

func (k Kind) Error() string { return string(k) }

var traces atomic.Bool

// CaptureTraces toggles stack capture for errors created afterwards.
func CaptureTraces(enabled bool) {
	traces.Store(enabled)
}

// Error is a described failure of a given kind with an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	stack []uintptr
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return newError(kind, nil, fmt.Sprintf(format, args...))
}

// Wrap creates an error of the given kind caused by err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return newError(kind, err, fmt.Sprintf(format, args...))
}

func newError(kind Kind, cause error, msg string) *Error {
	e := &Error{Kind: kind, Msg: msg, Err: cause}
	if traces.Load() {
		pcs := make([]uintptr, 32)
		n := runtime.Callers(3, pcs)
		e.stack = pcs[:n]
	}
	return e
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Trace renders the captured stack, or "" when capture was disabled.
func (e *Error) Trace() string {
	if len(e.stack) == 0 {
		return ""
	}
	var b strings.Builder
	frames := runtime.CallersFrames(e.stack)
	for {
		f, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Trace returns the first captured stack found in err's chain.
func Trace(err error) string {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if t := e.Trace(); t != "" {
				return t
			}
		}
		err = errors.Unwrap(err)
	}
	return ""
}
