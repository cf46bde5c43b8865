// SPDX-License-Identifier: MIT

package wlm

import (
	"errors"
	"fmt"
)

var (
	// ErrLibraryUnavailable is returned when wlmData.dll cannot be loaded.
	ErrLibraryUnavailable = errors.New("wlm: wlmData library unavailable")

	// ErrClosed is returned by driver calls after Close.
	ErrClosed = errors.New("wlm: driver closed")

	// ErrInvalidChannel is returned for channel numbers below 1.
	ErrInvalidChannel = errors.New("wlm: invalid channel")
)

// Error is a failure reported by the wavemeter or its interface library.
// RPC clients see it as WLMException.
type Error struct {
	Msg  string
	Code int
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// ExceptionClass reports the exception class used on the RPC wire.
func (e *Error) ExceptionClass() string { return "WLMException" }

func newError(code int, format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...), Code: code}
}
