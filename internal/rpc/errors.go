// SPDX-License-Identifier: MIT

package rpc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrLineTooLong is returned when a peer sends a line above the size limit.
	ErrLineTooLong = errors.New("rpc: line too long")

	// ErrBadHandshake is returned when the peer does not speak pc_rpc.
	ErrBadHandshake = errors.New("rpc: incorrect handshake")

	// ErrUnknownTarget is returned when selecting a target the server does not expose.
	ErrUnknownTarget = errors.New("rpc: unknown target")

	// ErrNoTarget is returned by client calls made before a target was selected.
	ErrNoTarget = errors.New("rpc: no target selected")

	// ErrAmbiguousTarget is returned by AutoTarget when the server exposes several targets.
	ErrAmbiguousTarget = errors.New("rpc: server exposes more than one target")

	// ErrServerClosed is returned by Serve after Shutdown.
	ErrServerClosed = errors.New("rpc: server closed")

	// ErrNoListeners is returned when none of the bind addresses could be bound.
	ErrNoListeners = errors.New("rpc: no address could be bound")

	// ErrClientClosed is returned by client calls after Close, or after a
	// failed exchange left the connection out of step with the server.
	ErrClientClosed = errors.New("rpc: client connection closed")

	// ErrMalformedReply is returned by the client for replies it cannot interpret.
	ErrMalformedReply = errors.New("rpc: malformed reply")
)

// Exception is implemented by errors that carry the class name reported to
// RPC clients. Errors without a class are reported as "Exception".
type Exception interface {
	error
	ExceptionClass() string
}

// Fault is an error raised by the RPC layer or by a method handler with an
// explicit exception class.
type Fault struct {
	Class   string
	Message string
}

func (f *Fault) Error() string { return f.Message }

// ExceptionClass implements Exception.
func (f *Fault) ExceptionClass() string { return f.Class }

// TypeError reports a call whose arguments do not match the method.
func TypeError(format string, args ...any) *Fault {
	return &Fault{Class: "TypeError", Message: fmt.Sprintf(format, args...)}
}

// ValueError reports an argument with the right type but a bad value.
func ValueError(format string, args ...any) *Fault {
	return &Fault{Class: "ValueError", Message: fmt.Sprintf(format, args...)}
}

// AttributeError reports a call to a method the target does not have.
func AttributeError(format string, args ...any) *Fault {
	return &Fault{Class: "AttributeError", Message: fmt.Sprintf(format, args...)}
}

// RemoteError is a failure reported by the server for a call.
type RemoteError struct {
	Class     string
	Message   string
	Traceback []string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Class, e.Message)
}

// ExceptionClass implements Exception so remote failures keep their class
// when relayed.
func (e *RemoteError) ExceptionClass() string { return e.Class }

// FormatTraceback joins the remote traceback lines.
func (e *RemoteError) FormatTraceback() string {
	return strings.Join(e.Traceback, "")
}

func exceptionClass(err error) string {
	var exc Exception
	if errors.As(err, &exc) {
		if c := exc.ExceptionClass(); c != "" {
			return c
		}
	}
	return "Exception"
}
