// SPDX-License-Identifier: MIT

// Package pyon encodes and decodes the "Python object notation" that sipyco
// peers exchange on RPC connections.
//
// Values map onto Go as follows:
//
//	null / None        nil
//	true / false       bool
//	int                int64
//	float, inf, nan    float64
//	'str' / "str"      string
//	[a, b]             []any
//	(a, b)             Tuple
//	{"k": v}           map[string]any
//	{a, b} / set()     Set
//
// Only string dictionary keys are supported.
package pyon

import (
	"errors"
	"fmt"
)

// maxDepth bounds container nesting in both directions.
const maxDepth = 64

// Tuple is an immutable Python sequence. It encodes as "(a, b)".
type Tuple []any

// Set is an unordered Python collection. It encodes as "{a, b}" or "set()".
type Set []any

// Marshaler is implemented by types that render themselves as another
// encodable value.
type Marshaler interface {
	MarshalPyon() (any, error)
}

var (
	// ErrUnsupportedType is returned by Encode for Go values with no pyon form.
	ErrUnsupportedType = errors.New("pyon: unsupported type")

	// ErrTooDeep is returned when nesting exceeds the supported depth.
	ErrTooDeep = errors.New("pyon: nesting too deep")
)

// SyntaxError describes malformed pyon input.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("pyon: %s at offset %d", e.Msg, e.Offset)
}
