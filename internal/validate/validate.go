// SPDX-License-Identifier: MIT

// Package validate collects configuration problems so that one run reports
// all of them instead of stopping at the first.
package validate

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Error is one rejected field.
type Error struct {
	Field   string // dotted YAML path, e.g. "monitor.channels"
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError is the combined result of a validation run.
type ValidationError struct {
	errors []Error
}

// Errors returns the individual problems in the order they were found.
func (e ValidationError) Errors() []Error { return e.errors }

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validator accumulates problems. The zero value is not usable; call New.
type Validator struct {
	errors []Error
}

func New() *Validator {
	return &Validator{errors: []Error{}}
}

// Add records a problem unconditionally.
func (v *Validator) Add(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

// Require records message for field unless ok holds.
func (v *Validator) Require(ok bool, field, message string, value any) {
	if !ok {
		v.Add(field, message, value)
	}
}

// IsValid reports whether nothing has been recorded.
func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

// Errors returns the problems recorded so far.
func (v *Validator) Errors() []Error { return v.errors }

// Err returns a snapshot of the problems as a ValidationError, or nil.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

// Port checks a TCP port in 1..65535.
func (v *Validator) Port(field string, port int) {
	v.Require(port > 0 && port <= 65535, field,
		fmt.Sprintf("port must be between 1 and 65535, got %d", port), port)
}

// HostPort checks a "host:port" address. The host may be empty; port 0 is
// accepted only for listen addresses (allowZeroPort).
func (v *Validator) HostPort(field, addr string, allowZeroPort bool) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.Add(field, fmt.Sprintf("invalid address: %v", err), addr)
		return
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 || (n == 0 && !allowZeroPort) {
		v.Add(field, fmt.Sprintf("invalid port %q", port), addr)
	}
}

// Range checks minVal <= value <= maxVal.
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	v.Require(value >= minVal && value <= maxVal, field,
		fmt.Sprintf("value must be between %d and %d, got %d", minVal, maxVal, value), value)
}

// Fraction checks 0 <= value <= 1.
func (v *Validator) Fraction(field string, value float64) {
	v.Require(value >= 0 && value <= 1, field,
		fmt.Sprintf("value must be between 0 and 1, got %g", value), value)
}

// NotEmpty rejects empty and whitespace-only strings.
func (v *Validator) NotEmpty(field, value string) {
	v.Require(strings.TrimSpace(value) != "", field, "value cannot be empty", value)
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	v.Require(slices.Contains(allowed, value), field,
		fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
}

func (v *Validator) Positive(field string, value int) {
	v.Require(value > 0, field, fmt.Sprintf("value must be positive, got %d", value), value)
}

func (v *Validator) NonNegative(field string, value int) {
	v.Require(value >= 0, field, fmt.Sprintf("value cannot be negative, got %d", value), value)
}

func (v *Validator) NonNegativeFloat(field string, value float64) {
	v.Require(value >= 0, field, fmt.Sprintf("value cannot be negative, got %g", value), value)
}

func (v *Validator) PositiveDuration(field string, d time.Duration) {
	v.Require(d > 0, field, fmt.Sprintf("duration must be positive, got %s", d), d)
}

// Channels checks a non-empty list of distinct channel numbers in 1..maxChannel.
func (v *Validator) Channels(field string, channels []int, maxChannel int) {
	v.Require(len(channels) > 0, field, "at least one channel is required", channels)
	seen := make(map[int]bool, len(channels))
	for _, ch := range channels {
		v.Range(field, ch, 1, maxChannel)
		v.Require(!seen[ch], field, fmt.Sprintf("duplicate channel %d", ch), channels)
		seen[ch] = true
	}
}

// LogLevel checks a zerolog level name. Empty selects the default.
func (v *Validator) LogLevel(field, level string) {
	if level == "" {
		return
	}
	_, err := zerolog.ParseLevel(level)
	v.Require(err == nil, field, "invalid log level (trace, debug, info, warn, error, fatal, panic)", level)
}
