// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldConnID    = "conn_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// RPC fields
	FieldTarget = "target"
	FieldMethod = "method"
	FieldAction = "action"

	// Instrument fields
	FieldChannel   = "channel"
	FieldStatus    = "status"
	FieldFrequency = "frequency_hz"

	// Network fields
	FieldAddr       = "addr"
	FieldRemoteAddr = "remote_addr"
	FieldPath       = "path"
)
