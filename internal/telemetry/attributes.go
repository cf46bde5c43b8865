// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across the process.
const (
	RPCSystemKey  = "rpc.system"
	RPCServiceKey = "rpc.service"
	RPCMethodKey  = "rpc.method"
	RPCStatusKey  = "rpc.status"
	RPCConnIDKey  = "rpc.conn_id"

	WavemeterChannelKey = "wavemeter.channel"
	WavemeterStatusKey  = "wavemeter.status"

	MonitorChannelsKey = "monitor.channels"
	MonitorSinkKey     = "monitor.sink"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// RPCSystem is the value reported for rpc.system.
const RPCSystem = "pc_rpc"

// RPCAttributes describes a single RPC invocation.
func RPCAttributes(target, method, connID string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(RPCSystemKey, RPCSystem),
		attribute.String(RPCServiceKey, target),
		attribute.String(RPCMethodKey, method),
	}
	if connID != "" {
		attrs = append(attrs, attribute.String(RPCConnIDKey, connID))
	}
	return attrs
}

// ReadingAttributes describes one wavemeter channel reading.
func ReadingAttributes(channel int, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(WavemeterChannelKey, channel),
		attribute.String(WavemeterStatusKey, status),
	}
}

// PollAttributes describes one monitor cycle.
func PollAttributes(channels int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(MonitorChannelsKey, channels),
	}
}

// ErrorAttributes marks a span as failed with the given error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
