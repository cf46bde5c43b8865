// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ndsp_rpc_connections_active",
		Help: "Number of open RPC client connections",
	})

	rpcConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndsp_rpc_connections_total",
		Help: "RPC connections by handshake outcome",
	}, []string{"outcome"}) // outcome=accepted|bad_handshake|unknown_target

	rpcCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndsp_rpc_calls_total",
		Help: "RPC requests by target, method and status",
	}, []string{"target", "method", "status"}) // status=ok|failed

	rpcCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ndsp_rpc_call_duration_seconds",
		Help:    "RPC method execution time in seconds, including time spent waiting for the call lock",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"target", "method"})
)

// RPCConnectionOpened tracks a new client connection.
func RPCConnectionOpened() { rpcConnectionsActive.Inc() }

// RPCConnectionClosed tracks a client connection going away.
func RPCConnectionClosed() { rpcConnectionsActive.Dec() }

// RecordRPCHandshake counts the outcome of a connection handshake.
func RecordRPCHandshake(outcome string) {
	rpcConnectionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRPCCall records one processed RPC request.
func ObserveRPCCall(target, method, status string, d time.Duration) {
	rpcCallsTotal.WithLabelValues(target, method, status).Inc()
	rpcCallDuration.WithLabelValues(target, method).Observe(d.Seconds())
}
