// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ndsp_breaker_state",
		Help: "Circuit breaker state per guarded dependency: 0 closed, 1 half-open, 2 open",
	}, []string{"component"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndsp_breaker_trips_total",
		Help: "Transitions into the open state per guarded dependency",
	}, []string{"component", "reason"}) // reason=threshold|probe_failed
)

// SetBreakerState publishes the breaker state of a component. Unknown
// states are reported as open.
func SetBreakerState(component, state string) {
	v := 2.0
	switch state {
	case "closed":
		v = 0
	case "half-open":
		v = 1
	}
	breakerState.WithLabelValues(component).Set(v)
}

// RecordBreakerTrip counts a breaker opening.
func RecordBreakerTrip(component, reason string) {
	breakerTrips.WithLabelValues(component, reason).Inc()
}
