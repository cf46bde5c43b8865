// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wavemeterFrequency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ndsp_wavemeter_frequency_hz",
		Help: "Last frequency measured per channel in Hz (0 when the reading is not OKAY)",
	}, []string{"channel"})

	wavemeterReadings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndsp_wavemeter_readings_total",
		Help: "Frequency readings per channel by measurement status",
	}, []string{"channel", "status"}) // status=OKAY|UNDER_EXPOSED|OVER_EXPOSED|ERROR

	wavemeterTemperature = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ndsp_wavemeter_temperature_celsius",
		Help: "Last temperature reported by the wavemeter",
	})

	wavemeterPressure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ndsp_wavemeter_pressure_mbar",
		Help: "Last internal pressure reported by the wavemeter",
	})

	monitorPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndsp_monitor_polls_total",
		Help: "Monitor poll cycles by outcome",
	}, []string{"outcome"}) // outcome=success|failure|skipped

	monitorSinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ndsp_monitor_sink_errors_total",
		Help: "Failures writing a snapshot to a sink",
	}, []string{"sink"})
)

// RecordFrequency stores the latest reading for a channel.
func RecordFrequency(channel int, status string, hz float64) {
	ch := strconv.Itoa(channel)
	wavemeterFrequency.WithLabelValues(ch).Set(hz)
	wavemeterReadings.WithLabelValues(ch, status).Inc()
}

// SetTemperature stores the latest temperature in degrees Celsius.
func SetTemperature(c float64) { wavemeterTemperature.Set(c) }

// SetPressure stores the latest pressure in mbar.
func SetPressure(mbar float64) { wavemeterPressure.Set(mbar) }

// RecordMonitorPoll counts a poll cycle outcome.
func RecordMonitorPoll(outcome string) {
	monitorPolls.WithLabelValues(outcome).Inc()
}

// RecordSinkError counts a failed sink write.
func RecordSinkError(sink string) {
	monitorSinkErrors.WithLabelValues(sink).Inc()
}
