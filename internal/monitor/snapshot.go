// SPDX-License-Identifier: MIT

package monitor

import (
	"time"

	"github.com/jbqubit/ndsp-highfinesse/internal/pyon"
	"github.com/jbqubit/ndsp-highfinesse/internal/wlm"
)

// Snapshot is the result of one poll cycle.
type Snapshot struct {
	Time         time.Time     `json:"time"`
	Readings     []wlm.Reading `json:"readings"`
	TemperatureC *float64      `json:"temperature_c,omitempty"`
	PressureMbar *float64      `json:"pressure_mbar,omitempty"`
}

// Reading returns the reading of one channel.
func (s Snapshot) Reading(ch int) (wlm.Reading, bool) {
	for _, r := range s.Readings {
		if r.Channel == ch {
			return r, true
		}
	}
	return wlm.Reading{}, false
}

// MarshalPyon renders the snapshot for RPC clients. Statuses are sent as
// their integer values, like get_frequency.
func (s Snapshot) MarshalPyon() (any, error) {
	readings := make([]any, 0, len(s.Readings))
	for _, r := range s.Readings {
		readings = append(readings, map[string]any{
			"channel":   r.Channel,
			"status":    int(r.Status),
			"frequency": r.Hz,
		})
	}
	return map[string]any{
		"timestamp":   float64(s.Time.UnixNano()) / 1e9,
		"readings":    readings,
		"temperature": floatOrNone(s.TemperatureC),
		"pressure":    floatOrNone(s.PressureMbar),
	}, nil
}

var _ pyon.Marshaler = Snapshot{}

func floatOrNone(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
