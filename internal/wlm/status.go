// SPDX-License-Identifier: MIT

package wlm

import (
	"fmt"
	"strconv"
)

// MeasurementStatus qualifies a frequency reading.
type MeasurementStatus int

const (
	StatusOkay MeasurementStatus = iota
	StatusUnderExposed
	StatusOverExposed
	StatusError
)

var statusNames = [...]string{"OKAY", "UNDER_EXPOSED", "OVER_EXPOSED", "ERROR"}

func (s MeasurementStatus) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "MeasurementStatus(" + strconv.Itoa(int(s)) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (s MeasurementStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *MeasurementStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if string(text) == name {
			*s = MeasurementStatus(i)
			return nil
		}
	}
	return fmt.Errorf("wlm: unknown measurement status %q", text)
}

// OperationState is the acquisition state reported by GetOperationState.
type OperationState uint16

const (
	StateStop OperationState = iota
	StateAdjustment
	StateMeasurement
)

func (s OperationState) String() string {
	switch s {
	case StateStop:
		return "stop"
	case StateAdjustment:
		return "adjustment"
	case StateMeasurement:
		return "measurement"
	default:
		return "OperationState(" + strconv.Itoa(int(s)) + ")"
	}
}

// Reading is one frequency measurement.
type Reading struct {
	Channel int               `json:"channel"`
	Status  MeasurementStatus `json:"status"`
	Hz      float64           `json:"frequency_hz"`
}

// Version identifies the connected wavemeter.
type Version struct {
	Model   int
	HWRev   int
	FWRev   int
	FWBuild int
}

func (v Version) String() string {
	return "WLM " + strconv.Itoa(v.Model) + " rev " + strconv.Itoa(v.HWRev) +
		", firmware " + strconv.Itoa(v.FWRev) + "." + strconv.Itoa(v.FWBuild)
}
