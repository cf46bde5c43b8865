// SPDX-License-Identifier: MIT

package wlm

// Library is the subset of the wlmData interface used by the driver.
// Argument and return types follow the vendor header.
type Library interface {
	Instantiate(rfc, mode int32, p1 uintptr, p2 int32) int32
	ControlWLMEx(action int32, app uintptr, ver, delay, res int32) int32
	GetWLMVersion(ver int32) int32
	GetTemperature(t float64) float64
	GetPressure(p float64) float64
	GetFrequencyNum(ch int32, f float64) float64
	Operation(op uint16) int32
	GetOperationState(s uint16) uint16
	SetExposureModeNum(ch int32, auto bool) int32
	Close() error
}
