// SPDX-License-Identifier: MIT

package wlm

import (
	"fmt"
	"strconv"
)

// Measurement error values returned in place of a reading by the
// GetFrequency/GetWavelength family.
const (
	ErrNoValue             = 0
	ErrNoSignal            = -1
	ErrBadSignal           = -2
	ErrLowSignal           = -3
	ErrBigSignal           = -4
	ErrWlmMissing          = -5
	ErrNotAvailable        = -6
	InfNothingChanged      = -7
	ErrNoPulse             = -8
	ErrChannelNotAvailable = -10
	ErrDiv0                = -13
	ErrOutOfRange          = -14
	ErrUnitNotAvailable    = -15
)

// Temperature and pressure errors are offset from the measurement errors.
const (
	ErrTemperature      = -1000
	ErrTempNotMeasured  = ErrTemperature + ErrNoValue
	ErrTempNotAvailable = ErrTemperature + ErrNotAvailable
	ErrTempWlmMissing   = ErrTemperature + ErrWlmMissing
)

var errorNames = map[int]string{
	ErrNoValue:             "ErrNoValue",
	ErrNoSignal:            "ErrNoSignal",
	ErrBadSignal:           "ErrBadSignal",
	ErrLowSignal:           "ErrLowSignal",
	ErrBigSignal:           "ErrBigSignal",
	ErrWlmMissing:          "ErrWlmMissing",
	ErrNotAvailable:        "ErrNotAvailable",
	InfNothingChanged:      "InfNothingChanged",
	ErrNoPulse:             "ErrNoPulse",
	ErrChannelNotAvailable: "ErrChannelNotAvailable",
	ErrDiv0:                "ErrDiv0",
	ErrOutOfRange:          "ErrOutOfRange",
	ErrUnitNotAvailable:    "ErrUnitNotAvailable",
	ErrTempNotMeasured:     "ErrTempNotMeasured",
	ErrTempNotAvailable:    "ErrTempNotAvailable",
	ErrTempWlmMissing:      "ErrTempWlmMissing",
}

// ErrorString names a measurement error value.
func ErrorString(code int) string {
	if name, ok := errorNames[code]; ok {
		return name
	}
	return "unknown error " + strconv.Itoa(code)
}

// Return values of the Set* and Operation functions.
const (
	ResERRNoErr                          = 0
	ResERRWlmMissing                     = -1
	ResERRCouldNotSet                    = -2
	ResERRParmOutOfRange                 = -3
	ResERRWlmOutOfResources              = -4
	ResERRWlmInternalError               = -5
	ResERRNotAvailable                   = -6
	ResERRWlmBusy                        = -7
	ResERRNotInMeasurementMode           = -8
	ResERROnlyInMeasurementMode          = -9
	ResERRChannelNotAvailable            = -10
	ResERRChannelTemporarilyNotAvailable = -11
	ResERRCalOptionNotAvailable          = -12
	ResERRCalWavelengthOutOfRange        = -13
	ResERRBadCalibrationSignal           = -14
	ResERRUnitNotAvailable               = -15
)

var resultNames = map[int]string{
	ResERRNoErr:                          "ResERR_NoErr",
	ResERRWlmMissing:                     "ResERR_WlmMissing",
	ResERRCouldNotSet:                    "ResERR_CouldNotSet",
	ResERRParmOutOfRange:                 "ResERR_ParmOutOfRange",
	ResERRWlmOutOfResources:              "ResERR_WlmOutOfResources",
	ResERRWlmInternalError:               "ResERR_WlmInternalError",
	ResERRNotAvailable:                   "ResERR_NotAvailable",
	ResERRWlmBusy:                        "ResERR_WlmBusy",
	ResERRNotInMeasurementMode:           "ResERR_NotInMeasurementMode",
	ResERROnlyInMeasurementMode:          "ResERR_OnlyInMeasurementMode",
	ResERRChannelNotAvailable:            "ResERR_ChannelNotAvailable",
	ResERRChannelTemporarilyNotAvailable: "ResERR_ChannelTemporarilyNotAvailable",
	ResERRCalOptionNotAvailable:          "ResERR_CalOptionNotAvailable",
	ResERRCalWavelengthOutOfRange:        "ResERR_CalWavelengthOutOfRange",
	ResERRBadCalibrationSignal:           "ResERR_BadCalibrationSignal",
	ResERRUnitNotAvailable:               "ResERR_UnitNotAvailable",
}

// ResultString names a Set*/Operation return value.
func ResultString(code int) string {
	if name, ok := resultNames[code]; ok {
		return name
	}
	return "unknown result " + strconv.Itoa(code)
}

// Instantiate modes.
const (
	InstCheckForWLM     = -1
	InstResetCalc       = 0
	InstNotification    = 1
	InstCopyPattern     = 2
	InstControlWLM      = 3
	InstControlDelay    = 4
	InstControlPriority = 5
)

// ControlWLMEx actions.
const (
	CtrlWLMShow        = 0x0001
	CtrlWLMHide        = 0x0002
	CtrlWLMExit        = 0x0003
	CtrlWLMStore       = 0x0004
	CtrlWLMCompare     = 0x0005
	CtrlWLMWait        = 0x0010
	CtrlWLMStartSilent = 0x0020
	CtrlWLMSilent      = 0x0040
	CtrlWLMStartDelay  = 0x0080
)

// ControlWLMEx result flags.
const (
	FlServerStarted           = 0x00000001
	FlErrDeviceNotFound       = 0x00000002
	FlErrDriverError          = 0x00000004
	FlErrUSBError             = 0x00000008
	FlErrUnknownDeviceError   = 0x00000010
	FlErrWrongSN              = 0x00000020
	FlErrUnknownSN            = 0x00000040
	FlErrTemperatureError     = 0x00000080
	FlErrPressureError        = 0x00000100
	FlErrCancelledManually    = 0x00000200
	FlErrWLMBusy              = 0x00000400
	FlErrUnknownError         = 0x00001000
	FlNoInstalledVersionFound = 0x00002000
	FlDesiredVersionNotFound  = 0x00004000
	FlErrFileNotFound         = 0x00008000
	FlErrParmOutOfRange       = 0x00010000
	FlErrCouldNotSet          = 0x00020000
	FlErrEEPROMFailed         = 0x00040000
	FlErrFileFailed           = 0x00080000
	FlDeviceDataNewer         = 0x00100000
	FlFileDataNewer           = 0x00200000
	FlErrDeviceVersionOld     = 0x00400000
	FlErrFileVersionOld       = 0x00800000
	FlDeviceStampNewer        = 0x01000000
	FlFileStampNewer          = 0x02000000
)

// controlFlags is ordered by bit value so decoded names are stable.
var controlFlags = []struct {
	flag int
	name string
}{
	{FlServerStarted, "flServerStarted"},
	{FlErrDeviceNotFound, "flErrDeviceNotFound"},
	{FlErrDriverError, "flErrDriverError"},
	{FlErrUSBError, "flErrUSBError"},
	{FlErrUnknownDeviceError, "flErrUnknownDeviceError"},
	{FlErrWrongSN, "flErrWrongSN"},
	{FlErrUnknownSN, "flErrUnknownSN"},
	{FlErrTemperatureError, "flErrTemperatureError"},
	{FlErrPressureError, "flErrPressureError"},
	{FlErrCancelledManually, "flErrCancelledManually"},
	{FlErrWLMBusy, "flErrWLMBusy"},
	{FlErrUnknownError, "flErrUnknownError"},
	{FlNoInstalledVersionFound, "flNoInstalledVersionFound"},
	{FlDesiredVersionNotFound, "flDesiredVersionNotFound"},
	{FlErrFileNotFound, "flErrFileNotFound"},
	{FlErrParmOutOfRange, "flErrParmOutOfRange"},
	{FlErrCouldNotSet, "flErrCouldNotSet"},
	{FlErrEEPROMFailed, "flErrEEPROMFailed"},
	{FlErrFileFailed, "flErrFileFailed"},
	{FlDeviceDataNewer, "flDeviceDataNewer"},
	{FlFileDataNewer, "flFileDataNewer"},
	{FlErrDeviceVersionOld, "flErrDeviceVersionOld"},
	{FlErrFileVersionOld, "flErrFileVersionOld"},
	{FlDeviceStampNewer, "flDeviceStampNewer"},
	{FlFileStampNewer, "flFileStampNewer"},
}

// ControlResultStrings decodes a ControlWLMEx result into flag names.
// Unknown bits are reported in hex.
func ControlResultStrings(res int) []string {
	var names []string
	rest := res
	for _, f := range controlFlags {
		if res&f.flag != 0 {
			names = append(names, f.name)
			rest &^= f.flag
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("unknown flags 0x%x", rest))
	}
	return names
}

// Operation codes.
const (
	CtrlStopAll          = 0
	CtrlStartAdjustment  = 1
	CtrlStartMeasurement = 2
	CtrlStartRecord      = 4
	CtrlStartReplay      = 8
)

// Wavelength ranges of the multi-range WS6 units in use. They differ from
// the vendor documentation.
var WavelengthRange = map[string]int{
	"VIS_NIR": 6,
	"IR":      7,
}
