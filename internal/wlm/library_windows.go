// SPDX-License-Identifier: MIT

//go:build windows && cgo

package wlm

/*
#include <stdbool.h>
#include <stdint.h>

#ifdef _WIN64
#define WLMAPI
#else
#define WLMAPI __stdcall
#endif

typedef int32_t (WLMAPI *instantiate_fn)(int32_t, int32_t, intptr_t, int32_t);
typedef int32_t (WLMAPI *control_wlm_ex_fn)(int32_t, intptr_t, int32_t, int32_t, int32_t);
typedef int32_t (WLMAPI *long_long_fn)(int32_t);
typedef double (WLMAPI *double_double_fn)(double);
typedef double (WLMAPI *double_long_double_fn)(int32_t, double);
typedef int32_t (WLMAPI *long_ushort_fn)(uint16_t);
typedef uint16_t (WLMAPI *ushort_ushort_fn)(uint16_t);
typedef int32_t (WLMAPI *long_long_bool_fn)(int32_t, bool);

static int32_t call_instantiate(uintptr_t fn, int32_t rfc, int32_t mode, intptr_t p1, int32_t p2) {
	return ((instantiate_fn)fn)(rfc, mode, p1, p2);
}

static int32_t call_control_wlm_ex(uintptr_t fn, int32_t action, intptr_t app, int32_t ver, int32_t delay, int32_t res) {
	return ((control_wlm_ex_fn)fn)(action, app, ver, delay, res);
}

static int32_t call_long_long(uintptr_t fn, int32_t a) {
	return ((long_long_fn)fn)(a);
}

static double call_double_double(uintptr_t fn, double a) {
	return ((double_double_fn)fn)(a);
}

static double call_double_long_double(uintptr_t fn, int32_t a, double b) {
	return ((double_long_double_fn)fn)(a, b);
}

static int32_t call_long_ushort(uintptr_t fn, uint16_t a) {
	return ((long_ushort_fn)fn)(a);
}

static uint16_t call_ushort_ushort(uintptr_t fn, uint16_t a) {
	return ((ushort_ushort_fn)fn)(a);
}

static int32_t call_long_long_bool(uintptr_t fn, int32_t a, int b) {
	return ((long_long_bool_fn)fn)(a, b != 0);
}
*/
import "C"

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

const dllName = "wlmData.dll"

// dllLibrary calls wlmData.dll through cgo so that double arguments and
// return values use the C calling convention.
type dllLibrary struct {
	dll *windows.LazyDLL

	instantiate        uintptr
	controlWLMEx       uintptr
	getWLMVersion      uintptr
	getTemperature     uintptr
	getPressure        uintptr
	getFrequencyNum    uintptr
	operation          uintptr
	getOperationState  uintptr
	setExposureModeNum uintptr

	closeOnce sync.Once
}

// OpenLibrary loads wlmData.dll from the system directory, where the
// HighFinesse software installs it.
func OpenLibrary() (Library, error) {
	dll := windows.NewLazySystemDLL(dllName)
	if err := dll.Load(); err != nil {
		return nil, fmt.Errorf("%w: %w (is the HighFinesse software installed?)", ErrLibraryUnavailable, err)
	}

	l := &dllLibrary{dll: dll}
	procs := []struct {
		name string
		addr *uintptr
	}{
		{"Instantiate", &l.instantiate},
		{"ControlWLMEx", &l.controlWLMEx},
		{"GetWLMVersion", &l.getWLMVersion},
		{"GetTemperature", &l.getTemperature},
		{"GetPressure", &l.getPressure},
		{"GetFrequencyNum", &l.getFrequencyNum},
		{"Operation", &l.operation},
		{"GetOperationState", &l.getOperationState},
		{"SetExposureModeNum", &l.setExposureModeNum},
	}
	for _, p := range procs {
		proc := dll.NewProc(p.name)
		if err := proc.Find(); err != nil {
			_ = l.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrLibraryUnavailable, p.name, err)
		}
		*p.addr = proc.Addr()
	}
	return l, nil
}

func (l *dllLibrary) Instantiate(rfc, mode int32, p1 uintptr, p2 int32) int32 {
	return int32(C.call_instantiate(C.uintptr_t(l.instantiate), C.int32_t(rfc), C.int32_t(mode), C.intptr_t(p1), C.int32_t(p2)))
}

func (l *dllLibrary) ControlWLMEx(action int32, app uintptr, ver, delay, res int32) int32 {
	return int32(C.call_control_wlm_ex(C.uintptr_t(l.controlWLMEx), C.int32_t(action), C.intptr_t(app), C.int32_t(ver), C.int32_t(delay), C.int32_t(res)))
}

func (l *dllLibrary) GetWLMVersion(ver int32) int32 {
	return int32(C.call_long_long(C.uintptr_t(l.getWLMVersion), C.int32_t(ver)))
}

func (l *dllLibrary) GetTemperature(t float64) float64 {
	return float64(C.call_double_double(C.uintptr_t(l.getTemperature), C.double(t)))
}

func (l *dllLibrary) GetPressure(p float64) float64 {
	return float64(C.call_double_double(C.uintptr_t(l.getPressure), C.double(p)))
}

func (l *dllLibrary) GetFrequencyNum(ch int32, f float64) float64 {
	return float64(C.call_double_long_double(C.uintptr_t(l.getFrequencyNum), C.int32_t(ch), C.double(f)))
}

func (l *dllLibrary) Operation(op uint16) int32 {
	return int32(C.call_long_ushort(C.uintptr_t(l.operation), C.uint16_t(op)))
}

func (l *dllLibrary) GetOperationState(s uint16) uint16 {
	return uint16(C.call_ushort_ushort(C.uintptr_t(l.getOperationState), C.uint16_t(s)))
}

func (l *dllLibrary) SetExposureModeNum(ch int32, auto bool) int32 {
	b := 0
	if auto {
		b = 1
	}
	return int32(C.call_long_long_bool(C.uintptr_t(l.setExposureModeNum), C.int32_t(ch), C.int(b)))
}

func (l *dllLibrary) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if h := l.dll.Handle(); h != 0 {
			err = windows.FreeLibrary(windows.Handle(h))
		}
	})
	return err
}
