// SPDX-License-Identifier: MIT

//go:build !windows || !cgo

package wlm

// OpenLibrary is only supported on Windows builds with cgo enabled.
func OpenLibrary() (Library, error) {
	return nil, ErrLibraryUnavailable
}
