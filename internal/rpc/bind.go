// SPDX-License-Identifier: MIT

package rpc

import (
	"errors"
	"slices"
)

// ErrNoBindAddress is returned when localhost binding is disabled and no
// other address was given.
var ErrNoBindAddress = errors.New("rpc: no bind address: --no-localhost-bind requires at least one --bind")

// AllInterfaces is the bind value that listens everywhere.
const AllInterfaces = "*"

// ResolveBind turns --bind / --no-localhost-bind into the hosts to listen
// on. The empty string stands for all interfaces.
func ResolveBind(binds []string, noLocalhost bool) ([]string, error) {
	if slices.Contains(binds, AllInterfaces) {
		return []string{""}, nil
	}
	var hosts []string
	if !noLocalhost {
		hosts = append(hosts, "127.0.0.1", "::1")
	}
	for _, b := range binds {
		if b != "" && !slices.Contains(hosts, b) {
			hosts = append(hosts, b)
		}
	}
	if len(hosts) == 0 {
		return nil, ErrNoBindAddress
	}
	return hosts, nil
}
