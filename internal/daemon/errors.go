// SPDX-License-Identifier: MIT

package daemon

import "errors"

var (
	// ErrMissingLogger is returned when logger is not provided
	ErrMissingLogger = errors.New("logger is required")

	// ErrMissingRPCServer is returned when no RPC server is provided
	ErrMissingRPCServer = errors.New("RPC server is required")

	// ErrMissingManager is returned when a daemon app is created without a manager.
	ErrMissingManager = errors.New("manager is required")

	// ErrManagerNotStarted is returned when trying to shutdown a manager that hasn't started
	ErrManagerNotStarted = errors.New("manager not started")

	// ErrManagerStarted is returned by a second call to Start.
	ErrManagerStarted = errors.New("manager already started")
)
