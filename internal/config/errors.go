// SPDX-License-Identifier: MIT

package config

import "errors"

var (
	// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
	ErrUnknownConfigField = errors.New("unknown config field")

	// ErrMultipleDocuments is returned for files with more than one YAML document.
	ErrMultipleDocuments = errors.New("config file contains multiple documents or trailing content")

	// ErrUnsupportedFormat is returned for config files that are not YAML.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrConfigExists is returned by WriteDefault when the target exists.
	ErrConfigExists = errors.New("config file already exists")
)
