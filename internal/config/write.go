// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

const fileHeader = "# aqctl_highfinesse configuration\n# Environment variables (NDSP_*) and command-line flags take precedence.\n"

// Marshal renders cfg as YAML.
func Marshal(cfg AppConfig) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path atomically. An
// existing file is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	path = filepath.Clean(path)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	data, err := Marshal(Default())
	if err != nil {
		return err
	}

	// renameio handles temp file creation, fsync, atomic rename and cleanup on error
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
