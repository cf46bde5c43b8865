// SPDX-License-Identifier: MIT

package health

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/jbqubit/ndsp-highfinesse/internal/log"
)

// StartupConfig lists what the pre-flight checks look at. Empty fields are
// skipped.
type StartupConfig struct {
	HistoryPath string
	HTTPAddr    string
}

// PerformStartupChecks validates the environment before the daemon starts
// listening.
func PerformStartupChecks(cfg StartupConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Debug().Msg("running pre-flight startup checks")

	if cfg.HistoryPath != "" {
		if err := checkDataDir(logger, filepath.Dir(cfg.HistoryPath)); err != nil {
			return fmt.Errorf("history directory check failed: %w", err)
		}
	}
	if cfg.HTTPAddr != "" {
		if err := checkListenAddr(cfg.HTTPAddr); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		logger.Debug().Str("addr", cfg.HTTPAddr).Msg("http listen address is valid")
	}

	logger.Debug().Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Debug().Str("path", path).Msg("history directory is writable")
	return nil
}

func checkListenAddr(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid http listen address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid http listen port %q in %q", port, addr)
	}
	return nil
}
