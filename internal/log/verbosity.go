// SPDX-License-Identifier: MIT

package log

import (
	"fmt"

	"github.com/rs/zerolog"
)

// LevelFromVerbosity maps repeated -v/-q flags onto a level. The baseline is
// warning; each -v is one level more verbose and each -q one level quieter.
func LevelFromVerbosity(verbose, quiet int) zerolog.Level {
	level := int(zerolog.WarnLevel) + quiet - verbose
	if level < int(zerolog.TraceLevel) {
		level = int(zerolog.TraceLevel)
	}
	if level > int(zerolog.PanicLevel) {
		level = int(zerolog.PanicLevel)
	}
	return zerolog.Level(level)
}

// ResolveLevel picks the effective level name. Verbosity flags win over an
// explicitly configured level, which wins over the warning baseline.
func ResolveLevel(configured string, verbose, quiet int) (string, error) {
	if verbose > 0 || quiet > 0 {
		return LevelFromVerbosity(verbose, quiet).String(), nil
	}
	if configured == "" {
		return zerolog.WarnLevel.String(), nil
	}
	level, err := zerolog.ParseLevel(configured)
	if err != nil {
		return "", fmt.Errorf("invalid log level %q: %w", configured, err)
	}
	return level.String(), nil
}
