// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jbqubit/ndsp-highfinesse/internal/log"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "NDSP_"

// lookup returns a non-empty environment value.
func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "password") || strings.Contains(k, "token")
}

func logSource(logger zerolog.Logger, key, value string) {
	ev := logger.Debug().Str("key", key).Str("source", "environment")
	if isSensitive(key) {
		ev = ev.Bool("sensitive", true)
	} else {
		ev = ev.Str("value", value)
	}
	ev.Msg("using environment variable")
}

func logInvalid(logger zerolog.Logger, key, value string, err error) {
	logger.Warn().
		Err(err).
		Str("key", key).
		Str("value", value).
		Msg("ignoring invalid environment variable")
}

// ParseString reads a string from the environment or returns def.
func ParseString(key, def string) string {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	logSource(log.WithComponent("config"), key, v)
	return v
}

// ParseInt reads an integer from the environment. Invalid values fall back
// to def with a warning.
func ParseInt(key string, def int) int {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	logger := log.WithComponent("config")
	i, err := strconv.Atoi(v)
	if err != nil {
		logInvalid(logger, key, v, err)
		return def
	}
	logSource(logger, key, v)
	return i
}

// ParseFloat reads a float from the environment. Invalid values fall back
// to def with a warning.
func ParseFloat(key string, def float64) float64 {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	logger := log.WithComponent("config")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logInvalid(logger, key, v, err)
		return def
	}
	logSource(logger, key, v)
	return f
}

// ParseBool reads a boolean from the environment (strconv.ParseBool syntax).
// Invalid values fall back to def with a warning.
func ParseBool(key string, def bool) bool {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	logger := log.WithComponent("config")
	b, err := strconv.ParseBool(v)
	if err != nil {
		logInvalid(logger, key, v, err)
		return def
	}
	logSource(logger, key, v)
	return b
}

// ParseDuration reads a Go duration from the environment. Invalid values
// fall back to def with a warning.
func ParseDuration(key string, def time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	logger := log.WithComponent("config")
	d, err := time.ParseDuration(v)
	if err != nil {
		logInvalid(logger, key, v, err)
		return def
	}
	logSource(logger, key, v)
	return d
}

// ParseStringList reads a comma separated list. Empty items are dropped.
func ParseStringList(key string, def []string) []string {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	logSource(log.WithComponent("config"), key, v)
	return out
}

// ParseIntList reads a comma separated list of integers. Any invalid item
// rejects the whole value.
func ParseIntList(key string, def []int) []int {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	logger := log.WithComponent("config")
	var out []int
	for _, part := range strings.Split(v, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		i, err := strconv.Atoi(p)
		if err != nil {
			logInvalid(logger, key, v, err)
			return def
		}
		out = append(out, i)
	}
	logSource(logger, key, v)
	return out
}
