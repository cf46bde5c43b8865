// SPDX-License-Identifier: MIT

// Package version reports build metadata and the compiled dependency closure.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
)

var (
	// Version is the current application version.
	// It is populated by the build system (ldflags).
	Version = "dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// Dependency is one module linked into the binary.
type Dependency struct {
	Path    string
	Version string

	// Sum is the go.sum content hash ("h1:...").
	Sum string

	// Replace is set when the module was replaced.
	Replace *Dependency
}

func (d Dependency) String() string {
	s := fmt.Sprintf("%s %s %s", d.Path, d.Version, d.Sum)
	if d.Replace != nil {
		s += " => " + d.Replace.String()
	}
	return s
}

// String renders the one-line version banner.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", Version, Commit, Date, runtime.Version())
}

// Dependencies lists the modules compiled into the running binary, sorted by
// path. ok is false when the binary carries no build information.
func Dependencies() (deps []Dependency, ok bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, false
	}
	return fromBuildInfo(info), true
}

func fromBuildInfo(info *debug.BuildInfo) []Dependency {
	deps := make([]Dependency, 0, len(info.Deps))
	for _, m := range info.Deps {
		deps = append(deps, fromModule(m))
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Path < deps[j].Path })
	return deps
}

func fromModule(m *debug.Module) Dependency {
	d := Dependency{Path: m.Path, Version: m.Version, Sum: m.Sum}
	if m.Replace != nil {
		r := fromModule(m.Replace)
		d.Replace = &r
	}
	return d
}
