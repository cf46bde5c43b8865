// SPDX-License-Identifier: MIT

package rpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sort"
	"strings"

	"github.com/jbqubit/ndsp-highfinesse/internal/pyon"
)

// Handler executes one RPC method with its bound arguments.
type Handler func(ctx context.Context, args Args) (any, error)

// Method describes a callable exposed by a Target.
type Method struct {
	Name string
	Doc  string

	// Params lists the positional-or-keyword parameter names.
	Params []string

	// Defaults holds default values for the trailing len(Defaults) params.
	Defaults []any

	Handler Handler
}

// Target is a named object whose methods are reachable over RPC.
type Target struct {
	doc     string
	methods map[string]*Method
}

// NewTarget returns an empty target with the given docstring.
func NewTarget(doc string) *Target {
	return &Target{doc: doc, methods: make(map[string]*Method)}
}

// Register adds a method to the target. It panics on an invalid or
// duplicate registration, like http.ServeMux.
func (t *Target) Register(m Method) {
	switch {
	case m.Name == "":
		panic("rpc: method without a name")
	case m.Handler == nil:
		panic("rpc: nil handler for method " + m.Name)
	case len(m.Defaults) > len(m.Params):
		panic("rpc: more defaults than parameters for method " + m.Name)
	}
	if _, dup := t.methods[m.Name]; dup {
		panic("rpc: method registered twice: " + m.Name)
	}
	mm := m
	t.methods[m.Name] = &mm
}

// Doc returns the target docstring.
func (t *Target) Doc() string { return t.doc }

// lookup returns a public method by name.
func (t *Target) lookup(name string) (*Method, bool) {
	if strings.HasPrefix(name, "_") {
		return nil, false
	}
	m, ok := t.methods[name]
	return m, ok
}

// publicNames returns the sorted names of methods visible to clients.
func (t *Target) publicNames() []string {
	names := make([]string, 0, len(t.methods))
	for name := range t.methods {
		if !strings.HasPrefix(name, "_") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// methodSet is sent to the client once it selected the target.
func (t *Target) methodSet(withTerminate bool) pyon.Set {
	names := t.publicNames()
	if withTerminate && !slices.Contains(names, "terminate") {
		names = append(names, "terminate")
		sort.Strings(names)
	}
	set := make(pyon.Set, len(names))
	for i, n := range names {
		set[i] = n
	}
	return set
}

// describe builds the get_rpc_method_list reply.
func (t *Target) describe() map[string]any {
	methods := make(map[string]any, len(t.methods))
	for _, name := range t.publicNames() {
		m := t.methods[name]
		methods[name] = pyon.Tuple{m.argspec(), docOrNone(m.Doc)}
	}
	return map[string]any{
		"docstring": docOrNone(t.doc),
		"methods":   methods,
	}
}

func (m *Method) argspec() map[string]any {
	args := make([]any, 0, len(m.Params)+1)
	args = append(args, "self")
	for _, p := range m.Params {
		args = append(args, p)
	}
	var defaults any
	if len(m.Defaults) > 0 {
		defaults = pyon.Tuple(append([]any(nil), m.Defaults...))
	}
	return map[string]any{
		"args":           args,
		"varargs":        nil,
		"varkw":          nil,
		"defaults":       defaults,
		"kwonlyargs":     []any{},
		"kwonlydefaults": nil,
		"annotations":    map[string]any{},
	}
}

// invoke binds the raw arguments and runs the handler, converting a panic
// into an error.
func (m *Method) invoke(ctx context.Context, args []any, kwargs map[string]any) (ret any, err error) {
	bound, err := bind(m, args, kwargs)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			ret = nil
			err = &panicError{method: m.Name, value: r, stack: debug.Stack()}
		}
	}()
	return m.Handler(ctx, bound)
}

type panicError struct {
	method string
	value  any
	stack  []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.method, e.value)
}

func docOrNone(doc string) any {
	if doc == "" {
		return nil
	}
	return doc
}
