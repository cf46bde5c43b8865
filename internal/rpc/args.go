// SPDX-License-Identifier: MIT

package rpc

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/jbqubit/ndsp-highfinesse/internal/pyon"
)

// Args holds the arguments of one call bound to parameter names.
type Args struct {
	method string
	values map[string]any
}

// NewArgs builds an Args value directly, for calling handlers in-process.
func NewArgs(method string, values map[string]any) Args {
	if values == nil {
		values = map[string]any{}
	}
	return Args{method: method, values: values}
}

// Value returns the raw decoded value of a parameter.
func (a Args) Value(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Int returns an integer parameter.
func (a Args) Int(name string) (int, error) {
	v, err := a.get(name)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int64:
		if x < math.MinInt || x > math.MaxInt {
			return 0, ValueError("%s(): argument '%s' out of range", a.method, name)
		}
		return int(x), nil
	case int:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, a.typeError(name, "int", v)
}

// Float returns a numeric parameter as float64.
func (a Args) Float(name string) (float64, error) {
	v, err := a.get(name)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	}
	return 0, a.typeError(name, "float", v)
}

// Bool returns a boolean parameter. Integers are accepted with C truth
// semantics.
func (a Args) Bool(name string) (bool, error) {
	v, err := a.get(name)
	if err != nil {
		return false, err
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case int:
		return x != 0, nil
	}
	return false, a.typeError(name, "bool", v)
}

// String returns a string parameter.
func (a Args) String(name string) (string, error) {
	v, err := a.get(name)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", a.typeError(name, "str", v)
}

func (a Args) get(name string) (any, error) {
	v, ok := a.values[name]
	if !ok {
		return nil, TypeError("%s() has no parameter '%s'", a.method, name)
	}
	return v, nil
}

func (a Args) typeError(name, want string, got any) error {
	return TypeError("%s(): argument '%s' must be %s, not %s", a.method, name, want, pyTypeName(got))
}

// bind resolves positional and keyword arguments against the method
// parameters, following Python call semantics.
func bind(m *Method, args []any, kwargs map[string]any) (Args, error) {
	if len(args) > len(m.Params) {
		return Args{}, TypeError("%s() takes %d positional argument%s but %d were given",
			m.Name, len(m.Params)+1, plural(len(m.Params)+1), len(args)+1)
	}

	values := make(map[string]any, len(m.Params))
	for i, v := range args {
		values[m.Params[i]] = v
	}

	for k, v := range kwargs {
		if !slices.Contains(m.Params, k) {
			return Args{}, TypeError("%s() got an unexpected keyword argument '%s'", m.Name, k)
		}
		if _, dup := values[k]; dup {
			return Args{}, TypeError("%s() got multiple values for argument '%s'", m.Name, k)
		}
		values[k] = v
	}

	firstDefault := len(m.Params) - len(m.Defaults)
	var missing []string
	for i, p := range m.Params {
		if _, ok := values[p]; ok {
			continue
		}
		if i >= firstDefault {
			values[p] = m.Defaults[i-firstDefault]
			continue
		}
		missing = append(missing, "'"+p+"'")
	}
	if len(missing) > 0 {
		return Args{}, TypeError("%s() missing %d required positional argument%s: %s",
			m.Name, len(missing), plural(len(missing)), joinNames(missing))
	}

	return Args{method: m.Name, values: values}, nil
}

func joinNames(names []string) string {
	if len(names) == 1 {
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func pyTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int, int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case pyon.Tuple:
		return "tuple"
	case pyon.Set:
		return "set"
	case map[string]any:
		return "dict"
	default:
		return fmt.Sprintf("%T", v)
	}
}
