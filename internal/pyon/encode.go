// SPDX-License-Identifier: MIT

package pyon

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Encode renders v as a single line of pyon text. Dictionary keys are sorted
// so the output is deterministic.
func Encode(v any) (string, error) {
	var b strings.Builder
	if err := encodeValue(&b, v, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encodeValue(b *strings.Builder, v any, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}

	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case Marshaler:
		inner, err := x.MarshalPyon()
		if err != nil {
			return fmt.Errorf("pyon: marshal %T: %w", v, err)
		}
		return encodeValue(b, inner, depth+1)
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case float32:
		b.WriteString(formatFloat(float64(x)))
	case float64:
		b.WriteString(formatFloat(x))
	case string:
		b.WriteString(strconv.Quote(x))
	case Tuple:
		return encodeTuple(b, x, depth)
	case Set:
		if len(x) == 0 {
			b.WriteString("set()")
			return nil
		}
		return encodeSeq(b, "{", "}", x, depth)
	case []any:
		return encodeSeq(b, "[", "]", x, depth)
	case []string:
		items := make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
		return encodeSeq(b, "[", "]", items, depth)
	case []int:
		items := make([]any, len(x))
		for i, n := range x {
			items[i] = n
		}
		return encodeSeq(b, "[", "]", items, depth)
	case []float64:
		items := make([]any, len(x))
		for i, f := range x {
			items[i] = f
		}
		return encodeSeq(b, "[", "]", items, depth)
	case map[string]any:
		return encodeDict(b, x, depth)
	case map[string]string:
		m := make(map[string]any, len(x))
		for k, s := range x {
			m[k] = s
		}
		return encodeDict(b, m, depth)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
	return nil
}

// formatFloat matches Python's float repr: positional notation for
// exponents in [-4, 16), scientific otherwise, and integral values keep a
// trailing ".0" so they do not decode as ints on the other side.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if a := math.Abs(f); a != 0 && (a < 1e-4 || a >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func encodeTuple(b *strings.Builder, t Tuple, depth int) error {
	if len(t) == 1 {
		b.WriteString("(")
		if err := encodeValue(b, t[0], depth+1); err != nil {
			return err
		}
		b.WriteString(",)")
		return nil
	}
	return encodeSeq(b, "(", ")", t, depth)
}

func encodeSeq(b *strings.Builder, open, closing string, items []any, depth int) error {
	b.WriteString(open)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := encodeValue(b, item, depth+1); err != nil {
			return err
		}
	}
	b.WriteString(closing)
	return nil
}

func encodeDict(b *strings.Builder, m map[string]any, depth int) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(k))
		b.WriteString(": ")
		if err := encodeValue(b, m[k], depth+1); err != nil {
			return err
		}
	}
	b.WriteString("}")
	return nil
}
