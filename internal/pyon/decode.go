// SPDX-License-Identifier: MIT

package pyon

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Decode parses one pyon value. Surrounding whitespace is ignored; any other
// trailing input is an error.
func Decode(s string) (any, error) {
	p := &parser{src: s}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing input %q", p.src[p.pos])
	}
	return v, nil
}

type parser struct {
	src   string
	pos   int
	depth int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for !p.eof() {
		switch p.peek() {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) value() (any, error) {
	if p.eof() {
		return nil, p.errorf("unexpected end of input")
	}
	c := p.peek()
	switch {
	case c == '[':
		return p.nested(p.list)
	case c == '(':
		return p.nested(p.tuple)
	case c == '{':
		return p.nested(p.braces)
	case c == '"' || c == '\'':
		return p.str()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		return p.ident()
	}
	return nil, p.errorf("unexpected character %q", c)
}

func (p *parser) nested(fn func() (any, error)) (any, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, ErrTooDeep
	}
	return fn()
}

// items parses comma-separated values up to closing, allowing a trailing
// comma. The opening delimiter must already be consumed.
func (p *parser) items(closing byte, first []any) ([]any, error) {
	out := first
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated sequence, expected %q", closing)
		}
		if p.peek() == closing {
			p.pos++
			return out, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated sequence, expected %q", closing)
		}
		switch p.peek() {
		case ',':
			p.pos++
		case closing:
			p.pos++
			return out, nil
		default:
			return nil, p.errorf("expected ',' or %q", closing)
		}
	}
}

func (p *parser) list() (any, error) {
	p.pos++ // '['
	out, err := p.items(']', []any{})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parser) tuple() (any, error) {
	p.pos++ // '('
	p.skipSpace()
	if !p.eof() && p.peek() == ')' {
		p.pos++
		return Tuple{}, nil
	}
	first, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("unterminated tuple")
	}
	switch p.peek() {
	case ')':
		// A parenthesised expression, not a tuple.
		p.pos++
		return first, nil
	case ',':
		p.pos++
		rest, err := p.items(')', []any{first})
		if err != nil {
			return nil, err
		}
		return Tuple(rest), nil
	}
	return nil, p.errorf("expected ',' or ')'")
}

// braces parses either a dict or a non-empty set.
func (p *parser) braces() (any, error) {
	p.pos++ // '{'
	p.skipSpace()
	if !p.eof() && p.peek() == '}' {
		p.pos++
		return map[string]any{}, nil
	}

	keyOffset := p.pos
	first, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("unterminated dict or set")
	}
	if p.peek() != ':' {
		if p.peek() == ',' {
			p.pos++
		} else if p.peek() != '}' {
			return nil, p.errorf("expected ',', ':' or '}'")
		}
		rest, err := p.items('}', []any{first})
		if err != nil {
			return nil, err
		}
		return Set(rest), nil
	}

	out := map[string]any{}
	key := first
	for {
		k, ok := key.(string)
		if !ok {
			return nil, &SyntaxError{Offset: keyOffset, Msg: fmt.Sprintf("dict key must be a string, got %T", key)}
		}
		p.pos++ // ':'
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out[k] = v

		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated dict")
		}
		switch p.peek() {
		case '}':
			p.pos++
			return out, nil
		case ',':
			p.pos++
		default:
			return nil, p.errorf("expected ',' or '}'")
		}

		p.skipSpace()
		if !p.eof() && p.peek() == '}' {
			p.pos++
			return out, nil
		}
		keyOffset = p.pos
		key, err = p.value()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ':' {
			return nil, p.errorf("expected ':'")
		}
	}
}

func (p *parser) number() (any, error) {
	start := p.pos
	sign := 1.0
	if c := p.peek(); c == '-' || c == '+' {
		if c == '-' {
			sign = -1
		}
		p.pos++
		p.skipSpace()
		if !p.eof() && isIdentStart(p.peek()) {
			word := p.word()
			switch word {
			case "inf":
				return math.Inf(int(sign)), nil
			case "nan":
				return math.NaN(), nil
			}
			return nil, &SyntaxError{Offset: start, Msg: fmt.Sprintf("unexpected name %q after sign", word)}
		}
	}

	digitsStart := p.pos
	isFloat := false
scan:
	for !p.eof() {
		c := p.peek()
		switch {
		case isDigit(c) || c == '_':
			p.pos++
		case c == '.':
			isFloat = true
			p.pos++
		case c == 'e' || c == 'E':
			isFloat = true
			p.pos++
			if !p.eof() && (p.peek() == '+' || p.peek() == '-') {
				p.pos++
			}
		default:
			break scan
		}
	}
	text := strings.ReplaceAll(p.src[digitsStart:p.pos], "_", "")
	if text == "" || text == "." {
		return nil, &SyntaxError{Offset: start, Msg: "malformed number"}
	}

	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, &SyntaxError{Offset: start, Msg: fmt.Sprintf("malformed float %q", text)}
		}
		return sign * f, nil
	}

	// the sign is parsed with the digits so math.MinInt64 stays in range
	if sign < 0 {
		text = "-" + text
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return nil, &SyntaxError{Offset: start, Msg: fmt.Sprintf("integer %q out of range", text)}
		}
		return nil, &SyntaxError{Offset: start, Msg: fmt.Sprintf("malformed integer %q", text)}
	}
	return n, nil
}

func (p *parser) word() string {
	start := p.pos
	for !p.eof() && isIdentPart(p.peek()) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) ident() (any, error) {
	start := p.pos
	name := p.word()
	switch name {
	case "null", "None":
		return nil, nil
	case "true", "True":
		return true, nil
	case "false", "False":
		return false, nil
	case "inf":
		return math.Inf(1), nil
	case "nan":
		return math.NaN(), nil
	}

	p.skipSpace()
	if !p.eof() && p.peek() == '(' {
		if name == "set" {
			p.pos++
			p.skipSpace()
			if !p.eof() && p.peek() == ')' {
				p.pos++
				return Set{}, nil
			}
			return nil, p.errorf("only the empty set() constructor is supported")
		}
		return nil, &SyntaxError{Offset: start, Msg: fmt.Sprintf("unsupported constructor %q", name)}
	}
	return nil, &SyntaxError{Offset: start, Msg: fmt.Sprintf("unknown name %q", name)}
}

func (p *parser) str() (any, error) {
	quote := p.peek()
	start := p.pos
	p.pos++

	var b strings.Builder
	for {
		if p.eof() {
			return nil, &SyntaxError{Offset: start, Msg: "unterminated string"}
		}
		c := p.peek()
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\n':
			return nil, p.errorf("newline in string")
		case c != '\\':
			b.WriteByte(c)
			p.pos++
			continue
		}

		// Escape sequence.
		p.pos++
		if p.eof() {
			return nil, &SyntaxError{Offset: start, Msg: "unterminated string"}
		}
		e := p.peek()
		p.pos++
		switch e {
		case '\\', '\'', '"':
			b.WriteByte(e)
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'x':
			r, err := p.hexRune(2)
			if err != nil {
				return nil, err
			}
			b.WriteRune(r)
		case 'u':
			r, err := p.hexRune(4)
			if err != nil {
				return nil, err
			}
			b.WriteRune(r)
		case 'U':
			r, err := p.hexRune(8)
			if err != nil {
				return nil, err
			}
			b.WriteRune(r)
		case '0', '1', '2', '3', '4', '5', '6', '7':
			r := rune(e - '0')
			for i := 0; i < 2 && !p.eof() && p.peek() >= '0' && p.peek() <= '7'; i++ {
				r = r*8 + rune(p.peek()-'0')
				p.pos++
			}
			b.WriteRune(r)
		default:
			// Unknown escapes are kept verbatim, as Python does.
			b.WriteByte('\\')
			b.WriteByte(e)
		}
	}
}

func (p *parser) hexRune(n int) (rune, error) {
	if p.pos+n > len(p.src) {
		return 0, p.errorf("truncated escape sequence")
	}
	v, err := strconv.ParseUint(p.src[p.pos:p.pos+n], 16, 32)
	if err != nil {
		return 0, p.errorf("malformed escape sequence")
	}
	r := rune(v)
	if !utf8.ValidRune(r) {
		return 0, p.errorf("invalid code point in escape sequence")
	}
	p.pos += n
	return r, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
