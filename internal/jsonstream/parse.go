// Package jsonstream extracts the already complete parts of a JSON document
// that is still being streamed.
//
// Partial strings, objects and arrays are surfaced as far as they have been
// received. Numbers and literals are only surfaced once they can no longer
// change, so a value seen for a prefix of the document is always extended,
// never contradicted, by the value of a longer prefix.
package jsonstream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrSyntax is returned when the received prefix can not start a valid JSON document.
var ErrSyntax = errors.New("jsonstream: invalid JSON")

// Result is the outcome of parsing a document prefix. A failed parse is a
// normal outcome mid-stream, so it is reported in Err rather than returned.
type Result struct {
	// Value is the partial value, nil when OK is false.
	Value any
	// OK reports whether any value could be extracted yet.
	OK bool
	// Complete reports whether the top level value was fully received.
	Complete bool
	Err      error
}

// Parse parses a prefix of a JSON document. Leading whitespace and an opening
// markdown code fence are skipped, anything after a complete top level value is ignored.
func Parse(content string) Result {
	s := strings.TrimLeft(content, " \t\r\n")
	if strings.HasPrefix(s, "```") {
		nl := strings.IndexByte(s, '\n')
		if nl < 0 {
			return Result{}
		}
		s = s[nl+1:]
	}

	p := &parser{s: s}
	v, ok, complete, err := p.value()
	if err != nil {
		return Result{Err: err}
	}
	if !ok {
		return Result{}
	}
	return Result{Value: v, OK: true, Complete: complete}
}

type parser struct {
	s string
	i int
}

func (p *parser) eof() bool { return p.i >= len(p.s) }

func (p *parser) skipSpace() {
	for p.i < len(p.s) {
		switch p.s[p.i] {
		case ' ', '\t', '\r', '\n':
			p.i++
		default:
			return
		}
	}
}

func (p *parser) syntaxError(what string) error {
	return fmt.Errorf("%w: %s at offset %d", ErrSyntax, what, p.i)
}

// value returns the value at the cursor, whether it may be surfaced and whether it was fully received.
func (p *parser) value() (any, bool, bool, error) {
	p.skipSpace()
	if p.eof() {
		return nil, false, false, nil
	}
	switch c := p.s[p.i]; {
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"':
		s, complete := p.str()
		return s, true, complete, nil
	case c == 't':
		return p.literal("true", true)
	case c == 'f':
		return p.literal("false", false)
	case c == 'n':
		return p.literal("null", nil)
	case c == '-' || (c >= '0' && c <= '9'):
		return p.number()
	default:
		return nil, false, false, p.syntaxError(fmt.Sprintf("unexpected character %q", c))
	}
}

func (p *parser) object() (any, bool, bool, error) {
	p.i++
	obj := map[string]any{}
	first := true
	for {
		p.skipSpace()
		if p.eof() {
			return obj, true, false, nil
		}
		if p.s[p.i] == '}' {
			p.i++
			return obj, true, true, nil
		}
		if !first {
			if p.s[p.i] != ',' {
				return nil, false, false, p.syntaxError("expected ',' in object")
			}
			p.i++
			p.skipSpace()
			if p.eof() {
				return obj, true, false, nil
			}
		}
		first = false

		if p.s[p.i] != '"' {
			return nil, false, false, p.syntaxError("expected object key")
		}
		key, complete := p.str()
		if !complete {
			return obj, true, false, nil
		}
		p.skipSpace()
		if p.eof() {
			return obj, true, false, nil
		}
		if p.s[p.i] != ':' {
			return nil, false, false, p.syntaxError("expected ':' after object key")
		}
		p.i++

		v, ok, complete, err := p.value()
		if err != nil {
			return nil, false, false, err
		}
		if ok {
			obj[key] = v
		}
		if !complete {
			return obj, true, false, nil
		}
	}
}

func (p *parser) array() (any, bool, bool, error) {
	p.i++
	arr := []any{}
	first := true
	for {
		p.skipSpace()
		if p.eof() {
			return arr, true, false, nil
		}
		if p.s[p.i] == ']' {
			p.i++
			return arr, true, true, nil
		}
		if !first {
			if p.s[p.i] != ',' {
				return nil, false, false, p.syntaxError("expected ',' in array")
			}
			p.i++
		}
		first = false

		v, ok, complete, err := p.value()
		if err != nil {
			return nil, false, false, err
		}
		if ok {
			arr = append(arr, v)
		}
		if !complete {
			return arr, true, false, nil
		}
	}
}

// str reads a string starting at the opening quote. An unfinished escape or
// rune at the end of the input is left out of the partial value.
func (p *parser) str() (string, bool) {
	p.i++
	var sb strings.Builder
	for p.i < len(p.s) {
		c := p.s[p.i]
		switch {
		case c == '"':
			p.i++
			return sb.String(), true
		case c == '\\':
			if p.i+1 >= len(p.s) {
				return sb.String(), false
			}
			esc := p.s[p.i+1]
			if esc == 'u' {
				r, n, ok := p.unicodeEscape()
				if !ok {
					return sb.String(), false
				}
				sb.WriteRune(r)
				p.i += n
				continue
			}
			sb.WriteByte(unescape(esc))
			p.i += 2
		default:
			sb.WriteByte(c)
			p.i++
		}
	}
	return trimPartialRune(sb.String()), false
}

func (p *parser) unicodeEscape() (rune, int, bool) {
	r1, ok := hex4(p.s, p.i+2)
	if !ok {
		return 0, 0, false
	}
	if !utf16.IsSurrogate(r1) {
		return r1, 6, true
	}
	if p.i+12 > len(p.s) {
		return 0, 0, false
	}
	if p.s[p.i+6] == '\\' && p.s[p.i+7] == 'u' {
		if r2, ok := hex4(p.s, p.i+8); ok {
			if r := utf16.DecodeRune(r1, r2); r != utf8.RuneError {
				return r, 12, true
			}
		}
	}
	return utf8.RuneError, 6, true
}

func hex4(s string, at int) (rune, bool) {
	if at+4 > len(s) {
		return 0, false
	}
	v, err := strconv.ParseUint(s[at:at+4], 16, 32)
	if err != nil {
		return utf8.RuneError, true
	}
	return rune(v), true
}

func unescape(c byte) byte {
	switch c {
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	}
	return c
}

func trimPartialRune(s string) string {
	for k := 1; k <= utf8.UTFMax-1 && k <= len(s); k++ {
		if utf8.RuneStart(s[len(s)-k]) {
			if !utf8.FullRuneInString(s[len(s)-k:]) {
				return s[:len(s)-k]
			}
			return s
		}
	}
	return s
}

func (p *parser) literal(word string, v any) (any, bool, bool, error) {
	rest := p.s[p.i:]
	if len(rest) < len(word) {
		if strings.HasPrefix(word, rest) {
			p.i = len(p.s)
			return nil, false, false, nil
		}
		return nil, false, false, p.syntaxError("invalid literal")
	}
	if rest[:len(word)] != word {
		return nil, false, false, p.syntaxError("invalid literal")
	}
	p.i += len(word)
	return v, true, true, nil
}

// number is only surfaced once a delimiter follows it, "1" may still become "10".
func (p *parser) number() (any, bool, bool, error) {
	start := p.i
	for p.i < len(p.s) && isNumberByte(p.s[p.i]) {
		p.i++
	}
	if p.eof() {
		return nil, false, false, nil
	}
	f, err := strconv.ParseFloat(p.s[start:p.i], 64)
	if err != nil {
		return nil, false, false, p.syntaxError("invalid number")
	}
	return f, true, true, nil
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}
