package scores

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// The literal rung accepts Python literal syntax: quoted strings, numbers,
// True/False/None, lists, tuples and dicts. Sets and anything without a JSON
// form are rejected.

var errNotLiteral = errors.New("not a literal")

const digits = `[0-9](?:_?[0-9])*`

var (
	radixLiteral = regexp.MustCompile(`^0(?:[xX](?:_?[0-9a-fA-F])+|[oO](?:_?[0-7])+|[bB](?:_?[01])+)`)
	floatLiteral = regexp.MustCompile(`^(?:` + digits + `\.(?:` + digits + `)?|\.` + digits + `)(?:[eE][+-]?` + digits + `)?|^` + digits + `[eE][+-]?` + digits)
	intLiteral   = regexp.MustCompile(`^(?:0(?:_?0)*|[1-9](?:_?[0-9])*)`)

	// Whole-line forms accepted by the int and float rungs.
	decimalInt   = regexp.MustCompile(`^[+-]?` + digits + `$`)
	decimalFloat = regexp.MustCompile(`^[+-]?(?:` + digits + `\.(?:` + digits + `)?|\.` + digits + `|` + digits + `)(?:[eE][+-]?` + digits + `)?$`)
)

// parseLiteral evaluates s as a single literal. The result is only accepted
// when encoding/json can marshal it.
func parseLiteral(s string) (any, bool) {
	p := &literalParser{s: s}
	v, err := p.value()
	if err != nil {
		return nil, false
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, false
	}
	if _, err := json.Marshal(v); err != nil {
		return nil, false
	}
	return v, true
}

type literalParser struct {
	s   string
	pos int
}

func (p *literalParser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\f':
			p.pos++
		case '#':
			p.pos = len(p.s)
		default:
			return
		}
	}
}

func (p *literalParser) value() (any, error) {
	p.skipSpace()
	c := p.peek()
	switch {
	case c == 0:
		return nil, errNotLiteral
	case c == '[':
		p.pos++
		return p.items(nil, ']')
	case c == '(':
		return p.paren()
	case c == '{':
		return p.dict()
	case c == '+' || c == '-':
		return p.signed()
	case c == '.' || isDigit(c):
		return p.number()
	case c == '"' || c == '\'' || p.prefixedString():
		return p.stringLiteral()
	default:
		return p.keyword()
	}
}

// items reads comma separated values up to close. A trailing comma is
// allowed.
func (p *literalParser) items(list []any, close byte) (any, error) {
	if list == nil {
		list = []any{}
	}
	for {
		p.skipSpace()
		if p.peek() == close {
			p.pos++
			return list, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		list = append(list, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case close:
			p.pos++
			return list, nil
		default:
			return nil, errNotLiteral
		}
	}
}

// paren handles tuples. A parenthesised single value without a comma is
// that value.
func (p *literalParser) paren() (any, error) {
	p.pos++
	p.skipSpace()
	if p.peek() == ')' {
		p.pos++
		return []any{}, nil
	}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	switch p.peek() {
	case ')':
		p.pos++
		return v, nil
	case ',':
		p.pos++
		return p.items([]any{v}, ')')
	}
	return nil, errNotLiteral
}

func (p *literalParser) dict() (any, error) {
	p.pos++
	obj := &object{values: map[string]any{}}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return obj, nil
		}
		k, err := p.value()
		if err != nil {
			return nil, err
		}
		key, ok := keyString(k)
		if !ok {
			return nil, errNotLiteral
		}

		p.skipSpace()
		if p.peek() != ':' {
			// set display
			return nil, errNotLiteral
		}
		p.pos++
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		obj.set(key, v)

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return obj, nil
		default:
			return nil, errNotLiteral
		}
	}
}

// keyString spells a scalar dict key the way Python's json module does.
func keyString(k any) (string, bool) {
	switch v := k.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case nil:
		return "null", true
	case int64:
		return strconv.FormatInt(v, 10), true
	case json.Number:
		return v.String(), true
	case pyFloat:
		return formatFloat(float64(v)), true
	}
	return "", false
}

func (p *literalParser) signed() (any, error) {
	negative := p.peek() == '-'
	p.pos++
	p.skipSpace()
	if c := p.peek(); c != '.' && !isDigit(c) {
		return nil, errNotLiteral
	}
	v, err := p.number()
	if err != nil || !negative {
		return v, err
	}
	switch n := v.(type) {
	case int64:
		return -n, nil
	case json.Number:
		return json.Number("-" + n.String()), nil
	case pyFloat:
		return -n, nil
	}
	return nil, errNotLiteral
}

func (p *literalParser) number() (any, error) {
	rest := p.s[p.pos:]
	var (
		token   string
		isFloat bool
	)
	if m := radixLiteral.FindString(rest); m != "" {
		token = m
	} else if m := floatLiteral.FindString(rest); m != "" {
		token, isFloat = m, true
	} else if m := intLiteral.FindString(rest); m != "" {
		token = m
	} else {
		return nil, errNotLiteral
	}

	p.pos += len(token)
	if c := p.peek(); c == '.' || c == '_' || isDigit(c) || isLetter(c) {
		// 007, 0x1p-2, 1j and friends
		return nil, errNotLiteral
	}

	token = strings.ReplaceAll(token, "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(token, 64)
		if err != nil || math.IsInf(f, 0) {
			return nil, errNotLiteral
		}
		return pyFloat(f), nil
	}
	n, ok := new(big.Int).SetString(token, 0)
	if !ok {
		return nil, errNotLiteral
	}
	if n.IsInt64() {
		return n.Int64(), nil
	}
	return json.Number(n.String()), nil
}

func (p *literalParser) keyword() (any, error) {
	start := p.pos
	for p.pos < len(p.s) && (isLetter(p.s[p.pos]) || isDigit(p.s[p.pos])) {
		p.pos++
	}
	switch p.s[start:p.pos] {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	}
	return nil, errNotLiteral
}

// prefixedString reports whether a u or r string prefix starts here.
func (p *literalParser) prefixedString() bool {
	if !strings.ContainsRune("uUrR", rune(p.peek())) || p.pos+1 >= len(p.s) {
		return false
	}
	c := p.s[p.pos+1]
	return c == '"' || c == '\''
}

// stringLiteral reads one or more adjacent string literals and joins them.
func (p *literalParser) stringLiteral() (any, error) {
	var b strings.Builder
	for {
		if err := p.str(&b); err != nil {
			return nil, err
		}
		p.skipSpace()
		if c := p.peek(); c != '"' && c != '\'' && !p.prefixedString() {
			return b.String(), nil
		}
	}
}

func (p *literalParser) str(b *strings.Builder) error {
	raw := false
	switch p.peek() {
	case 'r', 'R':
		raw = true
		p.pos++
	case 'u', 'U':
		p.pos++
	}

	quote := p.s[p.pos]
	delim := string(quote)
	if strings.HasPrefix(p.s[p.pos:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	p.pos += len(delim)

	for {
		if p.pos >= len(p.s) {
			return errNotLiteral
		}
		if strings.HasPrefix(p.s[p.pos:], delim) {
			p.pos += len(delim)
			return nil
		}
		c := p.s[p.pos]
		if c != '\\' {
			b.WriteByte(c)
			p.pos++
			continue
		}
		if p.pos+1 >= len(p.s) {
			return errNotLiteral
		}
		if raw {
			b.WriteString(p.s[p.pos : p.pos+2])
			p.pos += 2
			continue
		}
		if err := p.escape(b); err != nil {
			return err
		}
	}
}

var simpleEscapes = map[byte]string{
	'\\': "\\", '\'': "'", '"': "\"",
	'a': "\a", 'b': "\b", 'f': "\f", 'n': "\n", 'r': "\r", 't': "\t", 'v': "\v",
}

// escape decodes the backslash sequence at p.pos.
func (p *literalParser) escape(b *strings.Builder) error {
	c := p.s[p.pos+1]
	if s, ok := simpleEscapes[c]; ok {
		b.WriteString(s)
		p.pos += 2
		return nil
	}

	switch c {
	case 'x', 'u', 'U':
		width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		start := p.pos + 2
		if start+width > len(p.s) {
			return errNotLiteral
		}
		r, err := strconv.ParseUint(p.s[start:start+width], 16, 32)
		if err != nil || r > 0x10FFFF {
			return errNotLiteral
		}
		b.WriteRune(rune(r))
		p.pos = start + width
		return nil
	case 'N':
		return errNotLiteral
	}

	if c >= '0' && c <= '7' {
		end := p.pos + 1
		for end < len(p.s) && end < p.pos+4 && p.s[end] >= '0' && p.s[end] <= '7' {
			end++
		}
		r, _ := strconv.ParseUint(p.s[p.pos+1:end], 8, 32)
		b.WriteRune(rune(r))
		p.pos = end
		return nil
	}

	// Unknown escapes keep their backslash.
	b.WriteString(p.s[p.pos : p.pos+2])
	p.pos += 2
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// object is a dict literal that keeps its key order when encoded.
type object struct {
	keys   []string
	values map[string]any
}

func (o *object) set(k string, v any) {
	if _, ok := o.values[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.values[k] = v
}

func (o *object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// pyFloat keeps "3.0" from being encoded as 3.
type pyFloat float64

func (f pyFloat) MarshalJSON() ([]byte, error) {
	return []byte(formatFloat(float64(f))), nil
}

// formatFloat spells f like Python's repr: always with a fraction or
// exponent, scientific below 1e-4 and from 1e16.
func formatFloat(f float64) string {
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
