// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package npy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ngnhng/npymsgpack/api/ndarray"
)

// Header is the metadata record that precedes the data section.
type Header struct {
	Major, Minor uint8
	Descr        string
	DType        ndarray.DType
	BigEndian    bool
	FortranOrder bool
	Shape        []int
}

const (
	// growthAxisDigits leaves room to rewrite the leading dimension in place.
	growthAxisDigits = 21
	arrayAlign       = 64
	maxHeaderSize    = 10000
)

// dictLiteral renders the header dictionary exactly as numpy writes it:
// sorted keys, a trailing ", " before the closing brace, and growth padding.
func dictLiteral(h Header) string {
	var sb strings.Builder
	fortran := "False"
	if h.FortranOrder {
		fortran = "True"
	}
	fmt.Fprintf(&sb, "{'descr': '%s', 'fortran_order': %s, 'shape': %s, }",
		h.Descr, fortran, ndarray.FormatShape(h.Shape))

	if len(h.Shape) > 0 {
		axis := 0
		if h.FortranOrder {
			axis = len(h.Shape) - 1
		}
		if pad := growthAxisDigits - len(strconv.Itoa(h.Shape[axis])); pad > 0 {
			sb.WriteString(strings.Repeat(" ", pad))
		}
	}
	return sb.String()
}

// parseHeader validates the dictionary literal and resolves its fields.
func parseHeader(text string) (Header, error) {
	p := &literalParser{src: text}
	v, err := p.parse()
	if err != nil {
		return Header{}, &FormatError{Reason: "cannot parse header", Err: err}
	}
	dict, ok := v.(pyDict)
	if !ok {
		return Header{}, formatErrorf("header is not a dictionary: %q", text)
	}
	if len(dict) != 3 {
		return Header{}, formatErrorf("header does not contain the correct keys: %q", text)
	}

	var h Header
	for _, key := range []string{"descr", "fortran_order", "shape"} {
		if _, ok := dict[key]; !ok {
			return Header{}, formatErrorf("header does not contain the correct keys: %q", text)
		}
	}

	switch descr := dict["descr"].(type) {
	case string:
		h.Descr = descr
		h.DType, h.BigEndian, err = parseDescr(descr)
		if err != nil {
			return Header{}, err
		}
	case pyList:
		return Header{}, &UnsupportedTypeError{Descr: "structured " + fmt.Sprint([]any(descr))}
	default:
		return Header{}, formatErrorf("descr is not a string: %v", descr)
	}

	fortran, ok := dict["fortran_order"].(bool)
	if !ok {
		return Header{}, formatErrorf("fortran_order is not a bool: %v", dict["fortran_order"])
	}
	h.FortranOrder = fortran

	shape, ok := dict["shape"].(pyTuple)
	if !ok {
		return Header{}, formatErrorf("shape is not a tuple: %v", dict["shape"])
	}
	h.Shape = make([]int, len(shape))
	for i, dim := range shape {
		n, ok := dim.(int64)
		if !ok || n < 0 || int64(int(n)) != n {
			return Header{}, formatErrorf("shape entry %d is not a non-negative integer: %v", i, dim)
		}
		h.Shape[i] = int(n)
	}
	if _, err := ndarray.NumElements(h.Shape); err != nil {
		return Header{}, &FormatError{Reason: "invalid shape", Err: err}
	}
	return h, nil
}

type (
	pyDict  map[string]any
	pyTuple []any
	pyList  []any
)

// literalParser reads the subset of Python literal syntax that appears in
// array headers: dicts, tuples, lists, strings, ints, True, False and None.
type literalParser struct {
	src string
	pos int
}

func (p *literalParser) parse() (any, error) {
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected trailing input")
	}
	return v, nil
}

func (p *literalParser) value() (any, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.errorf("unexpected end of header")
	}
	switch c := p.src[p.pos]; {
	case c == '{':
		return p.dict()
	case c == '(':
		items, trailingComma, err := p.sequence('(', ')')
		if err != nil {
			return nil, err
		}
		if len(items) == 1 && !trailingComma {
			// (x) is a parenthesised value, not a tuple
			return items[0], nil
		}
		return pyTuple(items), nil
	case c == '[':
		items, _, err := p.sequence('[', ']')
		return pyList(items), err
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || c == '+' || (c >= '0' && c <= '9'):
		return p.integer()
	default:
		return p.keyword()
	}
}

func (p *literalParser) dict() (any, error) {
	p.pos++ // {
	out := pyDict{}
	for {
		p.skipSpace()
		if p.consume('}') {
			return out, nil
		}
		k, err := p.value()
		if err != nil {
			return nil, err
		}
		key, ok := k.(string)
		if !ok {
			return nil, p.errorf("dictionary key %v is not a string", k)
		}
		p.skipSpace()
		if !p.consume(':') {
			return nil, p.errorf("expected ':'")
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		if _, dup := out[key]; dup {
			return nil, p.errorf("duplicate key %q", key)
		}
		out[key] = v

		p.skipSpace()
		if p.consume('}') {
			return out, nil
		}
		if !p.consume(',') {
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *literalParser) sequence(open, closing byte) ([]any, bool, error) {
	p.pos++ // open
	var items []any
	trailingComma := false
	for {
		p.skipSpace()
		if p.consume(closing) {
			return items, trailingComma, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, false, err
		}
		items = append(items, v)
		trailingComma = false

		p.skipSpace()
		if p.consume(closing) {
			return items, trailingComma, nil
		}
		if !p.consume(',') {
			return nil, false, p.errorf("expected ',' or %q", closing)
		}
		trailingComma = true
	}
}

func (p *literalParser) str() (any, error) {
	quote := p.src[p.pos]
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return sb.String(), nil
		case c == '\\' && p.pos+1 < len(p.src):
			sb.WriteByte(p.src[p.pos+1])
			p.pos += 2
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return nil, p.errorf("unterminated string")
}

func (p *literalParser) integer() (any, error) {
	start := p.pos
	if c := p.src[p.pos]; c == '-' || c == '+' {
		p.pos++
	}
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	digits := p.src[start:p.pos]
	// Python 2 headers may carry a long suffix.
	if p.pos < len(p.src) && (p.src[p.pos] == 'L' || p.src[p.pos] == 'l') {
		p.pos++
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil, p.errorf("invalid integer %q", digits)
	}
	return n, nil
}

func (p *literalParser) keyword() (any, error) {
	for _, kw := range []struct {
		word  string
		value any
	}{{"True", true}, {"False", false}, {"None", nil}} {
		if strings.HasPrefix(p.src[p.pos:], kw.word) {
			p.pos += len(kw.word)
			return kw.value, nil
		}
	}
	return nil, p.errorf("unexpected character %q", p.src[p.pos])
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) consume(c byte) bool {
	if p.pos < len(p.src) && p.src[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}
