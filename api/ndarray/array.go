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

package ndarray

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/exp/constraints"
)

var (
	ErrInvalidDType  = errors.New("ndarray: invalid dtype")
	ErrInvalidShape  = errors.New("ndarray: invalid shape")
	ErrBufferSize    = errors.New("ndarray: buffer size does not match shape")
	ErrDTypeMismatch = errors.New("ndarray: element type does not match dtype")
	ErrIndex         = errors.New("ndarray: index out of range")
)

// Element is the set of Go types that can populate an Array.
type Element interface {
	~bool | constraints.Integer | constraints.Float | constraints.Complex
}

// Array is an n-dimensional block of fixed-width numeric elements stored
// contiguously in row-major order. Elements are kept little-endian regardless
// of the host byte order.
//
// An Array is never mutated after construction; accessors hand out copies.
type Array struct {
	dtype DType
	shape []int
	data  []byte
}

// New builds an array from a raw little-endian, row-major buffer. The buffer
// is copied.
func New(dtype DType, shape []int, data []byte) (*Array, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDType, dtype)
	}
	nbytes, err := byteSize(dtype, shape)
	if err != nil {
		return nil, err
	}
	if len(data) != nbytes {
		return nil, fmt.Errorf("%w: shape %s of %s needs %d bytes, got %d",
			ErrBufferSize, FormatShape(shape), dtype, nbytes, len(data))
	}
	return &Array{
		dtype: dtype,
		shape: slices.Clone(shape),
		data:  bytes.Clone(nonNil(data)),
	}, nil
}

// Zeros returns a zero-filled array.
func Zeros(dtype DType, shape ...int) (*Array, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDType, dtype)
	}
	nbytes, err := byteSize(dtype, shape)
	if err != nil {
		return nil, err
	}
	return &Array{dtype: dtype, shape: slices.Clone(nonNilShape(shape)), data: make([]byte, nbytes)}, nil
}

// FromSlice copies values into a new array. Without a shape the result is
// one-dimensional.
func FromSlice[E Element](values []E, shape ...int) (*Array, error) {
	dt := dtypeOf[E]()
	if shape == nil {
		shape = []int{len(values)}
	}
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(values) {
		return nil, fmt.Errorf("%w: %d values cannot fill shape %s", ErrBufferSize, len(values), FormatShape(shape))
	}

	size := dt.Size()
	data := make([]byte, n*size)
	rv := reflect.ValueOf(values)
	for i := range n {
		putElem(data[i*size:], dt, rv.Index(i))
	}
	return &Array{dtype: dt, shape: slices.Clone(shape), data: data}, nil
}

// Scalar returns a zero-dimensional array holding v.
func Scalar[E Element](v E) *Array {
	a, _ := FromSlice([]E{v}, []int{}...)
	return a
}

// Arange returns a one-dimensional array holding 0, 1, ..., n-1 converted to dtype.
func Arange(dtype DType, n int) (*Array, error) {
	a, err := Zeros(dtype, n)
	if err != nil {
		return nil, err
	}
	size := dtype.Size()
	for i := range n {
		putInt(a.data[i*size:], dtype, int64(i))
	}
	return a, nil
}

// Values copies the elements of a into a slice of E. E must map to the
// array's dtype exactly.
func Values[E Element](a *Array) ([]E, error) {
	if a == nil {
		return nil, nil
	}
	if dt := dtypeOf[E](); dt != a.dtype {
		return nil, fmt.Errorf("%w: array holds %s, requested %s", ErrDTypeMismatch, a.dtype, dt)
	}
	n := a.Len()
	out := make([]E, n)
	size := a.dtype.Size()
	rv := reflect.ValueOf(out)
	for i := range n {
		getElem(a.data[i*size:], a.dtype, rv.Index(i))
	}
	return out, nil
}

// DTypeOf returns the dtype that Go type t maps to, or Invalid.
func DTypeOf(t reflect.Type) DType {
	switch t.Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch t.Size() {
		case 1:
			return Int8
		case 2:
			return Int16
		case 4:
			return Int32
		case 8:
			return Int64
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		switch t.Size() {
		case 1:
			return Uint8
		case 2:
			return Uint16
		case 4:
			return Uint32
		case 8:
			return Uint64
		}
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	case reflect.Complex64:
		return Complex64
	case reflect.Complex128:
		return Complex128
	}
	return Invalid
}

func dtypeOf[E Element]() DType {
	return DTypeOf(reflect.TypeFor[E]())
}

func (a *Array) DType() DType { return a.dtype }

// Shape returns a copy of the dimension sizes.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

func (a *Array) Ndim() int { return len(a.shape) }

// Len returns the number of elements.
func (a *Array) Len() int {
	if a.dtype.Size() == 0 {
		return 0
	}
	return len(a.data) / a.dtype.Size()
}

func (a *Array) Nbytes() int { return len(a.data) }

// Bytes returns a copy of the little-endian, row-major element buffer.
func (a *Array) Bytes() []byte { return bytes.Clone(a.data) }

// Item returns element i of the flattened array as its natural Go type, or
// nil when i is out of range. Float16 elements are widened to float32.
func (a *Array) Item(i int) any {
	if a == nil || i < 0 || i >= a.Len() {
		return nil
	}
	size := a.dtype.Size()
	b := a.data[i*size : (i+1)*size]
	le := binary.LittleEndian
	switch a.dtype {
	case Bool:
		return b[0] != 0
	case Int8:
		return int8(b[0])
	case Int16:
		return int16(le.Uint16(b))
	case Int32:
		return int32(le.Uint32(b))
	case Int64:
		return int64(le.Uint64(b))
	case Uint8:
		return b[0]
	case Uint16:
		return le.Uint16(b)
	case Uint32:
		return le.Uint32(b)
	case Uint64:
		return le.Uint64(b)
	case Float16:
		return halfToFloat32(le.Uint16(b))
	case Float32:
		return math.Float32frombits(le.Uint32(b))
	case Float64:
		return math.Float64frombits(le.Uint64(b))
	case Complex64:
		return complex(math.Float32frombits(le.Uint32(b)), math.Float32frombits(le.Uint32(b[4:])))
	case Complex128:
		return complex(math.Float64frombits(le.Uint64(b)), math.Float64frombits(le.Uint64(b[8:])))
	}
	return nil
}

// At returns the element at the given multi-dimensional index.
func (a *Array) At(idx ...int) (any, error) {
	if len(idx) != len(a.shape) {
		return nil, fmt.Errorf("%w: %d indices for %d-d array", ErrIndex, len(idx), len(a.shape))
	}
	flat := 0
	for axis, i := range idx {
		if i < 0 || i >= a.shape[axis] {
			return nil, fmt.Errorf("%w: index %d for axis %d of size %d", ErrIndex, i, axis, a.shape[axis])
		}
		flat = flat*a.shape[axis] + i
	}
	return a.Item(flat), nil
}

// Reshape returns an array with the same elements and a new shape. At most
// one dimension may be -1, in which case it is inferred.
func (a *Array) Reshape(shape ...int) (*Array, error) {
	shape = slices.Clone(nonNilShape(shape))
	infer := -1
	known := 1
	for i, dim := range shape {
		switch {
		case dim == -1 && infer < 0:
			infer = i
		case dim < 0:
			return nil, fmt.Errorf("%w: cannot reshape to %s", ErrInvalidShape, FormatShape(shape))
		default:
			known *= dim
		}
	}
	if infer >= 0 {
		if known == 0 || a.Len()%known != 0 {
			return nil, fmt.Errorf("%w: cannot reshape %d elements to %s", ErrInvalidShape, a.Len(), FormatShape(shape))
		}
		shape[infer] = a.Len() / known
	}
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if n != a.Len() {
		return nil, fmt.Errorf("%w: cannot reshape %d elements to %s", ErrInvalidShape, a.Len(), FormatShape(shape))
	}
	// The buffer is shared; neither array ever writes to it.
	return &Array{dtype: a.dtype, shape: shape, data: a.data}, nil
}

// Equal reports whether a and b have the same dtype, shape and bytes.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.dtype == b.dtype && slices.Equal(a.shape, b.shape) && bytes.Equal(a.data, b.data)
}

const maxFormatted = 1000

func (a *Array) String() string {
	if a == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString("array(")
	if a.Len() > maxFormatted {
		sb.WriteString("...")
	} else {
		a.formatAxis(&sb, 0, 0)
	}
	fmt.Fprintf(&sb, ", shape=%s, dtype=%s)", FormatShape(a.shape), a.dtype)
	return sb.String()
}

func (a *Array) formatAxis(sb *strings.Builder, axis, offset int) {
	if axis == len(a.shape) {
		fmt.Fprint(sb, a.Item(offset))
		return
	}
	stride := 1
	for _, dim := range a.shape[axis+1:] {
		stride *= dim
	}
	sb.WriteByte('[')
	for i := range a.shape[axis] {
		if i > 0 {
			sb.WriteByte(' ')
		}
		a.formatAxis(sb, axis+1, offset+i*stride)
	}
	sb.WriteByte(']')
}

// NumElements returns the product of the dimensions in shape.
func NumElements(shape []int) (int, error) {
	n := 1
	for axis, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("%w: axis %d has negative size %d", ErrInvalidShape, axis, dim)
		}
		if dim != 0 && n > math.MaxInt/dim {
			return 0, fmt.Errorf("%w: %s overflows element count", ErrInvalidShape, FormatShape(shape))
		}
		n *= dim
	}
	return n, nil
}

// FormatShape renders shape as a tuple literal: (), (3,) or (3, 3).
func FormatShape(shape []int) string {
	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return "(" + strconv.Itoa(shape[0]) + ",)"
	}
	parts := make([]string, len(shape))
	for i, dim := range shape {
		parts[i] = strconv.Itoa(dim)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func byteSize(dtype DType, shape []int) (int, error) {
	n, err := NumElements(shape)
	if err != nil {
		return 0, err
	}
	if size := dtype.Size(); n > math.MaxInt/size {
		return 0, fmt.Errorf("%w: %s of %s overflows buffer size", ErrInvalidShape, FormatShape(shape), dtype)
	}
	return n * dtype.Size(), nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func nonNilShape(shape []int) []int {
	if shape == nil {
		return []int{}
	}
	return shape
}
