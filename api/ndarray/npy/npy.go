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
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ngnhng/npymsgpack/api/ndarray"
)

var magic = []byte("\x93NUMPY")

// Encode serializes a into the NPY byte layout. The output depends only on
// the array's dtype, shape and elements.
func Encode(a *ndarray.Array) ([]byte, error) {
	if a == nil {
		return nil, ErrNilArray
	}
	var buf bytes.Buffer
	buf.Grow(arrayAlign*2 + a.Nbytes())
	if _, err := Write(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the NPY encoding of a to w and returns the number of bytes written.
func Write(w io.Writer, a *ndarray.Array) (int64, error) {
	if a == nil {
		return 0, ErrNilArray
	}
	if !a.DType().Valid() {
		return 0, &UnsupportedTypeError{Descr: a.DType().String()}
	}
	pre, err := preamble(Header{
		Descr: descrFor(a.DType()),
		DType: a.DType(),
		Shape: a.Shape(),
	})
	if err != nil {
		return 0, err
	}

	n, err := w.Write(pre)
	if err != nil {
		return int64(n), fmt.Errorf("npy: write header: %w", err)
	}
	m, err := w.Write(a.Bytes())
	if err != nil {
		return int64(n + m), fmt.Errorf("npy: write data: %w", err)
	}
	return int64(n + m), nil
}

// Decode parses an NPY byte sequence. The data section must be exactly as
// long as the header's shape and dtype require.
func Decode(data []byte) (*ndarray.Array, error) {
	r := bytes.NewReader(data)
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	want, err := dataSize(h)
	if err != nil {
		return nil, err
	}
	rest := data[len(data)-r.Len():]
	if int64(len(rest)) != want {
		return nil, &SizeMismatchError{Shape: h.Shape, DType: h.DType, Want: want, Got: int64(len(rest))}
	}
	return build(h, rest)
}

// Read consumes one NPY array from r. Bytes after the data section are left unread.
func Read(r io.Reader) (*ndarray.Array, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	want, err := dataSize(h)
	if err != nil {
		return nil, err
	}

	// CopyN grows the buffer as data arrives instead of trusting the header.
	var buf bytes.Buffer
	got, err := io.CopyN(&buf, r, want)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("npy: read data: %w", err)
	}
	if got != want {
		return nil, &SizeMismatchError{Shape: h.Shape, DType: h.DType, Want: want, Got: got}
	}
	return build(h, buf.Bytes())
}

// ReadHeader consumes the magic string, version, and header dictionary from r.
func ReadHeader(r io.Reader) (Header, error) {
	var pre [8]byte
	if _, err := io.ReadFull(r, pre[:]); err != nil {
		return Header{}, &FormatError{Reason: "truncated preamble", Err: err}
	}
	if !bytes.Equal(pre[:len(magic)], magic) {
		return Header{}, formatErrorf("bad magic string %q", pre[:len(magic)])
	}

	major, minor := pre[6], pre[7]
	var hlen int
	switch {
	case major == 1 && minor == 0:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Header{}, &FormatError{Reason: "truncated header length", Err: err}
		}
		hlen = int(binary.LittleEndian.Uint16(b[:]))
	case (major == 2 || major == 3) && minor == 0:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Header{}, &FormatError{Reason: "truncated header length", Err: err}
		}
		hlen = int(binary.LittleEndian.Uint32(b[:]))
	default:
		return Header{}, formatErrorf("unsupported format version %d.%d", major, minor)
	}
	if hlen > maxHeaderSize {
		return Header{}, formatErrorf("header length %d exceeds limit %d", hlen, maxHeaderSize)
	}

	text := make([]byte, hlen)
	if _, err := io.ReadFull(r, text); err != nil {
		return Header{}, &FormatError{Reason: "truncated header", Err: err}
	}
	h, err := parseHeader(string(text))
	if err != nil {
		return Header{}, err
	}
	h.Major, h.Minor = major, minor
	return h, nil
}

// preamble builds magic, version, header length and padded header. Version
// 1.0 is used whenever its 16-bit length field is wide enough.
func preamble(h Header) ([]byte, error) {
	dict := dictLiteral(h)
	for _, major := range []uint8{1, 2} {
		lenSize := 2
		if major > 1 {
			lenSize = 4
		}
		hlen := len(dict) + 1
		padlen := arrayAlign - (len(magic)+2+lenSize+hlen)%arrayAlign
		total := hlen + padlen
		if major == 1 && total > math.MaxUint16 {
			continue
		}

		buf := make([]byte, 0, len(magic)+2+lenSize+total)
		buf = append(buf, magic...)
		buf = append(buf, major, 0)
		if lenSize == 2 {
			buf = binary.LittleEndian.AppendUint16(buf, uint16(total))
		} else {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(total))
		}
		buf = append(buf, dict...)
		buf = append(buf, bytes.Repeat([]byte{' '}, padlen)...)
		buf = append(buf, '\n')
		return buf, nil
	}
	return nil, formatErrorf("header of %d bytes is too large", len(dict))
}

func dataSize(h Header) (int64, error) {
	n, err := ndarray.NumElements(h.Shape)
	if err != nil {
		return 0, &FormatError{Reason: "invalid shape", Err: err}
	}
	size := int64(h.DType.Size())
	if int64(n) > math.MaxInt64/size {
		return 0, formatErrorf("shape %s of %s overflows data size", ndarray.FormatShape(h.Shape), h.DType)
	}
	return int64(n) * size, nil
}

// build converts the raw data section into the canonical little-endian,
// row-major buffer and wraps it in an Array.
func build(h Header, data []byte) (*ndarray.Array, error) {
	if h.BigEndian {
		data = bytes.Clone(data)
		swapBytes(data, componentSize(h.DType))
	}
	if h.FortranOrder && len(h.Shape) > 1 {
		data = toRowMajor(data, h.Shape, h.DType.Size())
	}
	a, err := ndarray.New(h.DType, h.Shape, data)
	if err != nil {
		return nil, &FormatError{Reason: "cannot build array", Err: err}
	}
	return a, nil
}

// toRowMajor reorders a column-major buffer so the last axis varies fastest.
func toRowMajor(src []byte, shape []int, size int) []byte {
	ndim := len(shape)
	strides := make([]int, ndim)
	stride := 1
	for k := range ndim {
		strides[k] = stride
		stride *= shape[k]
	}

	dst := make([]byte, len(src))
	idx := make([]int, ndim)
	off := 0
	for i := range len(src) / size {
		copy(dst[i*size:(i+1)*size], src[off*size:(off+1)*size])
		for k := ndim - 1; k >= 0; k-- {
			idx[k]++
			off += strides[k]
			if idx[k] < shape[k] {
				break
			}
			off -= strides[k] * shape[k]
			idx[k] = 0
		}
	}
	return dst
}
