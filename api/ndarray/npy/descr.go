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
	"strconv"
	"strings"

	"github.com/ngnhng/npymsgpack/api/ndarray"
)

// kindCode returns the kind character of dt in a descr string, or 0 for an
// invalid dtype.
func kindCode(dt ndarray.DType) byte {
	switch {
	case dt == ndarray.Bool:
		return 'b'
	case dt.IsSigned():
		return 'i'
	case dt.IsUnsigned():
		return 'u'
	case dt.IsFloat():
		return 'f'
	case dt.IsComplex():
		return 'c'
	}
	return 0
}

// descrFor returns the descr written for dt, e.g. "<i8" or "|u1".
func descrFor(dt ndarray.DType) string {
	order := "<"
	if dt.Size() == 1 {
		order = "|"
	}
	return order + string(kindCode(dt)) + strconv.Itoa(dt.Size())
}

// parseDescr resolves a descr string to a dtype and reports whether the data
// is stored big-endian.
func parseDescr(descr string) (ndarray.DType, bool, error) {
	s := descr
	bigEndian := false
	if s != "" {
		switch s[0] {
		case '>', '!':
			bigEndian = true
			s = s[1:]
		case '<', '|', '=':
			s = s[1:]
		}
	}
	if len(s) < 2 {
		return ndarray.Invalid, false, &UnsupportedTypeError{Descr: strconv.Quote(descr)}
	}

	kind := s[0]
	size, err := strconv.Atoi(s[1:])
	if err != nil || strings.ContainsAny(s[1:], "+-") {
		return ndarray.Invalid, false, &UnsupportedTypeError{Descr: strconv.Quote(descr)}
	}
	for dt := ndarray.Bool; dt.Valid(); dt++ {
		if kindCode(dt) == kind && dt.Size() == size {
			return dt, bigEndian && size > 1, nil
		}
	}
	return ndarray.Invalid, false, &UnsupportedTypeError{Descr: strconv.Quote(descr)}
}

// componentSize is the width of the unit that gets byte-swapped.
func componentSize(dt ndarray.DType) int {
	if dt.IsComplex() {
		return dt.Size() / 2
	}
	return dt.Size()
}

func swapBytes(data []byte, width int) {
	if width <= 1 {
		return
	}
	for off := 0; off+width <= len(data); off += width {
		w := data[off : off+width]
		for i, j := 0, width-1; i < j; i, j = i+1, j-1 {
			w[i], w[j] = w[j], w[i]
		}
	}
}
