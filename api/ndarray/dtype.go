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

import "fmt"

// DType identifies the fixed-width element kind of an Array.
type DType uint8

const (
	Invalid DType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	// Float16 is stored as raw IEEE 754 half-precision bits. Go has no
	// native element type for it, so it is only reachable through Bytes.
	Float16
	Float32
	Float64
	Complex64
	Complex128
)

var dtypeInfo = [...]struct {
	name string
	size int
}{
	Invalid:    {"invalid", 0},
	Bool:       {"bool", 1},
	Int8:       {"int8", 1},
	Int16:      {"int16", 2},
	Int32:      {"int32", 4},
	Int64:      {"int64", 8},
	Uint8:      {"uint8", 1},
	Uint16:     {"uint16", 2},
	Uint32:     {"uint32", 4},
	Uint64:     {"uint64", 8},
	Float16:    {"float16", 2},
	Float32:    {"float32", 4},
	Float64:    {"float64", 8},
	Complex64:  {"complex64", 8},
	Complex128: {"complex128", 16},
}

// Valid reports whether d is one of the supported element kinds.
func (d DType) Valid() bool {
	return d > Invalid && int(d) < len(dtypeInfo)
}

// Size returns the width of one element in bytes, or 0 for an invalid dtype.
func (d DType) Size() int {
	if !d.Valid() {
		return 0
	}
	return dtypeInfo[d].size
}

func (d DType) String() string {
	if !d.Valid() {
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
	return dtypeInfo[d].name
}

// IsSigned reports whether d is a signed integer kind.
func (d DType) IsSigned() bool {
	return d >= Int8 && d <= Int64
}

func (d DType) IsUnsigned() bool {
	return d >= Uint8 && d <= Uint64
}

func (d DType) IsFloat() bool {
	return d >= Float16 && d <= Float64
}

func (d DType) IsComplex() bool {
	return d == Complex64 || d == Complex128
}

// ParseDType returns the dtype with the given numpy name, e.g. "float32".
func ParseDType(name string) (DType, error) {
	for i := range dtypeInfo {
		d := DType(i)
		if d.Valid() && dtypeInfo[i].name == name {
			return d, nil
		}
	}
	return Invalid, fmt.Errorf("%w: %q", ErrInvalidDType, name)
}
