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

package serde

import (
	"fmt"
	"reflect"

	"github.com/ngnhng/npymsgpack/api/ndarray"
	"github.com/ngnhng/npymsgpack/api/ndarray/npy"
)

// NDArrayTag is the extension tag carrying NPY-encoded arrays.
const NDArrayTag int8 = 0

var defaultTable = mustTable(NDArrayExtension(NDArrayTag))

// DefaultTable returns the shared table that maps NDArrayTag to *ndarray.Array.
func DefaultTable() *Table {
	return defaultTable
}

// NDArrayExtension binds *ndarray.Array to tag using the NPY layout as payload.
func NDArrayExtension(tag int8) Extension {
	typ := reflect.TypeFor[*ndarray.Array]()
	return Extension{
		Tag:  tag,
		Type: typ,
		Encode: func(v any) ([]byte, error) {
			a, ok := v.(*ndarray.Array)
			if !ok {
				return nil, &UnknownTypeError{Type: reflect.TypeOf(v)}
			}
			return npy.Encode(a)
		},
		Decode: func(data []byte) (any, error) {
			a, err := npy.Decode(data)
			if err != nil {
				return nil, err
			}
			return a, nil
		},
	}
}

func mustTable(exts ...Extension) *Table {
	t, err := NewTable(exts...)
	if err != nil {
		panic(fmt.Sprintf("serde: invalid built-in table: %v", err))
	}
	return t
}
