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
	"errors"
	"fmt"

	"github.com/ngnhng/npymsgpack/api/ndarray"
)

var (
	// ErrFormat matches every *FormatError.
	ErrFormat = errors.New("npy: malformed array data")

	// ErrUnsupportedType matches every *UnsupportedTypeError.
	ErrUnsupportedType = errors.New("npy: unsupported element type")

	// ErrSizeMismatch matches every *SizeMismatchError.
	ErrSizeMismatch = errors.New("npy: data size does not match shape")

	// ErrNilArray is returned when encoding a nil array.
	ErrNilArray = errors.New("npy: nil array")
)

// FormatError reports a bad magic string, version, preamble or header.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("npy: malformed array data: %s: %v", e.Reason, e.Err)
	}
	return "npy: malformed array data: " + e.Reason
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func (e *FormatError) Unwrap() error { return e.Err }

func formatErrorf(format string, args ...any) *FormatError {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// UnsupportedTypeError reports a descr that is not a fixed-width numeric kind,
// including object (pickle) and structured dtypes.
type UnsupportedTypeError struct {
	Descr string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("npy: unsupported element type %s", e.Descr)
}

func (e *UnsupportedTypeError) Is(target error) bool { return target == ErrUnsupportedType }

// SizeMismatchError reports a data section whose length disagrees with the
// header's shape and dtype.
type SizeMismatchError struct {
	Shape []int
	DType ndarray.DType
	Want  int64
	Got   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("npy: shape %s of %s needs %d data bytes, got %d",
		ndarray.FormatShape(e.Shape), e.DType, e.Want, e.Got)
}

func (e *SizeMismatchError) Is(target error) bool { return target == ErrSizeMismatch }
