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
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrUnknownType matches every *UnknownTypeError.
	ErrUnknownType = errors.New("serde: unknown type")

	// ErrReservedTag is returned when registering a negative tag; those are
	// reserved by the msgpack format (-1 is the timestamp).
	ErrReservedTag = errors.New("serde: extension tag outside application range 0..127")

	ErrDuplicateTag     = errors.New("serde: extension tag already registered")
	ErrDuplicateType    = errors.New("serde: extension type already registered")
	ErrInvalidExtension = errors.New("serde: extension needs a type, an encoder and a decoder")

	ErrMaxDepth    = errors.New("serde: maximum nesting depth exceeded")
	ErrExtraData   = errors.New("serde: extra data after packed value")
	ErrExtTooLarge = errors.New("serde: extension payload too large")

	ErrInvalidTarget = errors.New("serde: target must be a non-nil pointer")
)

// UnknownTypeError is returned when a value is neither natively packable nor
// registered as an extension.
type UnknownTypeError struct {
	Type reflect.Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("serde: unknown type: cannot pack value of type %v", e.Type)
}

func (e *UnknownTypeError) Is(target error) bool { return target == ErrUnknownType }

// RegistrationError represents an extension rejected while building a Table.
type RegistrationError struct {
	Tag   int8
	Type  reflect.Type
	Cause error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register extension %d (%v): %v", e.Tag, e.Type, e.Cause)
}

func (e *RegistrationError) Unwrap() error {
	return e.Cause
}
