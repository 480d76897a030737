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
	"maps"
	"reflect"
	"slices"
)

// Ext is a tagged extension value: an application tag and an opaque payload.
// Unpacking yields *Ext for tags that no table entry claims, and packing an
// Ext re-emits it unchanged.
type Ext struct {
	Tag  int8
	Data []byte
}

func (e *Ext) String() string {
	return fmt.Sprintf("Ext(tag=%d, len=%d)", e.Tag, len(e.Data))
}

// EncodeFunc turns a registered value into an extension payload.
type EncodeFunc func(v any) ([]byte, error)

// DecodeFunc rebuilds a value from an extension payload.
type DecodeFunc func(data []byte) (any, error)

// Extension binds a tag to a Go type and its payload codec.
type Extension struct {
	Tag    int8
	Type   reflect.Type
	Encode EncodeFunc
	Decode DecodeFunc
}

// Table maps extension tags to codecs. It is immutable once built, so one
// Table can serve any number of concurrent pack and unpack calls.
type Table struct {
	byTag  map[int8]Extension
	byType map[reflect.Type]Extension
}

// NewTable validates and registers exts. Tags must be unique and within
// 0..127, and each Go type may be bound to only one tag.
func NewTable(exts ...Extension) (*Table, error) {
	t := &Table{
		byTag:  make(map[int8]Extension, len(exts)),
		byType: make(map[reflect.Type]Extension, len(exts)),
	}
	for _, ext := range exts {
		if err := t.add(ext); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// With returns a new table holding t's extensions plus exts.
func (t *Table) With(exts ...Extension) (*Table, error) {
	return NewTable(append(t.Extensions(), exts...)...)
}

func (t *Table) add(ext Extension) error {
	var cause error
	switch {
	case ext.Tag < 0:
		cause = ErrReservedTag
	case ext.Type == nil || ext.Encode == nil || ext.Decode == nil:
		cause = ErrInvalidExtension
	default:
		if _, ok := t.byTag[ext.Tag]; ok {
			cause = ErrDuplicateTag
		} else if _, ok := t.byType[ext.Type]; ok {
			cause = ErrDuplicateType
		}
	}
	if cause != nil {
		return &RegistrationError{Tag: ext.Tag, Type: ext.Type, Cause: cause}
	}

	t.byTag[ext.Tag] = ext
	t.byType[ext.Type] = ext
	return nil
}

// Lookup returns the extension registered under tag.
func (t *Table) Lookup(tag int8) (Extension, bool) {
	if t == nil {
		return Extension{}, false
	}
	ext, ok := t.byTag[tag]
	return ext, ok
}

// Extensions returns the registered extensions ordered by tag.
func (t *Table) Extensions() []Extension {
	if t == nil {
		return nil
	}
	tags := slices.Sorted(maps.Keys(t.byTag))
	out := make([]Extension, len(tags))
	for i, tag := range tags {
		out[i] = t.byTag[tag]
	}
	return out
}

// EncodeHook is the packer's fallback for values it cannot encode natively.
// Registered types are wrapped in their tag; anything else fails with an
// *UnknownTypeError naming the type.
func (t *Table) EncodeHook(v any) (*Ext, error) {
	ext, val, ok := t.lookupValue(v)
	if !ok {
		return nil, &UnknownTypeError{Type: reflect.TypeOf(v)}
	}
	data, err := ext.Encode(val)
	if err != nil {
		return nil, fmt.Errorf("serde: encode extension %d (%v): %w", ext.Tag, ext.Type, err)
	}
	return &Ext{Tag: ext.Tag, Data: data}, nil
}

// DecodeHook is the unpacker's callback for extension payloads. Unregistered
// tags come back as *Ext untouched so foreign extensions survive the trip.
func (t *Table) DecodeHook(tag int8, data []byte) (any, error) {
	ext, ok := t.Lookup(tag)
	if !ok {
		return &Ext{Tag: tag, Data: data}, nil
	}
	v, err := ext.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("serde: decode extension %d: %w", tag, err)
	}
	return v, nil
}

// lookupValue finds the extension for v. A value whose pointer type is
// registered is boxed so the encoder always sees the registered type.
func (t *Table) lookupValue(v any) (Extension, any, bool) {
	if t == nil || v == nil {
		return Extension{}, nil, false
	}
	typ := reflect.TypeOf(v)
	if ext, ok := t.byType[typ]; ok {
		return ext, v, true
	}
	if ext, ok := t.byType[reflect.PointerTo(typ)]; ok {
		ptr := reflect.New(typ)
		ptr.Elem().Set(reflect.ValueOf(v))
		return ext, ptr.Interface(), true
	}
	return Extension{}, nil, false
}
