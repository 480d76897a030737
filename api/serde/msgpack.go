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
)

var _ BinarySerde = (*MsgpackSerde)(nil)

// DefaultMaxExtLen caps extension payloads accepted by an Unpacker.
const DefaultMaxExtLen = 256 << 20

// MsgpackSerde implements the BinarySerde interface using MessagePack, with
// the values of an extension Table embedded as tagged ext payloads.
//
// The zero value packs and unpacks with DefaultTable and DefaultMaxExtLen.
// A MsgpackSerde is safe for concurrent use.
type MsgpackSerde struct {
	table     *Table
	maxExtLen int
	sortKeys  bool
}

// Option configures a MsgpackSerde.
type Option func(*MsgpackSerde)

// WithTable replaces the default extension table.
func WithTable(t *Table) Option {
	return func(m *MsgpackSerde) {
		m.table = t
	}
}

// WithMaxExtLen sets the largest accepted extension payload. n < 0 removes
// the limit; 0 restores DefaultMaxExtLen.
func WithMaxExtLen(n int) Option {
	return func(m *MsgpackSerde) {
		m.maxExtLen = n
	}
}

// WithSortedMapKeys makes map encoding deterministic.
func WithSortedMapKeys(sorted bool) Option {
	return func(m *MsgpackSerde) {
		m.sortKeys = sorted
	}
}

func NewMsgpackSerde(opts ...Option) *MsgpackSerde {
	m := &MsgpackSerde{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Table returns the extension table in use.
func (m *MsgpackSerde) Table() *Table {
	if m.table == nil {
		return DefaultTable()
	}
	return m.table
}

// Packer returns a Packer wired to the table's encode hook.
func (m *MsgpackSerde) Packer() *Packer {
	return &Packer{
		Default:     m.Table().EncodeHook,
		SortMapKeys: m.sortKeys,
	}
}

// Unpacker returns an Unpacker wired to the table's decode hook.
func (m *MsgpackSerde) Unpacker() *Unpacker {
	return &Unpacker{
		ExtHook:   m.Table().DecodeHook,
		MaxExtLen: m.maxExtLen,
	}
}

// SerializeBinary serializes a Go value to MessagePack binary format.
func (m *MsgpackSerde) SerializeBinary(value any) ([]byte, error) {
	data, err := m.Packer().Pack(value)
	if err != nil {
		return nil, fmt.Errorf("msgpack serialization failed: %w", err)
	}
	return data, nil
}

// DeserializeBinary deserializes MessagePack binary data into a Go value.
// valuePtr may point at any, at a registered extension type, or at any type
// the decoded tree converts to.
func (m *MsgpackSerde) DeserializeBinary(data []byte, valuePtr any) error {
	rv := reflect.ValueOf(valuePtr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("msgpack deserialization failed: %w: got %T", ErrInvalidTarget, valuePtr)
	}

	decoded, err := m.Unpacker().Unpack(data)
	if err != nil {
		return fmt.Errorf("msgpack deserialization failed: %w", err)
	}

	elem := rv.Elem()
	converted, err := NewTypeConverter().ConvertToType(decoded, elem.Type())
	if err != nil {
		return fmt.Errorf("msgpack deserialization failed: %w", err)
	}
	elem.Set(converted)
	return nil
}

var defaultSerde = &MsgpackSerde{}

// Pack encodes v with DefaultTable.
func Pack(v any) ([]byte, error) {
	return defaultSerde.Packer().Pack(v)
}

// Unpack decodes data with DefaultTable.
func Unpack(data []byte) (any, error) {
	return defaultSerde.Unpacker().Unpack(data)
}
