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
	"bytes"
	"cmp"
	"fmt"
	"io"
	"reflect"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// maxDepth bounds container and pointer nesting on both pack and unpack.
const maxDepth = 512

// DefaultFunc is called for every value the Packer cannot encode natively.
// It returns the extension to emit in its place.
type DefaultFunc func(v any) (*Ext, error)

var (
	extType           = reflect.TypeFor[Ext]()
	extPtrType        = reflect.TypeFor[*Ext]()
	timeType          = reflect.TypeFor[time.Time]()
	customEncoderType = reflect.TypeFor[msgpack.CustomEncoder]()
	marshalerType     = reflect.TypeFor[msgpack.Marshaler]()
)

// Packer writes values as MessagePack.
//
// nil, bools, integers, floats, strings, byte slices, slices, arrays, maps,
// time.Time, Ext, and types implementing msgpack.CustomEncoder or
// msgpack.Marshaler are encoded natively. Every other value (structs, complex
// numbers, channels, functions) is handed to Default; without a Default the
// pack fails with an *UnknownTypeError, so nothing is dropped silently.
type Packer struct {
	Default     DefaultFunc
	SortMapKeys bool
}

// Pack returns the MessagePack encoding of v.
func (p *Packer) Pack(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the MessagePack encoding of v to w.
func (p *Packer) Encode(w io.Writer, v any) error {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	enc.Reset(w)
	enc.SetSortMapKeys(p.SortMapKeys)
	return p.encode(enc, reflect.ValueOf(v), 0)
}

func (p *Packer) encode(enc *msgpack.Encoder, v reflect.Value, depth int) error {
	if depth > maxDepth {
		return ErrMaxDepth
	}
	if !v.IsValid() {
		return enc.EncodeNil()
	}

	t := v.Type()
	switch {
	case t == extType:
		ext := v.Interface().(Ext)
		return writeExt(enc, ext.Tag, ext.Data)
	case t == extPtrType:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		ext := v.Interface().(*Ext)
		return writeExt(enc, ext.Tag, ext.Data)
	case t == timeType:
		return enc.EncodeTime(v.Interface().(time.Time))
	case t.Kind() != reflect.Interface && (t.Implements(customEncoderType) || t.Implements(marshalerType)):
		if t.Kind() == reflect.Pointer && v.IsNil() {
			return enc.EncodeNil()
		}
		return enc.Encode(v.Interface())
	}

	switch t.Kind() {
	case reflect.Bool:
		return enc.EncodeBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return enc.EncodeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return enc.EncodeUint(v.Uint())
	case reflect.Float32:
		return enc.EncodeFloat32(float32(v.Float()))
	case reflect.Float64:
		return enc.EncodeFloat64(v.Float())
	case reflect.String:
		return enc.EncodeString(v.String())
	case reflect.Slice:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return enc.EncodeBytes(v.Bytes())
		}
		return p.encodeArray(enc, v, depth)
	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			for i := range b {
				b[i] = byte(v.Index(i).Uint())
			}
			return enc.EncodeBytes(b)
		}
		return p.encodeArray(enc, v, depth)
	case reflect.Map:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		return p.encodeMap(enc, v, depth)
	case reflect.Interface:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		return p.encode(enc, v.Elem(), depth+1)
	case reflect.Pointer:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		if t.Elem().Kind() != reflect.Struct || t.Elem() == timeType {
			return p.encode(enc, v.Elem(), depth+1)
		}
	}
	return p.encodeUnknown(enc, v)
}

func (p *Packer) encodeArray(enc *msgpack.Encoder, v reflect.Value, depth int) error {
	n := v.Len()
	if err := enc.EncodeArrayLen(n); err != nil {
		return err
	}
	for i := range n {
		if err := p.encode(enc, v.Index(i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) encodeMap(enc *msgpack.Encoder, v reflect.Value, depth int) error {
	if err := enc.EncodeMapLen(v.Len()); err != nil {
		return err
	}
	keys := v.MapKeys()
	if p.SortMapKeys {
		slices.SortFunc(keys, compareKeys)
	}
	for _, k := range keys {
		if err := p.encode(enc, k, depth+1); err != nil {
			return err
		}
		if err := p.encode(enc, v.MapIndex(k), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (p *Packer) encodeUnknown(enc *msgpack.Encoder, v reflect.Value) error {
	if p.Default == nil || !v.CanInterface() {
		return &UnknownTypeError{Type: v.Type()}
	}
	ext, err := p.Default(v.Interface())
	if err != nil {
		return err
	}
	if ext == nil {
		return &UnknownTypeError{Type: v.Type()}
	}
	return writeExt(enc, ext.Tag, ext.Data)
}

func writeExt(enc *msgpack.Encoder, tag int8, data []byte) error {
	if err := enc.EncodeExtHeader(tag, len(data)); err != nil {
		return err
	}
	_, err := enc.Writer().Write(data)
	return err
}

// compareKeys orders map keys of mixed dynamic types deterministically.
func compareKeys(a, b reflect.Value) int {
	for a.Kind() == reflect.Interface && !a.IsNil() {
		a = a.Elem()
	}
	for b.Kind() == reflect.Interface && !b.IsNil() {
		b = b.Elem()
	}
	if a.Kind() == b.Kind() {
		switch a.Kind() {
		case reflect.String:
			return cmp.Compare(a.String(), b.String())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return cmp.Compare(a.Int(), b.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			return cmp.Compare(a.Uint(), b.Uint())
		case reflect.Float32, reflect.Float64:
			return cmp.Compare(a.Float(), b.Float())
		}
	}
	return cmp.Compare(keyString(a), keyString(b))
}

func keyString(v reflect.Value) string {
	if !v.IsValid() || !v.CanInterface() {
		return ""
	}
	return fmt.Sprintf("%T:%v", v.Interface(), v.Interface())
}
