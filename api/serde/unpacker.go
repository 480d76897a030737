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
	"fmt"
	"io"
	"reflect"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// timestampTag is the msgpack-defined extension for time.Time.
const timestampTag int8 = -1

const (
	// preallocLimit caps capacity taken from untrusted length prefixes.
	preallocLimit = 1024
	// payloadChunk is the read step for extension payloads past the limit check.
	payloadChunk = 1 << 20
)

// ExtHookFunc is called for every extension in the stream except the
// timestamp; its result replaces the extension in the decoded tree.
type ExtHookFunc func(tag int8, data []byte) (any, error)

// Unpacker reads MessagePack into dynamic Go values: nil, bool, sized
// integers, float32/float64, string, []byte, []any, map[string]any (or
// map[any]any when a key is not a string), time.Time, and whatever ExtHook
// returns. Without an ExtHook extensions come back as *Ext.
type Unpacker struct {
	ExtHook ExtHookFunc

	// MaxExtLen rejects extension payloads longer than this many bytes.
	// Zero means DefaultMaxExtLen; a negative value removes the limit.
	MaxExtLen int
}

// Unpack decodes exactly one value from data.
func (u *Unpacker) Unpack(data []byte) (any, error) {
	r := bytes.NewReader(data)
	v, err := u.Decode(r)
	if err != nil {
		return nil, err
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrExtraData, r.Len())
	}
	return v, nil
}

// Decode reads one value from r. Unless r implements io.ByteScanner it may be
// read past the end of the value.
func (u *Unpacker) Decode(r io.Reader) (any, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)

	dec.Reset(r)
	return u.decode(dec, 0)
}

func (u *Unpacker) decode(dec *msgpack.Decoder, depth int) (any, error) {
	if depth > maxDepth {
		return nil, ErrMaxDepth
	}
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case msgpcode.IsExt(c):
		return u.decodeExt(dec)
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		return u.decodeArray(dec, depth)
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		return u.decodeMap(dec, depth)
	}
	return dec.DecodeInterface()
}

func (u *Unpacker) decodeArray(dec *msgpack.Decoder, depth int) (any, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, min(n, preallocLimit))
	for range n {
		v, err := u.decode(dec, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (u *Unpacker) decodeMap(dec *msgpack.Decoder, depth int) (any, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, err
	}
	keys := make([]any, 0, min(n, preallocLimit))
	vals := make([]any, 0, min(n, preallocLimit))
	stringKeys := true
	for range n {
		k, err := u.decode(dec, depth+1)
		if err != nil {
			return nil, err
		}
		v, err := u.decode(dec, depth+1)
		if err != nil {
			return nil, err
		}
		if _, ok := k.(string); !ok {
			stringKeys = false
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}

	if stringKeys {
		m := make(map[string]any, len(keys))
		for i, k := range keys {
			m[k.(string)] = vals[i]
		}
		return m, nil
	}
	m := make(map[any]any, len(keys))
	for i, k := range keys {
		if k != nil && !reflect.TypeOf(k).Comparable() {
			return nil, fmt.Errorf("serde: unhashable map key of type %T", k)
		}
		m[k] = vals[i]
	}
	return m, nil
}

func (u *Unpacker) decodeExt(dec *msgpack.Decoder) (any, error) {
	tag, n, err := dec.DecodeExtHeader()
	if err != nil {
		return nil, err
	}
	if limit := u.maxExtLen(); limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: tag %d carries %d bytes, limit is %d", ErrExtTooLarge, tag, n, limit)
	}
	data, err := readPayload(dec, n)
	if err != nil {
		return nil, fmt.Errorf("serde: read extension %d payload: %w", tag, err)
	}

	if tag == timestampTag {
		return decodeTimestamp(data)
	}
	if u.ExtHook == nil {
		return &Ext{Tag: tag, Data: data}, nil
	}
	return u.ExtHook(tag, data)
}

func (u *Unpacker) maxExtLen() int {
	if u.MaxExtLen == 0 {
		return DefaultMaxExtLen
	}
	return u.MaxExtLen
}

// readPayload grows the buffer as bytes arrive, so a forged length costs at
// most one chunk beyond the data actually present.
func readPayload(dec *msgpack.Decoder, n int) ([]byte, error) {
	data := make([]byte, 0, min(n, payloadChunk))
	for len(data) < n {
		k := min(n-len(data), payloadChunk)
		data = slices.Grow(data, k)
		if err := dec.ReadFull(data[len(data) : len(data)+k]); err != nil {
			return nil, err
		}
		data = data[:len(data)+k]
	}
	return data, nil
}

// decodeTimestamp hands the payload back to msgpack's own time decoder.
func decodeTimestamp(data []byte) (time.Time, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).EncodeExtHeader(timestampTag, len(data)); err != nil {
		return time.Time{}, err
	}
	buf.Write(data)

	var tm time.Time
	if err := msgpack.Unmarshal(buf.Bytes(), &tm); err != nil {
		return time.Time{}, fmt.Errorf("serde: decode timestamp: %w", err)
	}
	return tm, nil
}
