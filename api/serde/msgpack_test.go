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

package serde_test

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/ngnhng/npymsgpack/api/ndarray"
	"github.com/ngnhng/npymsgpack/api/ndarray/npy"
	"github.com/ngnhng/npymsgpack/api/serde"
)

func TestPackSequentialGrid(t *testing.T) {
	flat, err := ndarray.Arange(ndarray.Int64, 9)
	if err != nil {
		t.Fatal(err)
	}
	grid, err := flat.Reshape(3, 3)
	if err != nil {
		t.Fatal(err)
	}

	packed, err := serde.Pack(grid)
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	// ext8, 128-byte preamble + 72 bytes of data, tag 0
	if want := []byte{0xc7, 200, 0x00}; !bytes.Equal(packed[:3], want) {
		t.Fatalf("expected ext header % x, got % x", want, packed[:3])
	}
	payload, _ := npy.Encode(grid)
	if !bytes.Equal(packed[3:], payload) {
		t.Fatal("ext payload differs from the NPY encoding")
	}

	got, err := serde.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	arr, ok := got.(*ndarray.Array)
	if !ok {
		t.Fatalf("expected *ndarray.Array, got %T", got)
	}
	if !arr.Equal(grid) {
		t.Errorf("expected %v, got %v", grid, arr)
	}
	if !reflect.DeepEqual(arr.Shape(), []int{3, 3}) {
		t.Errorf("expected shape (3, 3), got %v", arr.Shape())
	}
	vals, err := ndarray.Values[int64](arr)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vals {
		if v != int64(i) {
			t.Errorf("element %d: expected %d, got %d", i, i, v)
		}
	}
}

func TestPackZeroLengthArray(t *testing.T) {
	for _, dt := range []ndarray.DType{ndarray.Float32, ndarray.Int8, ndarray.Complex128, ndarray.Bool} {
		t.Run(dt.String(), func(t *testing.T) {
			empty, err := ndarray.Zeros(dt, 0)
			if err != nil {
				t.Fatal(err)
			}
			packed, err := serde.Pack(empty)
			if err != nil {
				t.Fatalf("Pack failed: %v", err)
			}
			got, err := serde.Unpack(packed)
			if err != nil {
				t.Fatalf("Unpack failed: %v", err)
			}
			arr := got.(*ndarray.Array)
			if arr.DType() != dt || arr.Len() != 0 || !reflect.DeepEqual(arr.Shape(), []int{0}) {
				t.Errorf("expected empty %v array of shape (0,), got %v", dt, arr)
			}
		})
	}
}

func TestPackNativeContainerSkipsHook(t *testing.T) {
	var calls atomic.Int32
	table := serde.DefaultTable()
	p := &serde.Packer{Default: func(v any) (*serde.Ext, error) {
		calls.Add(1)
		return table.EncodeHook(v)
	}}

	values := []any{
		[]int{1, 2, 3},
		map[string][]int{"a": {1}, "b": nil},
		[]any{"x", 1.5, true, nil, []byte("raw")},
	}
	for _, v := range values {
		packed, err := p.Pack(v)
		if err != nil {
			t.Fatalf("Pack(%v) failed: %v", v, err)
		}
		var out any
		if err := serde.NewMsgpackSerde().DeserializeBinary(packed, &out); err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
	}
	if n := calls.Load(); n != 0 {
		t.Fatalf("encode hook called %d times for native containers", n)
	}

	packed, err := p.Pack([]int{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	var ints []int
	if err := serde.NewMsgpackSerde().DeserializeBinary(packed, &ints); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if !reflect.DeepEqual(ints, []int{1, 2, 3}) {
		t.Errorf("expected [1 2 3], got %v", ints)
	}
}

func TestPackArraysInsideContainers(t *testing.T) {
	a, _ := ndarray.FromSlice([]float64{0.5, -1, 2})
	b := ndarray.Scalar[uint16](7)

	packed, err := serde.Pack(map[string]any{
		"weights": a,
		"nested":  []any{b, "label", serde.Ext{Tag: 12, Data: []byte{1}}},
	})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	got, err := serde.Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	m := got.(map[string]any)
	if !m["weights"].(*ndarray.Array).Equal(a) {
		t.Errorf("weights changed: %v", m["weights"])
	}
	nested := m["nested"].([]any)
	if !nested[0].(*ndarray.Array).Equal(b) {
		t.Errorf("scalar changed: %v", nested[0])
	}
	if nested[1] != "label" {
		t.Errorf("expected label, got %v", nested[1])
	}
	if ext, ok := nested[2].(*serde.Ext); !ok || ext.Tag != 12 {
		t.Errorf("foreign extension not passed through: %#v", nested[2])
	}
}

func TestMsgpackSerdeErrors(t *testing.T) {
	m := serde.NewMsgpackSerde()

	_, err := m.SerializeBinary(complex(1, 1))
	if !errors.Is(err, serde.ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}

	arr, _ := ndarray.Arange(ndarray.Uint8, 4)
	packed, _ := m.SerializeBinary([]any{arr})
	corrupt := bytes.Clone(packed)
	corrupt[bytes.Index(corrupt, []byte("NUMPY"))] = 'X'

	var out any
	if err := m.DeserializeBinary(corrupt, &out); !errors.Is(err, npy.ErrFormat) {
		t.Errorf("expected npy.ErrFormat, got %v", err)
	}

	truncated, _ := (&serde.Packer{}).Pack(serde.Ext{Tag: serde.NDArrayTag, Data: packed[4 : len(packed)-1]})
	if err := m.DeserializeBinary(truncated, &out); !errors.Is(err, npy.ErrSizeMismatch) {
		t.Errorf("expected npy.ErrSizeMismatch, got %v", err)
	}

	if err := m.DeserializeBinary(packed, out); !errors.Is(err, serde.ErrInvalidTarget) {
		t.Errorf("expected ErrInvalidTarget, got %v", err)
	}

	limited := serde.NewMsgpackSerde(serde.WithMaxExtLen(16))
	if err := limited.DeserializeBinary(packed, &out); !errors.Is(err, serde.ErrExtTooLarge) {
		t.Errorf("expected ErrExtTooLarge, got %v", err)
	}
	unlimited := serde.NewMsgpackSerde(serde.WithMaxExtLen(-1))
	if err := unlimited.DeserializeBinary(packed, &out); err != nil {
		t.Errorf("unexpected error without limit: %v", err)
	}
}

func TestPackZeroValueArray(t *testing.T) {
	if _, err := serde.Pack(&ndarray.Array{}); !errors.Is(err, npy.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestMsgpackSerdeTargets(t *testing.T) {
	type sample struct {
		Name  string `msgpack:"name"`
		Count int    `msgpack:"count"`
	}

	m := serde.NewMsgpackSerde(serde.WithSortedMapKeys(true))
	arr, _ := ndarray.FromSlice([]int32{4, 5, 6, 7}, 2, 2)

	t.Run("array pointer", func(t *testing.T) {
		data, err := m.SerializeBinary(arr)
		if err != nil {
			t.Fatal(err)
		}
		var got *ndarray.Array
		if err := m.DeserializeBinary(data, &got); err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
		if !got.Equal(arr) {
			t.Errorf("expected %v, got %v", arr, got)
		}
	})

	t.Run("typed map", func(t *testing.T) {
		data, err := m.SerializeBinary(map[string]any{"a": 1, "b": uint64(1 << 40)})
		if err != nil {
			t.Fatal(err)
		}
		var got map[string]int64
		if err := m.DeserializeBinary(data, &got); err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
		if want := map[string]int64{"a": 1, "b": 1 << 40}; !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("struct", func(t *testing.T) {
		data, err := m.SerializeBinary(map[string]any{"name": "alice", "count": 3})
		if err != nil {
			t.Fatal(err)
		}
		var got sample
		if err := m.DeserializeBinary(data, &got); err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
		if got != (sample{Name: "alice", Count: 3}) {
			t.Errorf("unexpected struct %+v", got)
		}
	})

	t.Run("struct with array field", func(t *testing.T) {
		type labelled struct {
			Name string
			Grid *ndarray.Array `msgpack:"grid"`
			Raw  *serde.Ext
		}
		grid, _ := ndarray.Arange(ndarray.Int64, 9)
		grid, _ = grid.Reshape(3, 3)
		raw := &serde.Ext{Tag: 9, Data: []byte{1, 2}}

		data, err := m.SerializeBinary(map[string]any{"Name": "g", "grid": grid, "Raw": raw})
		if err != nil {
			t.Fatal(err)
		}
		var got labelled
		if err := m.DeserializeBinary(data, &got); err != nil {
			t.Fatalf("Deserialize failed: %v", err)
		}
		if got.Name != "g" {
			t.Errorf("expected name g, got %q", got.Name)
		}
		if !got.Grid.Equal(grid) {
			t.Errorf("expected %v, got %v", grid, got.Grid)
		}
		if !reflect.DeepEqual(got.Raw, raw) {
			t.Errorf("expected %v, got %v", raw, got.Raw)
		}
	})

	t.Run("struct field mismatch", func(t *testing.T) {
		data, err := m.SerializeBinary(map[string]any{"name": arr})
		if err != nil {
			t.Fatal(err)
		}
		var got sample
		if err := m.DeserializeBinary(data, &got); err == nil {
			t.Fatalf("expected an error decoding an array into a string field, got %+v", got)
		}
	})

	t.Run("wrong target", func(t *testing.T) {
		data, _ := m.SerializeBinary(arr)
		var got []int
		if err := m.DeserializeBinary(data, &got); err == nil {
			t.Fatal("expected an error decoding an array into []int")
		}
	})
}

func TestCustomExtensionTable(t *testing.T) {
	table, err := serde.DefaultTable().With(pointExtension(5))
	if err != nil {
		t.Fatal(err)
	}
	m := serde.NewMsgpackSerde(serde.WithTable(table))
	arr, _ := ndarray.Arange(ndarray.Float64, 3)

	data, err := m.SerializeBinary([]any{point{X: -2, Y: 9}, arr})
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	var got []any
	if err := m.DeserializeBinary(data, &got); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if got[0] != (point{X: -2, Y: 9}) {
		t.Errorf("expected point, got %#v", got[0])
	}
	if !got[1].(*ndarray.Array).Equal(arr) {
		t.Errorf("expected %v, got %v", arr, got[1])
	}

	// without the point extension the tag passes through
	var plain []any
	if err := serde.NewMsgpackSerde().DeserializeBinary(data, &plain); err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if ext, ok := plain[0].(*serde.Ext); !ok || ext.Tag != 5 {
		t.Errorf("expected tag 5 pass-through, got %#v", plain[0])
	}
}

func TestConcurrentPackUnpack(t *testing.T) {
	m := serde.NewMsgpackSerde()

	var g errgroup.Group
	for i := range 32 {
		g.Go(func() error {
			arr, err := ndarray.Arange(ndarray.Int32, i+1)
			if err != nil {
				return err
			}
			data, err := m.SerializeBinary(map[string]any{"id": i, "arr": arr})
			if err != nil {
				return err
			}
			var out map[string]any
			if err := m.DeserializeBinary(data, &out); err != nil {
				return err
			}
			if !out["arr"].(*ndarray.Array).Equal(arr) {
				return fmt.Errorf("worker %d: array changed", i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
