package serde_test

import (
	"reflect"
	"testing"

	"github.com/ngnhng/npymsgpack/api/ndarray"
	"github.com/ngnhng/npymsgpack/api/serde"
)

func TestTypeConverter(t *testing.T) {
	type label string
	arr, _ := ndarray.Arange(ndarray.Int16, 3)

	testCases := []struct {
		name    string
		value   any
		target  reflect.Type
		want    any
		wantErr bool
	}{
		{"nil", nil, reflect.TypeFor[[]int](), []int(nil), false},
		{"identity array", arr, reflect.TypeFor[*ndarray.Array](), arr, false},
		{"into any", int8(3), reflect.TypeFor[any](), any(int8(3)), false},
		{"widen int", int8(-3), reflect.TypeFor[int64](), int64(-3), false},
		{"uint to int", uint16(300), reflect.TypeFor[int](), 300, false},
		{"int to float", int32(7), reflect.TypeFor[float64](), 7.0, false},
		{"integral float", 4.0, reflect.TypeFor[uint8](), uint8(4), false},
		{"fractional float", 4.5, reflect.TypeFor[int](), nil, true},
		{"int overflow", int16(300), reflect.TypeFor[int8](), nil, true},
		{"negative to uint", int8(-1), reflect.TypeFor[uint](), nil, true},
		{"uint64 overflow", uint64(1 << 63), reflect.TypeFor[int64](), nil, true},
		{"float32 overflow", 1e300, reflect.TypeFor[float32](), nil, true},
		{"named string", "x", reflect.TypeFor[label](), label("x"), false},
		{"bytes to string", []byte("hi"), reflect.TypeFor[string](), "hi", false},
		{"int to string", int8(65), reflect.TypeFor[string](), nil, true},
		{"slice", []any{int8(1), uint16(2)}, reflect.TypeFor[[]int32](), []int32{1, 2}, false},
		{"fixed array", []any{int8(1), int8(2)}, reflect.TypeFor[[2]int](), [2]int{1, 2}, false},
		{"fixed array length", []any{int8(1)}, reflect.TypeFor[[2]int](), nil, true},
		{"nested slice", []any{[]any{"a"}, nil}, reflect.TypeFor[[][]string](), [][]string{{"a"}, nil}, false},
		{"map", map[any]any{int8(1): "one"}, reflect.TypeFor[map[int]string](), map[int]string{1: "one"}, false},
		{"pointer", int8(5), reflect.TypeFor[*int](), ptr(5), false},
		{"bad element", []any{"x"}, reflect.TypeFor[[]int](), nil, true},
		{"array to slice", arr, reflect.TypeFor[[]int16](), nil, true},
	}

	tc := serde.NewTypeConverter()
	for _, c := range testCases {
		t.Run(c.name, func(t *testing.T) {
			got, err := tc.ConvertToType(c.value, c.target)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConvertToType failed: %v", err)
			}
			if got.Type() != c.target {
				t.Errorf("expected type %v, got %v", c.target, got.Type())
			}
			if !reflect.DeepEqual(got.Interface(), c.want) {
				t.Errorf("expected %#v, got %#v", c.want, got.Interface())
			}
		})
	}
}

func TestConvertStruct(t *testing.T) {
	type Base struct {
		ID   uint32 `msgpack:"id"`
		Note string
	}
	type record struct {
		*Base
		Note    string         `msgpack:"note,omitempty"`
		Values  []float32      `msgpack:"values"`
		Data    *ndarray.Array `msgpack:"data"`
		Skipped string         `msgpack:"-"`
		hidden  int
	}

	arr, _ := ndarray.FromSlice([]uint8{1, 2, 3})
	in := map[string]any{
		"id":      uint16(7),
		"note":    "outer",
		"Note":    "inner",
		"values":  []any{int8(1), 2.5},
		"data":    arr,
		"Skipped": "x",
		"hidden":  int8(1),
		"unknown": true,
	}

	got, err := serde.NewTypeConverter().ConvertToType(in, reflect.TypeFor[record]())
	if err != nil {
		t.Fatalf("ConvertToType failed: %v", err)
	}
	r := got.Interface().(record)
	if r.Base == nil || r.ID != 7 || r.Base.Note != "inner" {
		t.Errorf("unexpected embedded struct %+v", r.Base)
	}
	if r.Note != "outer" {
		t.Errorf("expected outer note, got %q", r.Note)
	}
	if !reflect.DeepEqual(r.Values, []float32{1, 2.5}) {
		t.Errorf("unexpected values %v", r.Values)
	}
	if r.Data != arr {
		t.Errorf("expected the decoded array to be kept, got %v", r.Data)
	}
	if r.Skipped != "" || r.hidden != 0 {
		t.Errorf("ignored fields were set: %+v", r)
	}

	if _, err := serde.NewTypeConverter().ConvertToType(map[any]any{int8(1): "x"}, reflect.TypeFor[record]()); err == nil {
		t.Error("expected an error for a non-string key")
	}
}

func TestConvertSlice(t *testing.T) {
	tc := serde.NewTypeConverter()

	vals, err := tc.ConvertSlice([]any{int8(1), uint8(200), 3.0}, reflect.TypeFor[int]())
	if err != nil {
		t.Fatalf("ConvertSlice failed: %v", err)
	}
	for i, want := range []int{1, 200, 3} {
		if got := vals[i].Interface().(int); got != want {
			t.Errorf("element %d: expected %d, got %d", i, want, got)
		}
	}

	if _, err := tc.ConvertSlice([]any{1, "two"}, reflect.TypeFor[int]()); err == nil {
		t.Error("expected an error for a string element")
	}
}
