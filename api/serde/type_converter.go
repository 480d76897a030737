package serde

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
)

// TypeConverter turns the dynamic values produced by an Unpacker into typed
// Go values. Numeric conversions are checked for overflow and precision loss.
type TypeConverter struct{}

// NewTypeConverter creates a new type converter.
func NewTypeConverter() *TypeConverter {
	return &TypeConverter{}
}

// ConvertToType converts a value to the target type.
func (tc *TypeConverter) ConvertToType(value any, targetType reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(targetType), nil
	}

	v := reflect.ValueOf(value)
	valueType := v.Type()

	// If types already match, return as-is
	if valueType == targetType {
		return v, nil
	}
	if valueType.AssignableTo(targetType) {
		out := reflect.New(targetType).Elem()
		out.Set(v)
		return out, nil
	}

	switch {
	case isNumericKind(valueType.Kind()) && isNumericKind(targetType.Kind()):
		return tc.convertNumeric(v, targetType)
	case valueType.Kind() == targetType.Kind() && valueType.ConvertibleTo(targetType):
		// named scalar types and complex widths
		return v.Convert(targetType), nil
	case isStringOrBytes(valueType) && isStringOrBytes(targetType):
		return v.Convert(targetType), nil
	}

	switch targetType.Kind() {
	case reflect.Pointer:
		elem, err := tc.ConvertToType(value, targetType.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(targetType.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	case reflect.Slice:
		if valueType.Kind() == reflect.Slice {
			return tc.convertSequence(v, targetType)
		}
	case reflect.Array:
		if valueType.Kind() == reflect.Slice {
			if v.Len() != targetType.Len() {
				return reflect.Value{}, fmt.Errorf("cannot convert %d elements to %v", v.Len(), targetType)
			}
			return tc.convertSequence(v, targetType)
		}
	case reflect.Map:
		if valueType.Kind() == reflect.Map {
			return tc.convertMap(v, targetType)
		}
	case reflect.Struct:
		if valueType.Kind() == reflect.Map {
			return tc.convertStruct(v, targetType)
		}
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %v to %v", valueType, targetType)
}

// convertNumeric handles numeric type conversions with precision checking.
func (tc *TypeConverter) convertNumeric(v reflect.Value, targetType reflect.Type) (reflect.Value, error) {
	probe := reflect.New(targetType).Elem()

	switch {
	case isIntegerKind(v.Kind()) && !isUnsignedKind(v.Kind()):
		n := v.Int()
		switch {
		case isUnsignedKind(targetType.Kind()):
			if n < 0 || probe.OverflowUint(uint64(n)) {
				return reflect.Value{}, overflowError(n, targetType)
			}
		case isIntegerKind(targetType.Kind()):
			if probe.OverflowInt(n) {
				return reflect.Value{}, overflowError(n, targetType)
			}
		}
	case isUnsignedKind(v.Kind()):
		u := v.Uint()
		switch {
		case isUnsignedKind(targetType.Kind()):
			if probe.OverflowUint(u) {
				return reflect.Value{}, overflowError(u, targetType)
			}
		case isIntegerKind(targetType.Kind()):
			if u > math.MaxInt64 || probe.OverflowInt(int64(u)) {
				return reflect.Value{}, overflowError(u, targetType)
			}
		}
	default:
		f := v.Float()
		switch {
		case isIntegerKind(targetType.Kind()):
			if f != math.Trunc(f) {
				return reflect.Value{}, fmt.Errorf("cannot convert %v to %v without losing precision", f, targetType)
			}
			if isUnsignedKind(targetType.Kind()) {
				if f < 0 || f >= 1<<64 || probe.OverflowUint(uint64(f)) {
					return reflect.Value{}, overflowError(f, targetType)
				}
			} else if f < math.MinInt64 || f >= 1<<63 || probe.OverflowInt(int64(f)) {
				return reflect.Value{}, overflowError(f, targetType)
			}
		default:
			if !math.IsInf(f, 0) && !math.IsNaN(f) && probe.OverflowFloat(f) {
				return reflect.Value{}, overflowError(f, targetType)
			}
		}
	}
	return v.Convert(targetType), nil
}

func (tc *TypeConverter) convertSequence(v reflect.Value, targetType reflect.Type) (reflect.Value, error) {
	var out reflect.Value
	if targetType.Kind() == reflect.Array {
		out = reflect.New(targetType).Elem()
	} else {
		out = reflect.MakeSlice(targetType, v.Len(), v.Len())
	}
	for i := range v.Len() {
		elem, err := tc.ConvertToType(v.Index(i).Interface(), targetType.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("failed to convert element %d: %w", i, err)
		}
		out.Index(i).Set(elem)
	}
	return out, nil
}

func (tc *TypeConverter) convertMap(v reflect.Value, targetType reflect.Type) (reflect.Value, error) {
	out := reflect.MakeMapWithSize(targetType, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := tc.ConvertToType(iter.Key().Interface(), targetType.Key())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("failed to convert key %v: %w", iter.Key(), err)
		}
		val, err := tc.ConvertToType(iter.Value().Interface(), targetType.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("failed to convert value for key %v: %w", iter.Key(), err)
		}
		out.SetMapIndex(key, val)
	}
	return out, nil
}

// convertStruct fills a struct from a decoded map. Keys match msgpack field
// names (the `msgpack` tag, else the Go field name); unknown keys are ignored.
// Each value goes through ConvertToType, so extension values such as arrays
// land in their fields unchanged.
func (tc *TypeConverter) convertStruct(v reflect.Value, targetType reflect.Type) (reflect.Value, error) {
	fields := make(map[string][]int)
	collectFields(targetType, nil, fields, map[reflect.Type]bool{})

	out := reflect.New(targetType).Elem()
	iter := v.MapRange()
	for iter.Next() {
		key := iter.Key()
		for key.Kind() == reflect.Interface && !key.IsNil() {
			key = key.Elem()
		}
		if key.Kind() != reflect.String {
			return reflect.Value{}, fmt.Errorf("cannot use map key %v as a field of %v", key, targetType)
		}
		index, ok := fields[key.String()]
		if !ok {
			continue
		}
		field := fieldByIndex(out, index)
		val, err := tc.ConvertToType(iter.Value().Interface(), field.Type())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("failed to convert field %q of %v: %w", key.String(), targetType, err)
		}
		field.Set(val)
	}
	return out, nil
}

// collectFields maps msgpack field names to field index paths. Untagged
// embedded structs are inlined; outer fields shadow inner ones.
func collectFields(t reflect.Type, index []int, fields map[string][]int, seen map[reflect.Type]bool) {
	if seen[t] {
		return
	}
	seen[t] = true

	var embedded []reflect.StructField
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("msgpack"), ",")
		if name == "-" {
			continue
		}
		f.Index = append(slices.Clone(index), i)

		inner := f.Type
		if inner.Kind() == reflect.Pointer {
			inner = inner.Elem()
		}
		if f.Anonymous && name == "" && inner.Kind() == reflect.Struct {
			// an unexported embedded pointer cannot be allocated
			if f.IsExported() || f.Type.Kind() != reflect.Pointer {
				embedded = append(embedded, f)
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		if _, dup := fields[name]; !dup {
			fields[name] = f.Index
		}
	}
	for _, f := range embedded {
		inner := f.Type
		if inner.Kind() == reflect.Pointer {
			inner = inner.Elem()
		}
		collectFields(inner, f.Index, fields, seen)
	}
}

// fieldByIndex walks index from v, allocating nil embedded pointers.
func fieldByIndex(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

// ConvertSlice converts a slice of any to a slice of values matching the target element type.
func (tc *TypeConverter) ConvertSlice(values []any, targetElemType reflect.Type) ([]reflect.Value, error) {
	result := make([]reflect.Value, len(values))
	for i, val := range values {
		converted, err := tc.ConvertToType(val, targetElemType)
		if err != nil {
			return nil, fmt.Errorf("failed to convert element %d: %w", i, err)
		}
		result[i] = converted
	}
	return result, nil
}

// Helper functions

func overflowError(v any, targetType reflect.Type) error {
	return fmt.Errorf("cannot convert %v to %v: value out of range", v, targetType)
}

func isNumericKind(k reflect.Kind) bool {
	return isIntegerKind(k) || k == reflect.Float32 || k == reflect.Float64
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return isUnsignedKind(k)
}

func isUnsignedKind(k reflect.Kind) bool {
	switch k {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func isStringOrBytes(t reflect.Type) bool {
	return t.Kind() == reflect.String || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8)
}
