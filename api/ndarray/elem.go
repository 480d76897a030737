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

package ndarray

import (
	"encoding/binary"
	"math"
	"reflect"
)

var le = binary.LittleEndian

func putElem(dst []byte, dt DType, v reflect.Value) {
	switch dt {
	case Bool:
		dst[0] = 0
		if v.Bool() {
			dst[0] = 1
		}
	case Int8, Int16, Int32, Int64:
		putInt(dst, dt, v.Int())
	case Uint8:
		dst[0] = byte(v.Uint())
	case Uint16:
		le.PutUint16(dst, uint16(v.Uint()))
	case Uint32:
		le.PutUint32(dst, uint32(v.Uint()))
	case Uint64:
		le.PutUint64(dst, v.Uint())
	case Float32:
		le.PutUint32(dst, math.Float32bits(float32(v.Float())))
	case Float64:
		le.PutUint64(dst, math.Float64bits(v.Float()))
	case Complex64:
		c := v.Complex()
		le.PutUint32(dst, math.Float32bits(float32(real(c))))
		le.PutUint32(dst[4:], math.Float32bits(float32(imag(c))))
	case Complex128:
		c := v.Complex()
		le.PutUint64(dst, math.Float64bits(real(c)))
		le.PutUint64(dst[8:], math.Float64bits(imag(c)))
	}
}

func getElem(src []byte, dt DType, v reflect.Value) {
	switch dt {
	case Bool:
		v.SetBool(src[0] != 0)
	case Int8:
		v.SetInt(int64(int8(src[0])))
	case Int16:
		v.SetInt(int64(int16(le.Uint16(src))))
	case Int32:
		v.SetInt(int64(int32(le.Uint32(src))))
	case Int64:
		v.SetInt(int64(le.Uint64(src)))
	case Uint8:
		v.SetUint(uint64(src[0]))
	case Uint16:
		v.SetUint(uint64(le.Uint16(src)))
	case Uint32:
		v.SetUint(uint64(le.Uint32(src)))
	case Uint64:
		v.SetUint(le.Uint64(src))
	case Float32:
		v.SetFloat(float64(math.Float32frombits(le.Uint32(src))))
	case Float64:
		v.SetFloat(math.Float64frombits(le.Uint64(src)))
	case Complex64:
		v.SetComplex(complex(
			float64(math.Float32frombits(le.Uint32(src))),
			float64(math.Float32frombits(le.Uint32(src[4:]))),
		))
	case Complex128:
		v.SetComplex(complex(
			math.Float64frombits(le.Uint64(src)),
			math.Float64frombits(le.Uint64(src[8:])),
		))
	}
}

// putInt stores n converted to dt, the way a numeric cast would.
func putInt(dst []byte, dt DType, n int64) {
	switch dt {
	case Bool:
		dst[0] = 0
		if n != 0 {
			dst[0] = 1
		}
	case Int8, Uint8:
		dst[0] = byte(n)
	case Int16, Uint16:
		le.PutUint16(dst, uint16(n))
	case Int32, Uint32:
		le.PutUint32(dst, uint32(n))
	case Int64, Uint64:
		le.PutUint64(dst, uint64(n))
	case Float16:
		le.PutUint16(dst, float32ToHalf(float32(n)))
	case Float32:
		le.PutUint32(dst, math.Float32bits(float32(n)))
	case Float64:
		le.PutUint64(dst, math.Float64bits(float64(n)))
	case Complex64:
		le.PutUint32(dst, math.Float32bits(float32(n)))
		le.PutUint32(dst[4:], 0)
	case Complex128:
		le.PutUint64(dst, math.Float64bits(float64(n)))
		le.PutUint64(dst[8:], 0)
	}
}

func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal: normalise into a float32 exponent
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math.Float32frombits(sign | e<<23 | frac<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
}

// float32ToHalf rounds to the nearest half, ties to even. Values past the
// half range become infinities and NaN stays NaN.
func float32ToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23) & 0xff
	frac := bits & 0x7fffff

	if exp == 0xff {
		if frac != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	}

	e := exp - 127 + 15
	switch {
	case e >= 0x1f:
		return sign | 0x7c00
	case e <= 0:
		if e < -10 {
			return sign
		}
		// subnormal half: shift the full significand into the 10-bit field
		return sign | roundShift(frac|0x800000, uint32(14-e))
	}
	// a carry out of the fraction bumps the exponent, up to infinity
	return sign | (uint16(e)<<10 + roundShift(frac, 13))
}

// roundShift returns m >> shift rounded to nearest, ties to even.
func roundShift(m, shift uint32) uint16 {
	q := m >> shift
	rem := m & (1<<shift - 1)
	half := uint32(1) << (shift - 1)
	if rem > half || (rem == half && q&1 == 1) {
		q++
	}
	return uint16(q)
}
