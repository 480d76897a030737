// Package ndarray holds the numeric array value that travels through the
// npy codec and the msgpack extension table.
//
// An Array is a dtype, a shape and a contiguous row-major buffer. The buffer
// always holds little-endian elements, so the same Array encodes to the same
// bytes on every platform:
//
//	a, _ := ndarray.Arange(ndarray.Int64, 9)
//	grid, _ := a.Reshape(3, 3)
//	v, _ := grid.At(1, 2) // int64(5)
//
// Typed access goes through the generic helpers FromSlice and Values.
package ndarray
