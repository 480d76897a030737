// Package npy reads and writes numeric arrays in the NPY array-file layout.
//
// # Format
//
// An encoded array is a preamble followed by the raw element buffer:
//
//	"\x93NUMPY" | major | minor | HEADER_LEN | header | data
//
// HEADER_LEN is a little-endian uint16 for version 1.0 and a uint32 for
// versions 2.0 and 3.0. The header is a Python dictionary literal:
//
//	{'descr': '<i8', 'fortran_order': False, 'shape': (3, 3), }
//
// padded with spaces and terminated by a newline so that the data section
// starts on a 64-byte boundary.
//
// Encode always writes little-endian, row-major data and picks version 1.0
// unless the header needs the wider length field. Decode also accepts
// big-endian descrs and fortran_order True, normalising both.
//
// # Restrictions
//
// Only fixed-width numeric kinds (bool, signed and unsigned integers, float
// and complex) are accepted. Object arrays, which numpy stores as pickles, and
// string, datetime and structured dtypes fail with an *UnsupportedTypeError.
//
// # Errors
//
// Failures are typed and match a sentinel through errors.Is:
//   - *FormatError / ErrFormat: bad magic, version, preamble or header
//   - *UnsupportedTypeError / ErrUnsupportedType: descr outside the numeric kinds
//   - *SizeMismatchError / ErrSizeMismatch: data length differs from shape x itemsize
package npy
