// Package unsafer creates byte views of typed memory for uploading into
// mapped GPU allocations.
package unsafer

import (
	"unsafe"
)

// SliceToBytes interprets an arbitrary input slice as a byte slice.
//
// Note that the returned slice points to the same underlying data in memory. It
// does not make a copy.
func SliceToBytes[T any](input []T) []byte {
	if len(input) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(input[0])) * len(input)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(input))), size)
}

// StructToBytes returns the memory of the value pointed to by input as a byte
// slice. The value must not contain Go pointers which the GPU would read.
func StructToBytes[T any](input *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(input)), unsafe.Sizeof(*input))
}

// BytesToSlice is the inverse of SliceToBytes. Trailing bytes which do not
// form a whole T are ignored.
func BytesToSlice[T any](data []byte) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 || len(data) < size {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), len(data)/size)
}
