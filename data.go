package compute

import (
	"fmt"
	"unsafe"
)

// DataKind identifies the variant of a Data value.
type DataKind uint8

const (
	// DataSequence holds N homogeneous elements.
	DataSequence DataKind = iota
	// DataScalar holds a single element.
	DataScalar
	// DataUninitialized is a zero-filled region of a given size.
	DataUninitialized
)

// String returns the string representation of DataKind.
func (k DataKind) String() string {
	switch k {
	case DataSequence:
		return "Sequence"
	case DataScalar:
		return "Scalar"
	case DataUninitialized:
		return "Uninitialized"
	default:
		return fmt.Sprintf("DataKind(%d)", uint8(k))
	}
}

// Data describes the contents a buffer is seeded with.
//
// Data is an immutable value. Size always equals len(Bytes()).
// Element types must be fixed-size, pointer-free records whose memory layout
// matches the shader's declaration; the bytes are a raw copy of memory.
type Data struct {
	kind  DataKind
	bytes []byte
	size  uint64
}

// Sequence describes the contiguous bytes of elems.
// The elements are copied, so later changes to elems are not observed.
func Sequence[T any](elems []T) Data {
	return Data{kind: DataSequence, bytes: bytesOf(elems), size: sizeOf[T]() * uint64(len(elems))}
}

// Scalar describes the bytes of a single value.
func Scalar[T any](v T) Data {
	return Data{kind: DataScalar, bytes: bytesOf([]T{v}), size: sizeOf[T]()}
}

// Uninitialized describes a zero-filled region of n bytes.
func Uninitialized(n uint64) Data {
	return Data{kind: DataUninitialized, size: n}
}

// Kind returns the variant of d.
func (d Data) Kind() DataKind { return d.kind }

// Size returns the exact byte length d describes.
func (d Data) Size() uint64 { return d.size }

// Bytes returns a fresh copy of the described bytes, len(Bytes()) == Size().
// Uninitialized data returns zeros.
func (d Data) Bytes() []byte {
	out := make([]byte, d.size)
	copy(out, d.bytes)
	return out
}

// String returns a short description of d.
func (d Data) String() string {
	return fmt.Sprintf("%s(%d bytes)", d.kind, d.size)
}

func sizeOf[T any]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

// bytesOf copies the memory of elems into a new byte slice.
func bytesOf[T any](elems []T) []byte {
	n := sizeOf[T]() * uint64(len(elems))
	if n == 0 {
		return []byte{}
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(elems))), n)
	out := make([]byte, n)
	copy(out, src)
	return out
}

// elemsOf copies b into a new slice of T. Trailing bytes that do not fill
// a whole element are dropped.
func elemsOf[T any](b []byte) []T {
	size := sizeOf[T]()
	if size == 0 {
		return []T{}
	}
	n := uint64(len(b)) / size
	out := make([]T, n)
	if n == 0 {
		return out
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(out))), n*size)
	copy(dst, b)
	return out
}
