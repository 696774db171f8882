// Package pod overlays fixed-layout Go structs on raw process memory.
//
// Layout structs use int32/float32 fields and blank padding fields to mirror
// the game's in-memory structs:
//
//	type counters struct {
//		_   [0x30]byte
//		Hit int32 // +0x30
//	}
package pod

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	"rocksniff/process"
)

var (
	ErrNotPOD      = errors.New("type contains pointers; not POD-safe")
	ErrShortBuffer = errors.New("buffer too small")
)

func SizeOf[T any]() process.ProcessMemorySize {
	var t T
	return process.ProcessMemorySize(unsafe.Sizeof(t))
}

// Decode copies the first sizeof(T) bytes of data into a new T.
func Decode[T any](data []byte) (T, error) {
	var t T
	if hasPointers[T]() {
		return t, fmt.Errorf("%T: %w", t, ErrNotPOD)
	}
	size := int(unsafe.Sizeof(t))
	if len(data) < size {
		return t, fmt.Errorf("%T needs %d bytes, have %d: %w", t, size, len(data), ErrShortBuffer)
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(&t)), size)
	copy(dst, data[:size])
	return t, nil
}

// ReadAt reads sizeof(T) bytes at addr and decodes them.
func ReadAt[T any](mem process.MemoryAccess, addr process.ProcessMemoryAddress) (T, error) {
	size := SizeOf[T]()
	if size == 0 {
		return *new(T), errors.New("ReadAt: size of T is zero")
	}
	data, err := mem.ReadMemory(addr, size)
	if err != nil {
		return *new(T), err
	}
	return Decode[T](data)
}

// Encode serializes a POD value using its in-memory layout.
func Encode[T any](v T) []byte {
	size := int(unsafe.Sizeof(v))
	if size == 0 {
		return []byte{}
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(&v)), size)
	out := make([]byte, size)
	copy(out, src)
	return out
}

// OffsetOf returns the byte offset of the named field of struct T, or -1.
func OffsetOf[T any](field string) int {
	var t T
	rt := reflect.TypeOf(t)
	if rt.Kind() != reflect.Struct {
		return -1
	}
	f, ok := rt.FieldByName(field)
	if !ok {
		return -1
	}
	return int(f.Offset)
}

// hasPointers reports whether T (recursively) contains any pointer-like fields.
func hasPointers[T any]() bool {
	var t T
	return typeHasPointers(reflect.TypeOf(t))
}

func typeHasPointers(rt reflect.Type) bool {
	if rt == nil {
		return true
	}
	switch rt.Kind() {
	case reflect.Ptr, reflect.UnsafePointer, reflect.Interface, reflect.Func, reflect.Map, reflect.Slice, reflect.String, reflect.Chan:
		return true
	case reflect.Array:
		return typeHasPointers(rt.Elem())
	case reflect.Struct:
		for i := 0; i < rt.NumField(); i++ {
			if typeHasPointers(rt.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
