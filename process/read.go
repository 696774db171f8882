package process

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unsafe"
)

// Read reads a single fixed-size value of type T at addr. T must be plain
// data; the bytes are copied over its in-memory representation.
func Read[T any](mem MemoryAccess, addr ProcessMemoryAddress) (T, error) {
	var t T
	size := ProcessMemorySize(unsafe.Sizeof(t))
	if size == 0 {
		return t, nil
	}

	data, err := mem.ReadMemory(addr, size)
	if err != nil {
		return t, err
	}
	if len(data) < int(size) {
		return t, fmt.Errorf("read %d of %d bytes at %s: %w", len(data), size, addr.ToString(), ErrPartialRead)
	}

	copyTo(&t, data)
	return t, nil
}

// copyTo copies bytes to *T
func copyTo[T any](dst *T, src []byte) {
	size := int(unsafe.Sizeof(*dst))
	dstBytes := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)
	copy(dstBytes, src)
}

func ReadUINT8(mem MemoryAccess, addr ProcessMemoryAddress) (uint8, error) {
	data, err := readExact(mem, addr, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func ReadUINT32(mem MemoryAccess, addr ProcessMemoryAddress) (uint32, error) {
	data, err := readExact(mem, addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

func ReadINT32(mem MemoryAccess, addr ProcessMemoryAddress) (int32, error) {
	v, err := ReadUINT32(mem, addr)
	return int32(v), err
}

func ReadUINT64(mem MemoryAccess, addr ProcessMemoryAddress) (uint64, error) {
	data, err := readExact(mem, addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

func ReadFLOAT32(mem MemoryAccess, addr ProcessMemoryAddress) (float32, error) {
	v, err := ReadUINT32(mem, addr)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadNTS reads a null-terminated string of at most maxLength bytes. A string
// with no terminator inside maxLength is returned whole.
func ReadNTS(mem MemoryAccess, addr ProcessMemoryAddress, maxLength ProcessMemorySize) (string, error) {
	if maxLength == 0 {
		return "", nil
	}
	data, err := mem.ReadMemory(addr, maxLength)
	if err != nil {
		// A short string near the end of a region still reads fine.
		if !errors.Is(err, ErrPartialRead) || bytes.IndexByte(data, 0) < 0 {
			return "", err
		}
	}
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}

func readExact(mem MemoryAccess, addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error) {
	data, err := mem.ReadMemory(addr, size)
	if err != nil {
		return nil, err
	}
	if len(data) < int(size) {
		return nil, fmt.Errorf("read %d of %d bytes at %s: %w", len(data), size, addr.ToString(), ErrPartialRead)
	}
	return data, nil
}
