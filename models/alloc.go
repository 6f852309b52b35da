package models

import "unsafe"

// CacheLineSize is the alignment of tensor storage handed to the runtime.
const CacheLineSize = 64

func alignOffset(p unsafe.Pointer) int {
	rem := int(uintptr(p) % CacheLineSize)
	if rem == 0 {
		return 0
	}
	return CacheLineSize - rem
}

func growFloat32(s []float32, n int) []float32 {
	if cap(s) >= n {
		return s[:n]
	}
	const elem = int(unsafe.Sizeof(float32(0)))
	buf := make([]float32, n+CacheLineSize/elem)
	off := alignOffset(unsafe.Pointer(&buf[0])) / elem
	return buf[off : off+n : off+n]
}

func growInt32(s []int32, n int) []int32 {
	if cap(s) >= n {
		return s[:n]
	}
	const elem = int(unsafe.Sizeof(int32(0)))
	buf := make([]int32, n+CacheLineSize/elem)
	off := alignOffset(unsafe.Pointer(&buf[0])) / elem
	return buf[off : off+n : off+n]
}

func growUint8(s []uint8, n int) []uint8 {
	if cap(s) >= n {
		return s[:n]
	}
	buf := make([]uint8, n+CacheLineSize)
	off := alignOffset(unsafe.Pointer(&buf[0]))
	return buf[off : off+n : off+n]
}
