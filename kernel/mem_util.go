package kernel

import "unsafe"

// Memset sets size bytes at the given address to the supplied value. Instead
// of a byte loop it performs log2(size) copy calls over an overlayed slice,
// which is noticeably faster for the page-sized regions it is mostly used on.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)

	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memcopy copies size bytes from src to dst and returns the number of bytes
// moved so callers that pack consecutive blocks can advance their write
// cursor with the result. The regions must not overlap.
func Memcopy(src, dst uintptr, size uintptr) uintptr {
	if size == 0 {
		return 0
	}

	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), size)
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size)

	return uintptr(copy(dstSlice, srcSlice))
}
