package kernel

import (
	"testing"
	"unsafe"
)

func TestMemset(t *testing.T) {
	// memset with a 0 size should be a no-op
	Memset(uintptr(0), 0x00, 0)

	for pageCount := uint32(1); pageCount <= 10; pageCount++ {
		buf := make([]byte, 4096<<pageCount)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xFE
		}

		addr := uintptr(unsafe.Pointer(&buf[0]))
		Memset(addr, 0x00, uintptr(len(buf)))

		for i := 0; i < len(buf); i++ {
			if got := buf[i]; got != 0x00 {
				t.Errorf("[block with %d pages] expected byte: %d to be 0x00; got 0x%x", pageCount, i, got)
			}
		}
	}
}

func TestMemcopy(t *testing.T) {
	// memcopy with a 0 size should be a no-op and report nothing moved
	if got := Memcopy(uintptr(0), uintptr(0), 0); got != 0 {
		t.Fatalf("expected a zero-sized copy to move 0 bytes; got %d", got)
	}

	specs := []int{1, 3, 48, 120, 4096}
	for specIndex, size := range specs {
		src := make([]byte, size)
		dst := make([]byte, size+1)
		for i := range src {
			src[i] = byte(i % 251)
		}
		dst[size] = 0xAA

		moved := Memcopy(
			uintptr(unsafe.Pointer(&src[0])),
			uintptr(unsafe.Pointer(&dst[0])),
			uintptr(size),
		)

		if moved != uintptr(size) {
			t.Errorf("[spec %d] expected Memcopy to report %d bytes; got %d", specIndex, size, moved)
		}

		for i := 0; i < size; i++ {
			if dst[i] != src[i] {
				t.Errorf("[spec %d] mismatch at index %d: expected 0x%x; got 0x%x", specIndex, i, src[i], dst[i])
				break
			}
		}

		if dst[size] != 0xAA {
			t.Errorf("[spec %d] expected byte past the copied block to be left untouched", specIndex)
		}
	}
}
