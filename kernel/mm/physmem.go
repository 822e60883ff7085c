package mm

import "unsafe"

// PhysMem provides byte-level access to physical memory.
//
// Bytes returns a slice aliasing the size bytes starting at addr, or nil if
// that range is not backed by the implementation. Writes to the returned
// slice land in physical memory.
type PhysMem interface {
	Bytes(addr PhysAddr, size uint32) []byte
}

// Identity accesses physical memory through an identity mapping. This is the
// view the boot shim has before paging is enabled and the view of the
// identity-mapped low memory afterwards.
type Identity struct{}

// Bytes implements PhysMem.
func (Identity) Bytes(addr PhysAddr, size uint32) []byte {
	if size == 0 {
		return nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), size)
}

// Region is a PhysMem backed by a host byte slice that stands in for the
// physical range [Base, Base+len(Mem)).
type Region struct {
	Base PhysAddr
	Mem  []byte
}

// NewRegion allocates a zeroed region of size bytes that starts at base.
func NewRegion(base PhysAddr, size uint32) *Region {
	return &Region{Base: base, Mem: make([]byte, size)}
}

// End returns the first physical address after the region.
func (r *Region) End() PhysAddr {
	return r.Base + PhysAddr(len(r.Mem))
}

// Bytes implements PhysMem.
func (r *Region) Bytes(addr PhysAddr, size uint32) []byte {
	if size == 0 || addr < r.Base {
		return nil
	}

	start := uint64(addr - r.Base)
	end := start + uint64(size)
	if end > uint64(len(r.Mem)) {
		return nil
	}

	return r.Mem[start:end:end]
}

// Uint32At reads the little-endian dword at addr. It returns false if the
// address is not backed by mem.
func Uint32At(mem PhysMem, addr PhysAddr) (uint32, bool) {
	b := mem.Bytes(addr, 4)
	if b == nil {
		return 0, false
	}

	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, true
}
