// Package mm defines the address types shared by the memory management code
// together with the PhysMem abstraction that gives the bootstrap builders
// access to physical memory.
package mm

const (
	// PointerShift is equal to log2 of the size of a paging structure
	// entry on this architecture (4 bytes).
	PointerShift = 2

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = uint32(1 << PageShift)

	// KernelVirtBase is the virtual address where the high half starts.
	// The kernel image is linked to run at KernelVirtBase + its load
	// address.
	KernelVirtBase = uint32(0xC0000000)

	// LowMemoryEnd is the end of the first MiB (BIOS data, VGA text
	// buffer, option ROMs) which stays identity mapped.
	LowMemoryEnd = PhysAddr(0x100000)
)

// PhysAddr is a physical memory address.
type PhysAddr uint32

// VirtAddr is a virtual (linear) memory address.
type VirtAddr uint32

// P2V returns the high-half virtual address of a physical address.
func P2V(p PhysAddr) VirtAddr {
	return VirtAddr(uint32(p) + KernelVirtBase)
}

// V2P returns the physical address backing a high-half virtual address. The
// result is only meaningful if v.HighHalf() is true.
func V2P(v VirtAddr) PhysAddr {
	return PhysAddr(uint32(v) - KernelVirtBase)
}

// HighHalf returns true if v lies in the kernel's high-half window.
func (v VirtAddr) HighHalf() bool {
	return uint32(v) >= KernelVirtBase
}

// PDIndex returns the page directory index for v (bits 22-31).
func (v VirtAddr) PDIndex() uint32 {
	return uint32(v) >> 22
}

// PTIndex returns the page table index for v (bits 12-21).
func (v VirtAddr) PTIndex() uint32 {
	return (uint32(v) >> PageShift) & 0x3ff
}

// PageOffset returns the offset of v inside its page.
func (v VirtAddr) PageOffset() uint32 {
	return uint32(v) & (PageSize - 1)
}

// PageAligned returns true if p is a multiple of PageSize.
func (p PhysAddr) PageAligned() bool {
	return uint32(p)&(PageSize-1) == 0
}

// Frame describes a physical memory page index.
type Frame uint32

// Address returns the physical address of the first byte of this Frame.
func (f Frame) Address() PhysAddr {
	return PhysAddr(uint32(f) << PageShift)
}

// FrameFromAddress returns the Frame containing physAddr. Addresses that are
// not page-aligned are rounded down.
func FrameFromAddress(physAddr PhysAddr) Frame {
	return Frame(uint32(physAddr) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uint32

// Address returns the virtual address of the first byte of this Page.
func (p Page) Address() VirtAddr {
	return VirtAddr(uint32(p) << PageShift)
}

// PageFromAddress returns the Page containing virtAddr. Addresses that are
// not page-aligned are rounded down.
func PageFromAddress(virtAddr VirtAddr) Page {
	return Page(uint32(virtAddr) >> PageShift)
}

// PageCount returns the number of pages needed to hold size bytes.
func PageCount(size uint32) uint32 {
	return uint32((uint64(size) + uint64(PageSize) - 1) >> PageShift)
}
