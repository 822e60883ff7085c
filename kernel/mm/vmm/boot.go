// Package vmm builds the page directory that the kernel runs on after the
// boot shim enables paging, and provides the helpers for walking it.
package vmm

import (
	"unsafe"

	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/kfmt"
	"github.com/ParrotXray/CureOS/kernel/mm"
)

// DefaultKernelTables is the number of page tables reserved for the kernel
// image when BootConfig.KernelTables is zero. Three tables map 12 MiB.
const DefaultKernelTables = 3

// Layout of the boot region in pages.
const (
	directoryPage     = 0
	identityTablePage = 1
	firstKernelPage   = 2
)

// lowMemoryEntries is the number of identity table entries covering the
// first MiB.
const lowMemoryEntries = uint32(mm.LowMemoryEnd) >> mm.PageShift

var (
	// ErrKernelTooLarge is returned when the kernel image needs more page
	// table entries than the reserved kernel tables provide.
	ErrKernelTooLarge = &kernel.Error{Module: "vmm", Message: "kernel image exceeds the reserved page tables"}

	// ErrShimTooLarge is returned when the boot shim does not fit in the
	// identity table after the low memory entries.
	ErrShimTooLarge = &kernel.Error{Module: "vmm", Message: "boot shim exceeds the identity page table"}

	// ErrKernelNotHighHalf is returned when the kernel is not linked above
	// the high-half base.
	ErrKernelNotHighHalf = &kernel.Error{Module: "vmm", Message: "kernel is not linked at a high-half address"}

	// ErrInvalidKernelRange is returned when the kernel end precedes its
	// start.
	ErrInvalidKernelRange = &kernel.Error{Module: "vmm", Message: "kernel end address precedes its start address"}

	// ErrStackOutsideKernel is returned when the initial stack top does not
	// lie inside the mapped kernel image.
	ErrStackOutsideKernel = &kernel.Error{Module: "vmm", Message: "initial kernel stack is not covered by the kernel mapping"}

	// ErrKernelOverlapsSelfRef is returned when the kernel tables would
	// claim the self-referencing directory slot.
	ErrKernelOverlapsSelfRef = &kernel.Error{Module: "vmm", Message: "kernel page tables overlap the self-referencing directory entry"}

	// ErrRegionTooSmall is returned when the boot region is not fully
	// backed by memory.
	ErrRegionTooSmall = &kernel.Error{Module: "vmm", Message: "boot page-table region not backed by memory"}

	// ErrMisalignedRegion is returned for a boot region that does not start
	// on a page boundary.
	ErrMisalignedRegion = &kernel.Error{Module: "vmm", Message: "boot page-table region is not page aligned"}

	// ErrDirectoryAlreadyBuilt is returned when Build is invoked on a region
	// that already holds a directory.
	ErrDirectoryAlreadyBuilt = &kernel.Error{Module: "vmm", Message: "boot page directory already built"}

	// ErrRegionNotClaimed is returned when Build is invoked on a region
	// that was not obtained from ClaimBootRegion.
	ErrRegionNotClaimed = &kernel.Error{Module: "vmm", Message: "boot page-table region has not been claimed"}

	logger = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[vmm] ")}
)

// BootConfig tunes the boot page directory.
type BootConfig struct {
	// KernelTables is the number of consecutive page tables reserved for
	// the kernel image. Zero selects DefaultKernelTables.
	KernelTables uint32
}

func (cfg BootConfig) kernelTables() uint32 {
	if cfg.KernelTables == 0 {
		return DefaultKernelTables
	}
	return cfg.KernelTables
}

// RegionSize returns the number of bytes needed by a boot region: one page for
// the directory, one for the identity table and one per kernel table.
func RegionSize(cfg BootConfig) uint32 {
	return (firstKernelPage + cfg.kernelTables()) * mm.PageSize
}

// KernelLayout holds the linker-provided addresses the boot directory is
// built from.
type KernelLayout struct {
	// KernelStart and KernelEnd bound the kernel image at its high-half
	// virtual address.
	KernelStart, KernelEnd mm.VirtAddr

	// ShimEnd is the physical end of the boot shim, which is loaded at
	// 1 MiB and stays identity mapped.
	ShimEnd mm.PhysAddr

	// StackTop is the top of the initial kernel stack. Zero skips the
	// stack check.
	StackTop mm.VirtAddr
}

// KernelPages returns the number of pages spanned by the kernel image,
// counted from the page containing KernelStart.
func (l KernelLayout) KernelPages() uint32 {
	if l.KernelEnd <= l.KernelStart {
		return 0
	}
	start := l.KernelStart &^ mm.VirtAddr(mm.PageSize-1)
	return mm.PageCount(uint32(l.KernelEnd - start))
}

// ShimPages returns the number of pages identity mapped for the boot shim.
func (l KernelLayout) ShimPages() uint32 {
	if l.ShimEnd <= mm.LowMemoryEnd {
		return 0
	}
	return mm.PageCount(uint32(l.ShimEnd - mm.LowMemoryEnd))
}

// BootRegion is a zeroed, page-aligned run of pages that has been claimed for
// the boot page directory but does not hold one yet. It is consumed by Build.
type BootRegion struct {
	mem    mm.PhysMem
	base   mm.PhysAddr
	tables uint32
	buf    []byte
	built  bool
}

// ClaimBootRegion claims RegionSize(cfg) bytes at base for the boot page
// directory and zeroes them; the bootloader gives no guarantee about the
// contents of that memory.
func ClaimBootRegion(mem mm.PhysMem, base mm.PhysAddr, cfg BootConfig) (BootRegion, *kernel.Error) {
	if !base.PageAligned() {
		return BootRegion{}, ErrMisalignedRegion
	}

	size := RegionSize(cfg)
	buf := mem.Bytes(base, size)
	if buf == nil {
		return BootRegion{}, ErrRegionTooSmall
	}

	kernel.Memset(uintptr(unsafe.Pointer(&buf[0])), 0, uintptr(size))

	return BootRegion{
		mem:    mem,
		base:   base,
		tables: cfg.kernelTables(),
		buf:    buf,
	}, nil
}

// Base returns the physical address of the region.
func (r *BootRegion) Base() mm.PhysAddr {
	return r.base
}

// table returns the page at index page of the region as a page table.
func (r *BootRegion) table(page uint32) *pageTable {
	return (*pageTable)(unsafe.Pointer(&r.buf[page*mm.PageSize]))
}

// frame returns the physical frame of the page at index page of the region.
func (r *BootRegion) frame(page uint32) mm.Frame {
	return mm.FrameFromAddress(r.base) + mm.Frame(page)
}

// validate checks layout against the region before anything is written.
func (r *BootRegion) validate(layout KernelLayout) *kernel.Error {
	switch {
	case !layout.KernelStart.HighHalf():
		return ErrKernelNotHighHalf
	case layout.KernelEnd < layout.KernelStart:
		return ErrInvalidKernelRange
	case lowMemoryEntries+layout.ShimPages() > entriesPerTable:
		return ErrShimTooLarge
	case uint64(layout.KernelStart.PTIndex())+uint64(layout.KernelPages()) > uint64(r.tables)*entriesPerTable:
		return ErrKernelTooLarge
	case layout.KernelStart.PDIndex()+r.tables > selfRefIndex:
		return ErrKernelOverlapsSelfRef
	case layout.StackTop != 0 && (layout.StackTop < layout.KernelStart || layout.StackTop > layout.KernelEnd):
		return ErrStackOutsideKernel
	}

	return nil
}

// Build populates the region so that, once loaded into CR3, it:
//   - identity maps the first MiB and the boot shim read/write,
//   - maps the kernel image read/write at its high-half address onto the
//     frames it was loaded to,
//   - maps the directory onto itself through its last entry, uncached.
//
// The layout is validated before the region is modified; on failure the
// region is left zeroed and can be built again with a corrected layout. A
// region can hold only one directory.
func (r *BootRegion) Build(layout KernelLayout) (BootDirectory, *kernel.Error) {
	switch {
	case r.buf == nil:
		return BootDirectory{}, ErrRegionNotClaimed
	case r.built:
		return BootDirectory{}, ErrDirectoryAlreadyBuilt
	}

	if err := r.validate(layout); err != nil {
		kfmt.Fprintf(logger, "rejecting kernel layout: %s\n", err.Message)
		return BootDirectory{}, err
	}

	pdt := r.table(directoryPage)

	// The identity mapping goes in first so the shim's jump to the high
	// half stays resolvable.
	pdt[0] = makeEntry(r.frame(identityTablePage), FlagPresent|FlagRW)
	identity := r.table(identityTablePage)
	for i := uint32(0); i < lowMemoryEntries; i++ {
		identity[i] = makeEntry(mm.Frame(i), FlagPresent|FlagRW)
	}

	shimPages := layout.ShimPages()
	shimFrame := mm.FrameFromAddress(mm.LowMemoryEnd)
	for i := uint32(0); i < shimPages; i++ {
		identity[lowMemoryEntries+i] = makeEntry(shimFrame+mm.Frame(i), FlagPresent|FlagRW)
	}

	pdeIndex := layout.KernelStart.PDIndex()
	for t := uint32(0); t < r.tables; t++ {
		pdt[pdeIndex+t] = makeEntry(r.frame(firstKernelPage+t), FlagPresent|FlagRW)
	}

	// Kernel entries run contiguously across the reserved tables.
	var (
		kernelPages = layout.KernelPages()
		kernelFrame = mm.FrameFromAddress(mm.V2P(layout.KernelStart))
		pteIndex    = layout.KernelStart.PTIndex()
	)
	for i := uint32(0); i < kernelPages; i++ {
		slot := pteIndex + i
		r.table(firstKernelPage + slot/entriesPerTable)[slot%entriesPerTable] = makeEntry(kernelFrame+mm.Frame(i), FlagPresent|FlagRW)
	}

	pdt[selfRefIndex] = makeEntry(r.frame(directoryPage), selfRefFlags)

	r.built = true

	kfmt.Fprintf(logger, "page directory at 0x%8x\n", uint32(r.base))
	kfmt.Fprintf(logger, "identity: %d low memory pages, %d shim pages\n", lowMemoryEntries, shimPages)
	kfmt.Fprintf(logger, "kernel: %d pages at 0x%8x (%d of %d table entries)\n", kernelPages, uint32(layout.KernelStart), pteIndex+kernelPages, r.tables*entriesPerTable)

	return BootDirectory{
		mem:    r.mem,
		base:   r.base,
		tables: r.tables,
		layout: layout,
	}, nil
}

// BootDirectory is a fully built boot page directory.
type BootDirectory struct {
	mem    mm.PhysMem
	base   mm.PhysAddr
	tables uint32
	layout KernelLayout
}

// PhysAddr returns the physical address of the directory, the value loaded
// into CR3.
func (d *BootDirectory) PhysAddr() mm.PhysAddr {
	return d.base
}

// Layout returns the kernel layout the directory was built from.
func (d *BootDirectory) Layout() KernelLayout {
	return d.layout
}

// Translate returns the physical address that virt maps to in this directory.
func (d *BootDirectory) Translate(virt mm.VirtAddr) (mm.PhysAddr, *kernel.Error) {
	return Translate(d.mem, d.base, virt)
}

// Activate loads the directory into CR3 and turns on paging. Write protection
// is enabled as well so that supervisor writes honour read-only mappings.
func (d *BootDirectory) Activate(ops cpu.ControlRegisters) {
	ops.WriteCR3(uint32(d.base))
	ops.WriteCR0(ops.ReadCR0() | cpu.CR0Paging | cpu.CR0WriteProtect)

	kfmt.Fprintf(logger, "paging enabled (cr3=0x%8x)\n", uint32(d.base))
}
