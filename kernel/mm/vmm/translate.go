package vmm

import (
	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/mm"
)

var (
	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	// ErrTableUnreadable is returned when a paging structure referenced by
	// the walk lies outside the accessible physical memory.
	ErrTableUnreadable = &kernel.Error{Module: "vmm", Message: "paging structure not accessible"}
)

// PDTVirtualAddr returns the virtual address at which the active page
// directory can be accessed once paging is enabled. Resolving it follows the
// self-referencing entry twice, landing on the directory itself.
func PDTVirtualAddr() mm.VirtAddr {
	return mm.VirtAddr(selfRefIndex<<22 | selfRefIndex<<mm.PageShift)
}

// PTVirtualAddr returns the virtual address at which the page table referenced
// by directory entry pdIndex can be accessed once paging is enabled.
func PTVirtualAddr(pdIndex uint32) mm.VirtAddr {
	return mm.VirtAddr(selfRefIndex<<22 | (pdIndex&(entriesPerTable-1))<<mm.PageShift)
}

// entryAt reads the entry with the given index from the table at tableAddr.
func entryAt(mem mm.PhysMem, tableAddr mm.PhysAddr, index uint32) (pageTableEntry, *kernel.Error) {
	val, ok := mm.Uint32At(mem, tableAddr+mm.PhysAddr(index<<mm.PointerShift))
	if !ok {
		return 0, ErrTableUnreadable
	}
	return pageTableEntry(val), nil
}

// walk performs the two-level translation of virt through the directory at
// pdtAddr in software and returns the final page table entry.
func walk(mem mm.PhysMem, pdtAddr mm.PhysAddr, virt mm.VirtAddr) (pageTableEntry, *kernel.Error) {
	pde, err := entryAt(mem, pdtAddr, virt.PDIndex())
	if err != nil {
		return 0, err
	}
	if !pde.HasFlags(FlagPresent) {
		return 0, ErrInvalidMapping
	}

	pte, err := entryAt(mem, pde.Frame().Address(), virt.PTIndex())
	if err != nil {
		return 0, err
	}
	if !pte.HasFlags(FlagPresent) {
		return 0, ErrInvalidMapping
	}

	return pte, nil
}

// Translate returns the physical address that corresponds to the supplied
// virtual address under the directory at pdtAddr, or ErrInvalidMapping if
// the virtual address is not mapped.
func Translate(mem mm.PhysMem, pdtAddr mm.PhysAddr, virt mm.VirtAddr) (mm.PhysAddr, *kernel.Error) {
	pte, err := walk(mem, pdtAddr, virt)
	if err != nil {
		return 0, err
	}

	return pte.Frame().Address() + mm.PhysAddr(virt.PageOffset()), nil
}

// MappingFlags returns the flags of the page table entry mapping virt, or
// ErrInvalidMapping if it is not mapped.
func MappingFlags(mem mm.PhysMem, pdtAddr mm.PhysAddr, virt mm.VirtAddr) (PageTableEntryFlag, *kernel.Error) {
	pte, err := walk(mem, pdtAddr, virt)
	if err != nil {
		return 0, err
	}

	return pte.Flags(), nil
}
