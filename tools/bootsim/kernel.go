package main

import (
	"debug/elf"
	"fmt"
	"io"

	"github.com/ParrotXray/CureOS/kernel/mm"
	"github.com/ParrotXray/CureOS/kernel/mm/vmm"
)

// Linker symbols describing the kernel image.
const (
	symKernelStart = "__kernel_start"
	symKernelEnd   = "__kernel_end"
	symShimEnd     = "__init_hhk_end"
	symStackTop    = "_k_stack"
)

// loadKernel copies the loadable segments of the ELF image at path to their
// physical addresses in guest memory and returns layout updated with the
// addresses of the linker symbols found in the image.
func loadKernel(mem *mm.Region, path string, layout vmm.KernelLayout) (vmm.KernelLayout, error) {
	f, err := elf.Open(path)
	if err != nil {
		return layout, err
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 || f.Machine != elf.EM_386 {
		return layout, fmt.Errorf("%s: not a 32-bit x86 image", path)
	}

	if err = loadSegments(mem, f); err != nil {
		return layout, fmt.Errorf("%s: %w", path, err)
	}

	symbols, err := f.Symbols()
	if err != nil {
		return layout, fmt.Errorf("%s: %w", path, err)
	}

	var found int
	for _, symbol := range symbols {
		switch symbol.Name {
		case symKernelStart:
			layout.KernelStart = mm.VirtAddr(symbol.Value)
			found++
		case symKernelEnd:
			layout.KernelEnd = mm.VirtAddr(symbol.Value)
			found++
		case symShimEnd:
			layout.ShimEnd = mm.PhysAddr(symbol.Value)
		case symStackTop:
			layout.StackTop = mm.VirtAddr(symbol.Value)
		}
	}

	if found != 2 {
		return layout, fmt.Errorf("%s: could not locate %q and %q", path, symKernelStart, symKernelEnd)
	}

	return layout, nil
}

func loadSegments(mem *mm.Region, f *elf.File) error {
	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}

		if p.Filesz > p.Memsz {
			return fmt.Errorf("segment %d@0x%x is larger on disk than in memory", i, p.Paddr)
		}

		if p.Paddr+p.Memsz > uint64(len(mem.Mem)) {
			return fmt.Errorf("segment %d@0x%x does not fit in guest memory", i, p.Paddr)
		}

		dst := mem.Bytes(mm.PhysAddr(p.Paddr), uint32(p.Memsz))
		n, err := p.ReadAt(dst[:p.Filesz], 0)
		if err != nil && err != io.EOF || uint64(n) != p.Filesz {
			return fmt.Errorf("reading segment %d@0x%x: %d/%d bytes: %v", i, p.Paddr, n, p.Filesz, err)
		}

		// The rest of the segment (.bss) is zeroed.
		for j := p.Filesz; j < p.Memsz; j++ {
			dst[j] = 0
		}
	}

	return nil
}
