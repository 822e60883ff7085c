package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/gate"
	"github.com/ParrotXray/CureOS/kernel/gdt"
	"github.com/ParrotXray/CureOS/kernel/kmain"
	"github.com/ParrotXray/CureOS/kernel/mm"
	"github.com/ParrotXray/CureOS/kernel/mm/vmm"
	"github.com/ParrotXray/CureOS/multiboot"
	"golang.org/x/arch/x86/x86asm"
)

const (
	// maxInstructionLen is the longest valid x86 instruction.
	maxInstructionLen = 15

	// disasmCount is the number of instructions listed from EIP.
	disasmCount = 4

	// unmappedProbe lies between the identity mapped low memory and the
	// high half and is never mapped by the boot directory.
	unmappedProbe = mm.VirtAddr(0x40000000)
)

var flagNames = []struct {
	flag vmm.PageTableEntryFlag
	name string
}{
	{vmm.FlagPresent, "P"},
	{vmm.FlagRW, "RW"},
	{vmm.FlagUserAccessible, "US"},
	{vmm.FlagWriteThroughCaching, "PWT"},
	{vmm.FlagDoNotCache, "PCD"},
	{vmm.FlagAccessed, "A"},
	{vmm.FlagDirty, "D"},
	{vmm.FlagHugePage, "PS"},
	{vmm.FlagGlobal, "G"},
}

func formatFlags(flags vmm.PageTableEntryFlag) string {
	var names []string
	for _, fn := range flagNames {
		if flags&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}

func printMemoryMap(w io.Writer, mem mm.PhysMem, sys *kmain.System) {
	fmt.Fprintf(w, "\nMemory map (relocated to 0x%08x):\n", sys.Info.MmapAddr)
	multiboot.VisitMemRegions(mem, sys.Info, func(entry *multiboot.MemoryMapEntry) bool {
		fmt.Fprintf(w, "  [0x%010x - 0x%010x] %s\n", entry.PhysAddress, entry.PhysAddress+entry.Length, entry.Type)
		return true
	})
}

func printTranslations(w io.Writer, mem mm.PhysMem, sys *kmain.System) {
	layout := sys.Directory.Layout()

	samples := []struct {
		name string
		addr mm.VirtAddr
	}{
		{"null page", 0},
		{"text buffer", 0xb8000},
		{"boot shim", mm.VirtAddr(mm.LowMemoryEnd)},
		{"kernel start", layout.KernelStart},
		{"kernel end", layout.KernelEnd - 1},
		{"page directory", vmm.PDTVirtualAddr()},
		{"first table", vmm.PTVirtualAddr(0)},
		{"unmapped", unmappedProbe},
	}

	fmt.Fprintf(w, "\nTranslations:\n")
	for _, sample := range samples {
		phys, err := sys.Directory.Translate(sample.addr)
		if err != nil {
			fmt.Fprintf(w, "  %-14s 0x%08x -> %s\n", sample.name, uint32(sample.addr), err.Message)
			continue
		}

		flags, _ := vmm.MappingFlags(mem, sys.Directory.PhysAddr(), sample.addr)
		fmt.Fprintf(w, "  %-14s 0x%08x -> 0x%08x [%s]\n", sample.name, uint32(sample.addr), uint32(phys), formatFlags(flags))
	}
}

// injectTrap delivers a synthetic trap frame to the dispatcher the way the
// entry trampolines would and lists the code at the trapping EIP.
func injectTrap(w io.Writer, mem mm.PhysMem, sim *cpu.Sim, sys *kmain.System, opts *options, codeLoaded bool) {
	layout := sys.Directory.Layout()

	eip := uint32(opts.eip)
	if eip == 0 {
		eip = uint32(layout.KernelStart)
	}

	sim.CR2 = uint32(opts.faultAddr)
	regs := gate.Registers{
		ESP:       uint32(layout.StackTop),
		Vector:    uint32(opts.trap),
		ErrorCode: uint32(opts.errorCode),
		EIP:       eip,
		CS:        uint32(gdt.KernelCodeSelector),
		EFlags:    cpu.EFlagsInterrupt | 0x2,
	}

	var halted *kernel.Error
	d := &sys.Dispatcher
	d.Out = w
	d.Fatal = func(err *kernel.Error) { halted = err }

	fmt.Fprintf(w, "\nInjecting vector %d:\n", opts.trap)
	if d.Dispatch(&regs) == gate.Resume {
		fmt.Fprintf(w, "\nresumed\n")
	} else if halted != nil {
		fmt.Fprintf(w, "\nprocessor halted: %s\n", halted.Message)
	}

	fmt.Fprintf(w, "\nCode at EIP:\n")
	if !codeLoaded {
		fmt.Fprintf(w, "  no kernel image loaded\n")
		return
	}
	disassemble(w, mem, &sys.Directory, eip)
}

// disassemble lists the instructions at eip, resolving it through dir.
func disassemble(w io.Writer, mem mm.PhysMem, dir *vmm.BootDirectory, eip uint32) {
	for i := 0; i < disasmCount; i++ {
		phys, err := dir.Translate(mm.VirtAddr(eip))
		if err != nil {
			fmt.Fprintf(w, "  0x%08x: %s\n", eip, err.Message)
			return
		}

		code := readCode(mem, phys)
		if code == nil {
			fmt.Fprintf(w, "  0x%08x: outside guest memory\n", eip)
			return
		}

		inst, decErr := x86asm.Decode(code, 32)
		if decErr != nil {
			fmt.Fprintf(w, "  0x%08x: % x (%v)\n", eip, code[:1], decErr)
			return
		}

		fmt.Fprintf(w, "  0x%08x: %-24s %s\n", eip, fmt.Sprintf("% x", code[:inst.Len]), x86asm.IntelSyntax(inst, uint64(eip), nil))
		eip += uint32(inst.Len)
	}
}

// readCode returns up to maxInstructionLen bytes at addr, fewer if guest
// memory ends sooner.
func readCode(mem mm.PhysMem, addr mm.PhysAddr) []byte {
	for n := uint32(maxInstructionLen); n > 0; n-- {
		if code := mem.Bytes(addr, n); code != nil {
			return code
		}
	}
	return nil
}
