package kmain

import (
	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/hal"
	"github.com/ParrotXray/CureOS/kernel/kfmt"
	"github.com/ParrotXray/CureOS/kernel/mm"
	"github.com/ParrotXray/CureOS/kernel/mm/vmm"
	"github.com/ParrotXray/CureOS/multiboot"
)

// Physical memory used by the boot sequence. Both ranges lie in conventional
// memory below the EBDA, which stays identity mapped.
const (
	BootInfoSaveAddr     = mm.PhysAddr(0x8000)
	BootInfoSaveCapacity = uint32(0x8000)
	BootRegionBase       = mm.PhysAddr(0x10000)
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// system holds the tables the processor references once Boot loads
	// them.
	system System
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up a
// minimal g0 struct that allows Go code using the stack allocated by the
// assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the linker-provided kernel image bounds, the end of
// the boot shim and the top of the kernel stack.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd, shimEnd, stackTop uintptr) {
	var (
		ops = cpu.Default()
		mem = mm.Identity{}
	)

	if err := hal.InitTerminal(mem, ops, multiboot.InfoAt(mem, mm.PhysAddr(multibootInfoPtr))); err == nil {
		kfmt.SetOutputSink(hal.ActiveTerminal)
	}
	kfmt.Printf("Starting CureOS\n")

	err := Boot(&system, ops, mem, Params{
		InfoAddr:     mm.PhysAddr(multibootInfoPtr),
		SaveAddr:     BootInfoSaveAddr,
		SaveCapacity: BootInfoSaveCapacity,
		RegionBase:   BootRegionBase,
		Layout: vmm.KernelLayout{
			KernelStart: mm.VirtAddr(kernelStart),
			KernelEnd:   mm.VirtAddr(kernelEnd),
			ShimEnd:     mm.PhysAddr(shimEnd),
			StackTop:    mm.VirtAddr(stackTop),
		},
	})
	if err != nil {
		kfmt.Panic(err)
	}

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}
