package kmain

import (
	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/gate"
	"github.com/ParrotXray/CureOS/kernel/gdt"
	"github.com/ParrotXray/CureOS/kernel/kfmt"
	"github.com/ParrotXray/CureOS/kernel/mm"
	"github.com/ParrotXray/CureOS/kernel/mm/vmm"
	"github.com/ParrotXray/CureOS/multiboot"
)

var (
	errInfoUnavailable = &kernel.Error{Module: "kmain", Message: "relocated boot information is not readable"}

	logger = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[boot] ")}
)

// Params describes where the bootloader left its data and where the boot
// sequence may place its own structures.
type Params struct {
	// InfoAddr is the physical address of the multiboot record supplied
	// by the bootloader.
	InfoAddr mm.PhysAddr

	// SaveAddr and SaveCapacity bound the buffer the multiboot record is
	// relocated to.
	SaveAddr     mm.PhysAddr
	SaveCapacity uint32

	// RegionBase is the page-aligned physical address of the boot page
	// directory and its tables.
	RegionBase mm.PhysAddr

	// Layout holds the linker-provided kernel addresses.
	Layout vmm.KernelLayout
}

// System holds the structures built by Boot. The processor keeps referencing
// the descriptor tables and the entry trampolines keep referencing the
// dispatcher by address, so a System passed to Boot must live in static
// storage (a package-level variable) for the lifetime of the kernel.
type System struct {
	Config Config

	// Info is the relocated multiboot record and InfoSize the number of
	// bytes it occupies at Params.SaveAddr.
	Info     *multiboot.Info
	InfoSize uint32

	Directory  vmm.BootDirectory
	GDT        gdt.Table
	IDT        gate.Table
	Dispatcher gate.Dispatcher
}

// Boot brings the processor from the state the bootloader hands it over to
// a state where paging is enabled, the flat segments are loaded and every
// exception is routed to the dispatcher. The steps run in order:
//
//  1. mask interrupts
//  2. relocate the multiboot record and read the command line options
//  3. build and activate the boot page directory
//  4. build and load the GDT
//  5. build and load the IDT and activate the dispatcher
//  6. optionally unmask interrupts
//
// Boot builds every structure in place inside sys and never allocates, as it
// runs before the Go allocator is available. Nothing is activated if a step
// fails; the first error is returned.
func Boot(sys *System, ops cpu.Ops, mem mm.PhysMem, p Params) *kernel.Error {
	ops.DisableInterrupts()

	sys.Config = DefaultConfig()
	sys.Info = nil
	sys.InfoSize = 0

	size, err := multiboot.Relocate(mem, p.InfoAddr, p.SaveAddr, p.SaveCapacity, multiboot.RelocateOptions{
		Sections: multiboot.DefaultSections | multiboot.FlagCmdLine | multiboot.FlagBootLoaderName,
	})
	if err != nil {
		return err
	}

	if sys.Info = multiboot.InfoAt(mem, p.SaveAddr); sys.Info == nil {
		return errInfoUnavailable
	}
	sys.InfoSize = size
	kfmt.Fprintf(logger, "relocated boot information to 0x%x (%d bytes)\n", uint32(p.SaveAddr), size)

	if err = ParseCmdLine(mem, sys.Info, &sys.Config); err != nil {
		return err
	}
	kfmt.Fprintf(logger, "kernel tables: %d, default gates: %t, interrupts: %t\n",
		sys.Config.KernelTables, sys.Config.PopulateDefaultGates, sys.Config.EnableInterrupts)

	region, err := vmm.ClaimBootRegion(mem, p.RegionBase, vmm.BootConfig{KernelTables: sys.Config.KernelTables})
	if err != nil {
		return err
	}

	if sys.Directory, err = region.Build(p.Layout); err != nil {
		return err
	}
	sys.Directory.Activate(ops)

	gdt.Build(&sys.GDT)
	sys.GDT.Load(ops)

	sys.IDT.Install(gate.Config{
		CodeSelector:    gdt.KernelCodeSelector,
		PopulateDefault: sys.Config.PopulateDefaultGates,
	})

	gate.InitDispatcher(&sys.Dispatcher, ops)
	sys.Dispatcher.Walker = &sys.Directory
	sys.Dispatcher.Activate()
	sys.IDT.Load(ops)

	if sys.Config.EnableInterrupts {
		ops.EnableInterrupts()
		kfmt.Fprintf(logger, "interrupts enabled\n")
	}

	return nil
}
