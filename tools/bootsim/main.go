// Command bootsim runs the kernel boot sequence against a simulated processor
// and guest memory on the host, then reports the resulting processor state
// and page mappings. It can optionally inject a trap to exercise the
// exception dispatcher.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/kfmt"
	"github.com/ParrotXray/CureOS/kernel/kmain"
	"github.com/ParrotXray/CureOS/kernel/mm"
	"github.com/ParrotXray/CureOS/kernel/mm/vmm"
)

// minMemMiB covers the multiboot record and the first MiB.
const minMemMiB = 2

// system is static for the same reason as the kernel's: the simulated
// processor records the linear addresses of the loaded tables.
var system kmain.System

type options struct {
	kernelPath string

	kernelStart, kernelEnd uint64
	shimEnd, stackTop      uint64

	memMiB  uint
	cmdLine string
	tables  uint

	trap      int
	faultAddr uint64
	errorCode uint64
	eip       uint64
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[bootsim] error: %s\n", err.Error())
	os.Exit(1)
}

func parseFlags(args []string) (*options, error) {
	var (
		opts options
		fs   = flag.NewFlagSet("bootsim", flag.ContinueOnError)
	)

	fs.StringVar(&opts.kernelPath, "kernel", "", "kernel ELF image; its symbols override the layout flags")
	fs.Uint64Var(&opts.kernelStart, "kernel-start", 0xc0102000, "virtual address of the kernel image")
	fs.Uint64Var(&opts.kernelEnd, "kernel-end", 0xc0110000, "virtual end of the kernel image")
	fs.Uint64Var(&opts.shimEnd, "shim-end", 0x102000, "physical end of the boot shim")
	fs.Uint64Var(&opts.stackTop, "stack-top", 0xc0110000, "top of the kernel stack (0 to skip the check)")
	fs.UintVar(&opts.memMiB, "mem", 32, "guest memory size in MiB")
	fs.StringVar(&opts.cmdLine, "cmdline", "", "kernel command line")
	fs.UintVar(&opts.tables, "tables", 0, "page tables reserved for the kernel (appended to the command line as vmm.tables)")
	fs.IntVar(&opts.trap, "trap", -1, "vector to inject after boot (-1 for none)")
	fs.Uint64Var(&opts.faultAddr, "fault-addr", 0, "value of CR2 when injecting a trap")
	fs.Uint64Var(&opts.errorCode, "error-code", 0, "error code pushed with the injected trap")
	fs.Uint64Var(&opts.eip, "eip", 0, "EIP of the injected trap (defaults to the kernel start)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch {
	case opts.memMiB < minMemMiB || opts.memMiB > 1024:
		return nil, fmt.Errorf("guest memory must be between %d and 1024 MiB", minMemMiB)
	case opts.trap > 255:
		return nil, fmt.Errorf("invalid trap vector %d", opts.trap)
	case opts.kernelStart > 0xffffffff || opts.kernelEnd > 0xffffffff || opts.shimEnd > 0xffffffff ||
		opts.stackTop > 0xffffffff || opts.faultAddr > 0xffffffff || opts.eip > 0xffffffff:
		return nil, errors.New("addresses must fit in 32 bits")
	}

	if opts.tables != 0 {
		if opts.cmdLine != "" {
			opts.cmdLine += " "
		}
		opts.cmdLine += fmt.Sprintf("vmm.tables=%d", opts.tables)
	}

	return &opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		exit(err)
	}

	if err = run(os.Stdout, opts); err != nil {
		exit(err)
	}
}

func run(w io.Writer, opts *options) error {
	ram, release, err := allocGuestMemory(uint32(opts.memMiB) << 20)
	if err != nil {
		return err
	}
	defer release()

	var (
		mem    = &mm.Region{Mem: ram}
		layout = vmm.KernelLayout{
			KernelStart: mm.VirtAddr(opts.kernelStart),
			KernelEnd:   mm.VirtAddr(opts.kernelEnd),
			ShimEnd:     mm.PhysAddr(opts.shimEnd),
			StackTop:    mm.VirtAddr(opts.stackTop),
		}
		codeLoaded bool
	)

	if opts.kernelPath != "" {
		if layout, err = loadKernel(mem, opts.kernelPath, layout); err != nil {
			return err
		}
		codeLoaded = true
	}

	if err = writeBootInfo(mem, opts.cmdLine); err != nil {
		return err
	}

	kfmt.SetOutputSink(w)
	defer kfmt.SetOutputSink(nil)

	sim := cpu.NewSim()
	sys := &system
	kerr := kmain.Boot(sys, sim, mem, kmain.Params{
		InfoAddr:     infoAddr,
		SaveAddr:     kmain.BootInfoSaveAddr,
		SaveCapacity: kmain.BootInfoSaveCapacity,
		RegionBase:   kmain.BootRegionBase,
		Layout:       layout,
	})
	if kerr != nil {
		return fmt.Errorf("boot failed: %w", kerr)
	}

	printState(w, sim)
	printMemoryMap(w, mem, sys)
	printTranslations(w, mem, sys)

	if opts.trap >= 0 {
		injectTrap(w, mem, sim, sys, opts, codeLoaded)
	}

	return nil
}

func printState(w io.Writer, sim *cpu.Sim) {
	fmt.Fprintf(w, "\nProcessor state:\n")
	fmt.Fprintf(w, "  CR0 = 0x%08x CR3 = 0x%08x paging=%t\n", sim.CR0, sim.CR3, sim.PagingEnabled())
	fmt.Fprintf(w, "  GDT base=0x%08x limit=%d cs=0x%02x ds=0x%02x\n", sim.GDT.Base, sim.GDT.Limit, sim.CodeSelector, sim.DataSelector)
	fmt.Fprintf(w, "  IDT base=0x%08x limit=%d\n", sim.IDT.Base, sim.IDT.Limit)
	fmt.Fprintf(w, "  interrupts enabled=%t\n", sim.InterruptFlag)
}
