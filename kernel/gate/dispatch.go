package gate

import (
	"io"

	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/kfmt"
	"github.com/ParrotXray/CureOS/kernel/mm"
)

// Disposition tells the dispatcher what to do once a handler returns.
type Disposition uint8

const (
	// Halt reports the event through the fatal reporter and stops the
	// processor.
	Halt Disposition = iota

	// Resume returns to the interrupted code.
	Resume
)

// Handler processes an interrupt. Handlers run with interrupts disabled and
// must not enable them.
type Handler func(regs *Registers) Disposition

// PageWalker translates virtual addresses through the active page
// directory. It is used to describe the mapping of a faulting address.
type PageWalker interface {
	Translate(virt mm.VirtAddr) (mm.PhysAddr, *kernel.Error)
}

var (
	errUnhandledException = &kernel.Error{Module: "gate", Message: "unhandled CPU exception"}
	errUnhandledInterrupt = &kernel.Error{Module: "gate", Message: "unhandled interrupt"}
	errUnrecoverableFault = &kernel.Error{Module: "gate", Message: "unrecoverable page fault"}

	// activeDispatcher receives the frames delivered by the entry
	// trampolines.
	activeDispatcher *Dispatcher
)

// slotKind selects the action bound to a vector. The set is closed: one kind
// per architectural exception class, a default for the remaining vectors and
// registered overrides.
type slotKind uint8

const (
	defaultSlot slotKind = iota
	exceptionSlot
	pageFaultSlot
	overrideSlot
)

// slot is the action bound to a vector. fn is only set for overrideSlot.
type slot struct {
	kind slotKind
	fn   Handler
}

// builtinSlot returns the action a vector is bound to when no override is
// registered.
func builtinSlot(vector InterruptNumber) slot {
	switch {
	case vector == PageFaultException:
		return slot{kind: pageFaultSlot}
	case vector < FirstUserVector:
		return slot{kind: exceptionSlot}
	default:
		return slot{kind: defaultSlot}
	}
}

// Dispatcher routes the frames delivered by the entry trampolines to the
// handler bound to their vector. An active dispatcher is reached from the
// trampolines through a plain pointer, so it must live in static storage.
type Dispatcher struct {
	slots [EntryCount]slot

	// Out receives the diagnostics of unhandled events.
	Out io.Writer

	// CR supplies the page fault address (CR2).
	CR cpu.ControlRegisters

	// Walker, when set, is used to report how a faulting address is
	// mapped.
	Walker PageWalker

	// Fatal is invoked with the cause once a handler asks to halt. It
	// defaults to kfmt.Panic which never returns.
	Fatal func(err *kernel.Error)
}

// InitDispatcher resets d to a dispatcher that reports and halts on every
// vector. Any registered overrides and Walker are dropped.
func InitDispatcher(d *Dispatcher, cr cpu.ControlRegisters) {
	d.Out = kfmt.Output
	d.CR = cr
	d.Walker = nil
	d.Fatal = panicOnFatal

	for v := 0; v < EntryCount; v++ {
		d.slots[v] = builtinSlot(InterruptNumber(v))
	}
}

func panicOnFatal(err *kernel.Error) {
	kfmt.Panic(err)
}

// HandleInterrupt ensures that the provided handler will be invoked when a
// particular interrupt number occurs. Handlers returning Resume make the
// event recoverable. A nil handler restores the built-in behavior.
func (d *Dispatcher) HandleInterrupt(vector InterruptNumber, handler Handler) {
	if handler == nil {
		d.slots[vector] = builtinSlot(vector)
		return
	}
	d.slots[vector] = slot{kind: overrideSlot, fn: handler}
}

// Activate makes d the target of the entry trampolines.
func (d *Dispatcher) Activate() {
	activeDispatcher = d
}

// Dispatch routes regs to the handler bound to its vector and applies the
// returned disposition.
func (d *Dispatcher) Dispatch(regs *Registers) Disposition {
	var (
		vector      = InterruptNumber(uint8(regs.Vector))
		s           = d.slots[vector]
		disposition Disposition
		err         *kernel.Error
	)

	switch s.kind {
	case overrideSlot:
		disposition = s.fn(regs)
	case exceptionSlot:
		disposition, err = d.handleException(regs)
	case pageFaultSlot:
		disposition, err = d.handlePageFault(regs)
	default:
		disposition, err = d.handleDefault(regs)
	}

	if disposition == Halt {
		if err == nil {
			err = haltCause(vector)
		}
		d.Fatal(err)
	}

	return disposition
}

// haltCause returns the error reported when an override asks to halt.
func haltCause(vector InterruptNumber) *kernel.Error {
	if vector < FirstUserVector {
		return errUnhandledException
	}
	return errUnhandledInterrupt
}

func (d *Dispatcher) handleException(regs *Registers) (Disposition, *kernel.Error) {
	d.reportException(regs)

	switch InterruptNumber(regs.Vector) {
	case InvalidTSS, SegmentNotPresent, StackSegmentFault, GPFException:
		if selErr := SelectorError(regs.ErrorCode); selErr != 0 {
			table := "GDT"
			if selErr.IDT() {
				table = "IDT"
			}
			kfmt.Fprintf(d.Out, "Selector: %s index %d (external=%t)\n", table, selErr.Index(), selErr.External())
		}
	}

	d.dumpRegisters(regs)
	return Halt, errUnhandledException
}

func (d *Dispatcher) handlePageFault(regs *Registers) (Disposition, *kernel.Error) {
	var (
		faultAddr = d.CR.ReadCR2()
		pfErr     = PageFaultError(regs.ErrorCode)
	)

	d.reportException(regs)
	kfmt.Fprintf(d.Out, "Page fault while accessing address: 0x%8x\nReason: %s\n", faultAddr, pfErr.Reason())
	kfmt.Fprintf(d.Out, "present=%t, write=%t, user=%t, reserved=%t, fetch=%t\n",
		pfErr.Present(), pfErr.Write(), pfErr.User(), pfErr.Reserved(), pfErr.InstructionFetch())

	if d.Walker != nil {
		if phys, err := d.Walker.Translate(mm.VirtAddr(faultAddr)); err != nil {
			kfmt.Fprintf(d.Out, "Mapping: %s\n", err.Message)
		} else {
			kfmt.Fprintf(d.Out, "Mapping: 0x%8x -> 0x%8x\n", faultAddr, uint32(phys))
		}
	}

	d.dumpRegisters(regs)
	return Halt, errUnrecoverableFault
}

func (d *Dispatcher) handleDefault(regs *Registers) (Disposition, *kernel.Error) {
	kfmt.Fprintf(d.Out, "\nUnhandled interrupt: vector %d\n", regs.Vector)
	kfmt.Fprintf(d.Out, "EIP = %8x CS  = %8x EFL = %8x\n", regs.EIP, regs.CS, regs.EFlags)
	return Halt, errUnhandledInterrupt
}

func (d *Dispatcher) reportException(regs *Registers) {
	info, _ := Exception(InterruptNumber(regs.Vector))

	kfmt.Fprintf(d.Out, "\nCPU exception %s (%s)\n", info.Mnemonic, info.Description)
	kfmt.Fprintf(d.Out, "Type: %s, Source: %s\n", info.Class.String(), info.Source)
	kfmt.Fprintf(d.Out, "Vector: %d, EIP: 0x%8x, CS: 0x%4x, EFLAGS: 0x%8x\n", regs.Vector, regs.EIP, regs.CS, regs.EFlags)
	if HasErrorCode(InterruptNumber(regs.Vector)) {
		kfmt.Fprintf(d.Out, "Error code: 0x%8x\n", regs.ErrorCode)
	}
}

func (d *Dispatcher) dumpRegisters(regs *Registers) {
	kfmt.Fprintf(d.Out, "\nRegisters:\n")
	regs.DumpTo(d.Out)
}

// dispatchTrap is invoked by the common entry trampoline with a pointer to
// the frame it built on the stack.
func dispatchTrap(regs *Registers) {
	if activeDispatcher == nil {
		kfmt.Panic(errUnhandledInterrupt)
		return
	}

	activeDispatcher.Dispatch(regs)
}
