// Package gate builds the interrupt descriptor table and routes the
// exceptions and interrupts that reach it to their handlers.
package gate

import (
	"unsafe"

	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/gdt"
	"github.com/ParrotXray/CureOS/kernel/kfmt"
)

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// Debug is raised by the debug registers and single stepping.
	Debug = InterruptNumber(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems. It may also be
	// raised by the CPU when a watchdog timer is enabled.
	NMI = InterruptNumber(2)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = InterruptNumber(3)

	// Overflow occurs when an overflow occurs (e.g result of division
	// cannot fit into the registers used).
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an
	// FPU/MMX/SSE instruction while no FPU is available or while
	// FPU/MMX/SSE support has been disabled by manipulating the CR0
	// register.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = InterruptNumber(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when the CPU attempts to invoke a present
	// gate with an invalid stack segment selector.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs when the stack base/limit (set in GDT)
	// checks fail.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs while invoking an FP instruction while:
	//  - CR0.NE = 1 OR
	//  - an unmasked FP exception is pending
	FloatingPointException = InterruptNumber(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligmed memory access is performed.
	AlignmentCheck = InterruptNumber(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = InterruptNumber(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set to 1. If the OSXMMEXCPT bit is
	// not set, SIMD FP exceptions cause InvalidOpcode exceptions instead.
	SIMDFloatingPointException = InterruptNumber(19)

	// FirstUserVector is the first vector not reserved by the CPU.
	FirstUserVector = InterruptNumber(32)
)

// EntryCount is the number of slots in the interrupt descriptor table.
const EntryCount = 256

// GateType selects how the CPU enters a gate.
type GateType uint8

const (
	// TaskGate switches to the task referenced by its TSS selector.
	TaskGate GateType = 0x5

	// InterruptGate clears IF on entry.
	InterruptGate GateType = 0xe

	// TrapGate leaves IF untouched.
	TrapGate GateType = 0xf
)

// String implements fmt.Stringer for GateType.
func (t GateType) String() string {
	switch t {
	case TaskGate:
		return "task"
	case InterruptGate:
		return "interrupt"
	case TrapGate:
		return "trap"
	default:
		return "invalid"
	}
}

// gatePresent is the present bit of the type/attribute byte.
const gatePresent = 0x80

// Gate is an 8-byte 32-bit gate descriptor. The zero value is the
// not-present descriptor.
type Gate uint64

// NewGate encodes a present gate.
func NewGate(gateType GateType, sel gdt.Selector, offset uint32, dpl uint8) Gate {
	attr := uint64(gatePresent | (dpl&3)<<5 | uint8(gateType)&0xf)

	return Gate(uint64(offset>>16)<<48 | attr<<40 | uint64(sel)<<16 | uint64(offset&0xffff))
}

func (g Gate) attr() uint8 { return uint8(g >> 40) }

// Present returns true if the gate can be used.
func (g Gate) Present() bool { return g.attr()&gatePresent != 0 }

// Type returns the gate type.
func (g Gate) Type() GateType { return GateType(g.attr() & 0xf) }

// DPL returns the privilege level required to raise the vector with INT.
func (g Gate) DPL() uint8 { return (g.attr() >> 5) & 3 }

// Selector returns the code segment (or TSS for task gates) selector.
func (g Gate) Selector() gdt.Selector { return gdt.Selector(g >> 16) }

// Offset returns the entry point address. Task gates have no offset.
func (g Gate) Offset() uint32 { return uint32(g&0xffff) | uint32(g>>48)<<16 }

// Table is the interrupt descriptor table. The zero value has every gate
// absent. The processor keeps referencing a loaded table by its linear
// address, so a Table that gets loaded must live in static storage (a
// package-level variable) and must not be copied.
type Table struct {
	entries [EntryCount]Gate
}

// Entry returns the gate for vector.
func (t *Table) Entry(vector InterruptNumber) Gate {
	return t.entries[vector]
}

// SetInterruptGate binds vector to the entry point at offset with an
// interrupt gate.
func (t *Table) SetInterruptGate(vector InterruptNumber, sel gdt.Selector, offset uintptr, dpl uint8) {
	t.entries[vector] = NewGate(InterruptGate, sel, uint32(offset), dpl)
}

// SetTrapGate binds vector to the entry point at offset with a trap gate.
func (t *Table) SetTrapGate(vector InterruptNumber, sel gdt.Selector, offset uintptr, dpl uint8) {
	t.entries[vector] = NewGate(TrapGate, sel, uint32(offset), dpl)
}

// SetTaskGate binds vector to the task referenced by tssSel.
func (t *Table) SetTaskGate(vector InterruptNumber, tssSel gdt.Selector, dpl uint8) {
	t.entries[vector] = NewGate(TaskGate, tssSel, 0, dpl)
}

// Clear marks the gate for vector as absent.
func (t *Table) Clear(vector InterruptNumber) {
	t.entries[vector] = 0
}

// Config controls Install.
type Config struct {
	// CodeSelector is the selector the gates enter through. Zero selects
	// gdt.KernelCodeSelector.
	CodeSelector gdt.Selector

	// PopulateDefault binds vectors 32-255 to the default entry point.
	// Otherwise they stay absent and an interrupt on one of them raises a
	// general protection fault that reports the offending vector.
	PopulateDefault bool
}

// Install binds each architectural exception vector (0-31) to its entry
// trampoline with a ring-0 interrupt gate and, if requested, the remaining
// vectors to the default trampoline. Otherwise vectors 32-255 are cleared.
func (t *Table) Install(cfg Config) {
	sel := cfg.CodeSelector
	if sel == gdt.NullSelector {
		sel = gdt.KernelCodeSelector
	}

	for v := 0; v < int(FirstUserVector); v++ {
		t.SetInterruptGate(InterruptNumber(v), sel, entryPoint(InterruptNumber(v)), 0)
	}

	if !cfg.PopulateDefault {
		for v := int(FirstUserVector); v < EntryCount; v++ {
			t.Clear(InterruptNumber(v))
		}
		kfmt.Fprintf(logger, "vectors 32-255 left absent; stray interrupts will raise #GP\n")
		return
	}

	for v := int(FirstUserVector); v < EntryCount; v++ {
		t.SetInterruptGate(InterruptNumber(v), sel, entryPoint(InterruptNumber(v)), 0)
	}
	kfmt.Fprintf(logger, "vectors 32-255 bound to the default handler\n")
}

// Pointer returns the operand for the LIDT instruction. The base is only
// meaningful while t stays at its current address.
func (t *Table) Pointer() cpu.DescriptorTablePointer {
	return cpu.DescriptorTablePointer{
		Limit: uint16(unsafe.Sizeof(t.entries) - 1),
		Base:  uintptr(unsafe.Pointer(&t.entries[0])),
	}
}

// Load installs the table with LIDT.
func (t *Table) Load(ops cpu.DescriptorTables) {
	ops.LoadIDT(t.Pointer())

	var present int
	for _, g := range t.entries {
		if g.Present() {
			present++
		}
	}
	kfmt.Fprintf(logger, "loaded IDT with %d present gates\n", present)
}

var logger = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[gate] ")}
