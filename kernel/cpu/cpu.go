// Package cpu exposes the privileged processor operations used while
// bootstrapping the kernel: control registers, descriptor-table loads,
// the interrupt flag, halting and port I/O.
//
// Every consumer talks to the processor through the Ops interface (or one of
// its narrower parts) so that the same code can drive the real hardware via
// the Native backend or the Sim backend on a hosted platform.
package cpu

// Control register bits that the bootstrap code manipulates.
const (
	// CR0ProtectedMode enables protected mode.
	CR0ProtectedMode = uint32(1 << 0)

	// CR0WriteProtect makes supervisor writes honour read-only pages.
	CR0WriteProtect = uint32(1 << 16)

	// CR0Paging enables paging using the directory loaded in CR3.
	CR0Paging = uint32(1 << 31)

	// EFlagsInterrupt is the interrupt-enable flag in EFLAGS.
	EFlagsInterrupt = uint32(1 << 9)
)

// DescriptorTablePointer is the operand of the LGDT and LIDT instructions.
// Limit is the table size in bytes minus one and Base the linear address of
// the first entry.
type DescriptorTablePointer struct {
	Limit uint16
	Base  uintptr
}

// ControlRegisters provides access to the control registers.
type ControlRegisters interface {
	ReadCR0() uint32
	WriteCR0(val uint32)

	// ReadCR2 returns the linear address that caused the last page fault.
	ReadCR2() uint32

	ReadCR3() uint32

	// WriteCR3 loads the physical address of a page directory and
	// implicitly flushes the TLB.
	WriteCR3(pdtPhysAddr uint32)
}

// DescriptorTables provides the descriptor-table loading instructions.
type DescriptorTables interface {
	LoadGDT(ptr DescriptorTablePointer)
	LoadIDT(ptr DescriptorTablePointer)

	// ReloadSegments performs a far jump to reload CS with the code
	// selector and loads the data selector into the data segment
	// registers.
	ReloadSegments(codeSel, dataSel uint16)
}

// InterruptFlag controls maskable interrupt delivery.
type InterruptFlag interface {
	EnableInterrupts()
	DisableInterrupts()
	InterruptsEnabled() bool
}

// Ports provides access to the I/O port address space.
type Ports interface {
	PortReadByte(port uint16) uint8
	PortReadWord(port uint16) uint16
	PortReadDword(port uint16) uint32
	PortWriteByte(port uint16, val uint8)
	PortWriteWord(port uint16, val uint16)
	PortWriteDword(port uint16, val uint32)
}

// Ops is the complete set of privileged operations.
type Ops interface {
	ControlRegisters
	DescriptorTables
	InterruptFlag
	Ports

	// Halt stops instruction execution with interrupts masked. The Native
	// backend never returns from Halt.
	Halt()
}
