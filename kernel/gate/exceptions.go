package gate

// ExceptionClass describes how the CPU reports an exception.
type ExceptionClass uint8

const (
	// ClassFault is reported before the faulting instruction executes;
	// EIP points to the instruction so it can be restarted.
	ClassFault ExceptionClass = iota

	// ClassTrap is reported after the trapping instruction; EIP points to
	// the next instruction.
	ClassTrap

	// ClassAbort is not restartable.
	ClassAbort

	// ClassInterrupt is raised by an external source.
	ClassInterrupt

	// ClassReserved marks vectors reserved by the architecture.
	ClassReserved
)

// String implements fmt.Stringer for ExceptionClass.
func (c ExceptionClass) String() string {
	switch c {
	case ClassFault:
		return "fault"
	case ClassTrap:
		return "trap"
	case ClassAbort:
		return "abort"
	case ClassInterrupt:
		return "interrupt"
	default:
		return "reserved"
	}
}

// ExceptionInfo describes an architectural exception vector.
type ExceptionInfo struct {
	Mnemonic    string
	Description string
	Class       ExceptionClass
	Source      string
}

// exceptions lists the architectural exceptions (vectors 0-31).
var exceptions = [FirstUserVector]ExceptionInfo{
	{"#DE", "Divide Error", ClassFault, "DIV and IDIV instructions."},
	{"#DB", "Debug", ClassTrap, "Any code or data reference."},
	{"NMI", "Non-maskable Interrupt", ClassInterrupt, "Non-maskable external interrupt."},
	{"#BP", "Breakpoint", ClassTrap, "INT 3 instruction."},
	{"#OF", "Overflow", ClassTrap, "INTO instruction."},
	{"#BR", "BOUND Range Exceeded", ClassFault, "BOUND instruction."},
	{"#UD", "Invalid Opcode (Undefined Opcode)", ClassFault, "UD2 instruction or reserved opcode."},
	{"#NM", "Device Not Available (No Math Coprocessor)", ClassFault, "Floating-point or WAIT/FWAIT instruction."},
	{"#DF", "Double Fault", ClassAbort, "Any instruction that can generate an exception, an NMI, or an INTR."},
	{"", "Coprocessor Segment Overrun", ClassFault, "Floating-point instruction."},
	{"#TS", "Invalid TSS", ClassFault, "Task switch or TSS access."},
	{"#NP", "Segment Not Present", ClassFault, "Loading segment registers or accessing system segments."},
	{"#SS", "Stack-Segment Fault", ClassFault, "Stack operations and SS register loads."},
	{"#GP", "General Protection", ClassFault, "Any memory reference and other protection checks."},
	{"#PF", "Page Fault", ClassFault, "Any memory reference."},
	{"", "RESERVED", ClassReserved, "None."},
	{"#MF", "x87 FPU Floating-Point", ClassFault, "x87 FPU instructions or WAIT/FWAIT instruction."},
	{"#AC", "Alignment Check", ClassFault, "Unaligned memory reference in ring 3."},
	{"#MC", "Machine Check", ClassAbort, "Model dependent machine check errors."},
	{"#XM", "SIMD Floating-Point", ClassFault, "SSE/SSE2/SSE3 floating-point instructions."},
	{"#VE", "Virtualization", ClassFault, "EPT violations."},
	{"#CP", "Control Protection", ClassFault, "RET, IRET, RSTORSSP and SETSSBSY instructions."},
	{"", "RESERVED", ClassReserved, "None."},
	{"", "RESERVED", ClassReserved, "None."},
	{"", "RESERVED", ClassReserved, "None."},
	{"", "RESERVED", ClassReserved, "None."},
	{"", "RESERVED", ClassReserved, "None."},
	{"", "RESERVED", ClassReserved, "None."},
	{"", "RESERVED", ClassReserved, "None."},
	{"", "RESERVED", ClassReserved, "None."},
	{"", "RESERVED", ClassReserved, "None."},
	{"", "RESERVED", ClassReserved, "None."},
}

// Exception returns the description of an architectural exception vector.
// The second result is false for vectors >= 32.
func Exception(vector InterruptNumber) (ExceptionInfo, bool) {
	if vector >= FirstUserVector {
		return ExceptionInfo{}, false
	}
	return exceptions[vector], true
}

// HasErrorCode returns true if the CPU pushes an error code when raising
// vector.
func HasErrorCode(vector InterruptNumber) bool {
	switch vector {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault, GPFException, PageFaultException, AlignmentCheck:
		return true
	}
	return false
}

// PageFaultError is the error code pushed for a page fault.
type PageFaultError uint32

const (
	// PageFaultPresent is set for protection violations and clear for
	// accesses to non-present pages.
	PageFaultPresent PageFaultError = 1 << iota

	// PageFaultWrite is set for writes and clear for reads.
	PageFaultWrite

	// PageFaultUser is set when the access originated in ring 3.
	PageFaultUser

	// PageFaultReserved is set when a paging structure had a reserved bit
	// set.
	PageFaultReserved

	// PageFaultInstructionFetch is set when the fault was caused by an
	// instruction fetch.
	PageFaultInstructionFetch
)

func (e PageFaultError) Present() bool          { return e&PageFaultPresent != 0 }
func (e PageFaultError) Write() bool            { return e&PageFaultWrite != 0 }
func (e PageFaultError) User() bool             { return e&PageFaultUser != 0 }
func (e PageFaultError) Reserved() bool         { return e&PageFaultReserved != 0 }
func (e PageFaultError) InstructionFetch() bool { return e&PageFaultInstructionFetch != 0 }

// Reason returns a short description of the fault.
func (e PageFaultError) Reason() string {
	switch {
	case e.Reserved():
		return "page table has reserved bit set"
	case e.InstructionFetch():
		return "instruction fetch"
	case e.User() && !e.Present():
		return "page-fault in user-mode"
	case e&(PageFaultPresent|PageFaultWrite) == 0:
		return "read from non-present page"
	case e&(PageFaultPresent|PageFaultWrite) == PageFaultPresent:
		return "page protection violation (read)"
	case e&(PageFaultPresent|PageFaultWrite) == PageFaultWrite:
		return "write to non-present page"
	default:
		return "page protection violation (write)"
	}
}

// SelectorError is the error code pushed by the segment related exceptions
// (#TS, #NP, #SS, #GP). A zero value means the fault did not relate to a
// particular descriptor.
type SelectorError uint32

// External returns true if the fault was raised while delivering an
// external event.
func (e SelectorError) External() bool { return e&1 != 0 }

// IDT returns true if Index refers to a gate of the IDT.
func (e SelectorError) IDT() bool { return e&2 != 0 }

// Index returns the descriptor index that caused the fault.
func (e SelectorError) Index() uint32 { return uint32(e) >> 3 }
