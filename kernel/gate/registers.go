package gate

import (
	"io"

	"github.com/ParrotXray/CureOS/kernel/kfmt"
)

// Registers contains a snapshot of all register values when an exception or
// interrupt occurs. The field order mirrors the stack built by the entry
// trampolines: the general purpose registers saved by PUSHAL, the vector and
// error code pushed by the trampoline and the return frame pushed by the CPU.
type Registers struct {
	EDI uint32
	ESI uint32
	EBP uint32

	// ESP holds the value of the stack pointer before PUSHAL ran; it is
	// ignored when the registers are restored.
	ESP uint32

	EBX uint32
	EDX uint32
	ECX uint32
	EAX uint32

	// Vector is the interrupt vector that fired.
	Vector uint32

	// ErrorCode holds the error code pushed by the CPU for the exceptions
	// that supply one (see HasErrorCode) and zero otherwise.
	ErrorCode uint32

	// The return frame used by IRETL
	EIP    uint32
	CS     uint32
	EFlags uint32

	// UserESP and UserSS are only pushed by the CPU when the interrupt
	// caused a privilege change.
	UserESP uint32
	UserSS  uint32
}

// FromUserMode returns true if the interrupted code ran in ring 3, in which
// case UserESP and UserSS are valid.
func (r *Registers) FromUserMode() bool {
	return r.CS&3 == 3
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "EAX = %8x EBX = %8x\n", r.EAX, r.EBX)
	kfmt.Fprintf(w, "ECX = %8x EDX = %8x\n", r.ECX, r.EDX)
	kfmt.Fprintf(w, "ESI = %8x EDI = %8x\n", r.ESI, r.EDI)
	kfmt.Fprintf(w, "EBP = %8x ESP = %8x\n", r.EBP, r.ESP)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "EIP = %8x CS  = %8x\n", r.EIP, r.CS)
	kfmt.Fprintf(w, "EFL = %8x\n", r.EFlags)
	if r.FromUserMode() {
		kfmt.Fprintf(w, "USP = %8x USS = %8x\n", r.UserESP, r.UserSS)
	}
}
