package kfmt

import (
	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests.
	cpuHaltFn = haltCPU

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

func haltCPU() {
	cpu.Default().Halt()
}

// Panic outputs the supplied error (if not nil) to the output sink and halts
// the CPU. Calls to Panic never return on real hardware.
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
