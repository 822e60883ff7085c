package kmain

import (
	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/mm"
	"github.com/ParrotXray/CureOS/kernel/mm/vmm"
	"github.com/ParrotXray/CureOS/multiboot"
)

// MaxKernelTables bounds the number of page tables that can be reserved for
// the kernel image so that the boot region stays within conventional memory.
const MaxKernelTables = 64

var errInvalidCmdLineValue = &kernel.Error{Module: "kmain", Message: "invalid command line value"}

// Config holds the boot options that can be tuned from the kernel command
// line.
type Config struct {
	// KernelTables is the number of page tables reserved for the kernel
	// image (vmm.tables=N). Each table maps 4 MiB.
	KernelTables uint32

	// PopulateDefaultGates binds vectors 32-255 to the default handler
	// (idt.defaults=on|off).
	PopulateDefaultGates bool

	// EnableInterrupts unmasks interrupts once the IDT is loaded
	// (irq=on|off).
	EnableInterrupts bool
}

// DefaultConfig returns the configuration used when the command line does not
// override anything.
func DefaultConfig() Config {
	return Config{
		KernelTables: vmm.DefaultKernelTables,
	}
}

// Set applies a single command line argument. Unknown keys are ignored so
// that options meant for other subsystems pass through.
func (cfg *Config) Set(key, value []byte) *kernel.Error {
	switch string(key) {
	case "vmm.tables":
		n, ok := parseUint(value)
		if !ok || n == 0 || n > MaxKernelTables {
			return errInvalidCmdLineValue
		}
		cfg.KernelTables = n
	case "idt.defaults":
		on, ok := parseSwitch(value)
		if !ok {
			return errInvalidCmdLineValue
		}
		cfg.PopulateDefaultGates = on
	case "irq":
		on, ok := parseSwitch(value)
		if !ok {
			return errInvalidCmdLineValue
		}
		cfg.EnableInterrupts = on
	}

	return nil
}

// ParseCmdLine applies the arguments of the command line stored in the
// multiboot record to cfg. It does not allocate.
func ParseCmdLine(mem mm.PhysMem, info *multiboot.Info, cfg *Config) *kernel.Error {
	var err *kernel.Error

	multiboot.VisitCmdLineArgs(mem, info, func(key, value []byte) bool {
		err = cfg.Set(key, value)
		return err == nil
	})

	return err
}

func parseUint(value []byte) (uint32, bool) {
	if len(value) == 0 || len(value) > 9 {
		return 0, false
	}

	var n uint32
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + uint32(ch-'0')
	}

	return n, true
}

func parseSwitch(value []byte) (bool, bool) {
	switch string(value) {
	case "on", "1", "true":
		return true, true
	case "off", "0", "false":
		return false, true
	}
	return false, false
}
