package gate

import (
	"testing"
	"unsafe"

	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/gdt"
)

func TestNewGate(t *testing.T) {
	specs := []struct {
		gateType  GateType
		sel       gdt.Selector
		offset    uint32
		dpl       uint8
		exp       Gate
		expOffset uint32
	}{
		{InterruptGate, gdt.KernelCodeSelector, 0x12345678, 0, 0x12348e0000085678, 0x12345678},
		{TrapGate, gdt.KernelCodeSelector, 0xc0101234, 3, 0xc010ef0000081234, 0xc0101234},
		{TaskGate, gdt.Selector(0x28), 0, 0, 0x0000850000280000, 0},
	}

	for specIndex, spec := range specs {
		g := NewGate(spec.gateType, spec.sel, spec.offset, spec.dpl)
		if g != spec.exp {
			t.Errorf("[spec %d] expected gate 0x%016x; got 0x%016x", specIndex, uint64(spec.exp), uint64(g))
			continue
		}

		if !g.Present() {
			t.Errorf("[spec %d] expected gate to be present", specIndex)
		}

		if g.Type() != spec.gateType {
			t.Errorf("[spec %d] expected gate type %s; got %s", specIndex, spec.gateType, g.Type())
		}

		if g.Selector() != spec.sel {
			t.Errorf("[spec %d] expected selector 0x%x; got 0x%x", specIndex, spec.sel, g.Selector())
		}

		if g.DPL() != spec.dpl {
			t.Errorf("[spec %d] expected DPL %d; got %d", specIndex, spec.dpl, g.DPL())
		}

		if g.Offset() != spec.expOffset {
			t.Errorf("[spec %d] expected offset 0x%x; got 0x%x", specIndex, spec.expOffset, g.Offset())
		}
	}

	if Gate(0).Present() {
		t.Error("expected the zero gate to be absent")
	}
}

func TestGateTypeString(t *testing.T) {
	specs := []struct {
		input GateType
		exp   string
	}{
		{InterruptGate, "interrupt"},
		{TrapGate, "trap"},
		{TaskGate, "task"},
		{GateType(0), "invalid"},
	}

	for specIndex, spec := range specs {
		if got := spec.input.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

// loadedIDT is static like the table the kernel loads: Pointer records the
// address of the entries, which must not move between Pointer and Load.
var loadedIDT Table

func TestInstall(t *testing.T) {
	table := new(Table)

	for v := 0; v < EntryCount; v++ {
		if table.Entry(InterruptNumber(v)).Present() {
			t.Fatalf("expected vector %d to be absent before Install", v)
		}
	}

	table.Install(Config{})

	for v := 0; v < EntryCount; v++ {
		g := table.Entry(InterruptNumber(v))

		if v >= int(FirstUserVector) {
			if g.Present() {
				t.Errorf("expected vector %d to stay absent without PopulateDefault", v)
			}
			continue
		}

		if !g.Present() || g.Type() != InterruptGate {
			t.Errorf("expected vector %d to hold a present interrupt gate; got 0x%016x", v, uint64(g))
		}

		if g.Selector() != gdt.KernelCodeSelector || g.DPL() != 0 {
			t.Errorf("expected vector %d to enter ring 0 through the kernel code selector", v)
		}

		if exp := uint32(entryPoint(InterruptNumber(v))); g.Offset() != exp {
			t.Errorf("expected vector %d to point to 0x%x; got 0x%x", v, exp, g.Offset())
		}
	}

	t.Run("populate default", func(t *testing.T) {
		table := new(Table)
		table.Install(Config{PopulateDefault: true, CodeSelector: gdt.KernelCodeSelector})

		for v := 0; v < EntryCount; v++ {
			if !table.Entry(InterruptNumber(v)).Present() {
				t.Errorf("expected vector %d to be present", v)
			}
		}

		table.Install(Config{})
		for v := int(FirstUserVector); v < EntryCount; v++ {
			if table.Entry(InterruptNumber(v)).Present() {
				t.Errorf("expected a reinstall without PopulateDefault to clear vector %d", v)
			}
		}
	})
}

func TestSetGates(t *testing.T) {
	table := new(Table)

	table.SetTrapGate(0x80, gdt.KernelCodeSelector, 0xc0105000, 3)
	if g := table.Entry(0x80); g.Type() != TrapGate || g.DPL() != 3 || g.Offset() != 0xc0105000 {
		t.Errorf("unexpected trap gate 0x%016x", uint64(g))
	}

	table.SetTaskGate(DoubleFault, gdt.Selector(0x28), 0)
	if g := table.Entry(DoubleFault); g.Type() != TaskGate || g.Selector() != 0x28 {
		t.Errorf("unexpected task gate 0x%016x", uint64(g))
	}

	table.Clear(DoubleFault)
	if table.Entry(DoubleFault).Present() {
		t.Error("expected Clear to mark the gate absent")
	}
}

func TestPointerAndLoad(t *testing.T) {
	table := &loadedIDT
	table.Install(Config{})

	ptr := table.Pointer()
	if ptr.Limit != EntryCount*8-1 {
		t.Errorf("expected limit %d; got %d", EntryCount*8-1, ptr.Limit)
	}

	if exp := uintptr(unsafe.Pointer(&table.entries[0])); ptr.Base != exp {
		t.Errorf("expected base 0x%x; got 0x%x", exp, ptr.Base)
	}

	sim := cpu.NewSim()
	table.Load(sim)

	if sim.IDT != ptr {
		t.Errorf("expected the IDT pointer to be loaded; got %+v", sim.IDT)
	}
}
