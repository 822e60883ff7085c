// Package gdt builds the global descriptor table that defines the kernel's
// flat protected-mode memory model.
package gdt

import (
	"unsafe"

	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/kfmt"
)

// Selector is a segment selector: a descriptor index shifted left by 3 with
// the requested privilege level in the low two bits.
type Selector uint16

// Selectors for the entries of the table built by Build.
const (
	NullSelector       Selector = 0x00
	KernelCodeSelector Selector = 0x08
	KernelDataSelector Selector = 0x10
	UserCodeSelector   Selector = 0x18 | 3
	UserDataSelector   Selector = 0x20 | 3
)

// Index returns the descriptor index referenced by the selector.
func (s Selector) Index() int { return int(s >> 3) }

// RPL returns the requested privilege level of the selector.
func (s Selector) RPL() uint8 { return uint8(s & 3) }

// Segment types for code/data descriptors.
const (
	TypeDataRW     = 0x02
	TypeCodeExecRD = 0x0a
)

// Bit helpers for the upper dword of a descriptor.
func sdType(x uint64) uint64     { return x << 8 }
func sdCodeData(x uint64) uint64 { return x << 12 }
func sdDPL(x uint64) uint64      { return x << 13 }
func sdPresent(x uint64) uint64  { return x << 15 }
func sdAVL(x uint64) uint64      { return x << 20 }
func sdLong(x uint64) uint64     { return x << 21 }
func sdBig(x uint64) uint64      { return x << 22 }
func sdGran4K(x uint64) uint64   { return x << 23 }

// segmentFlags returns the flags of a present, 32-bit, 4 KiB granular
// code or data segment.
func segmentFlags(segType, dpl uint64) uint64 {
	return sdType(segType) | sdCodeData(1) | sdDPL(dpl) | sdPresent(1) |
		sdAVL(0) | sdLong(0) | sdBig(1) | sdGran4K(1)
}

// maxLimit is the largest 20-bit segment limit. With 4 KiB granularity it
// covers the full 4 GiB address space.
const maxLimit = 0xfffff

// Descriptor is an 8-byte segment descriptor.
type Descriptor uint64

// NewDescriptor encodes a segment descriptor. flags holds the bits of the
// upper dword that are not part of the base or limit.
func NewDescriptor(base, limit uint32, flags uint64) Descriptor {
	b, l := uint64(base), uint64(limit)

	hi := (b & 0xff000000) | flags | (l & 0xf0000) | ((b & 0x00ff0000) >> 16)
	lo := (b&0x0000ffff)<<16 | (l & 0x0ffff)

	return Descriptor(hi<<32 | lo)
}

func (d Descriptor) high() uint32 { return uint32(d >> 32) }
func (d Descriptor) low() uint32  { return uint32(d) }

// Base returns the linear base address of the segment.
func (d Descriptor) Base() uint32 {
	return d.low()>>16 | (d.high()&0xff)<<16 | d.high()&0xff000000
}

// Limit returns the address of the last byte of the segment relative to its
// base, with the granularity applied.
func (d Descriptor) Limit() uint32 {
	raw := d.low()&0xffff | d.high()&0xf0000
	if d.Granularity4K() {
		return raw<<12 | 0xfff
	}
	return raw
}

// Granularity4K returns true if the limit is expressed in 4 KiB units.
func (d Descriptor) Granularity4K() bool { return d.high()&(1<<23) != 0 }

// DPL returns the descriptor privilege level.
func (d Descriptor) DPL() uint8 { return uint8(d.high()>>13) & 3 }

// Present returns true if the present bit is set.
func (d Descriptor) Present() bool { return d.high()&(1<<15) != 0 }

// IsCode returns true for a code segment descriptor.
func (d Descriptor) IsCode() bool {
	return d.high()&(1<<12) != 0 && d.high()&(1<<11) != 0
}

// Type returns the 4-bit segment type.
func (d Descriptor) Type() uint8 { return uint8(d.high()>>8) & 0xf }

// EntryCount is the number of descriptors in the table.
const EntryCount = 5

// Table is the global descriptor table. The processor keeps referencing a
// loaded table by its linear address, so a Table that gets loaded must live
// in static storage (a package-level variable) and must not be copied.
type Table struct {
	entries [EntryCount]Descriptor
}

// Build fills t with the flat table: null, ring-0 code, ring-0 data, ring-3
// code and ring-3 data. Every non-null segment has base 0 and spans 4 GiB.
func Build(t *Table) {
	t.entries[NullSelector.Index()] = NewDescriptor(0, 0, 0)
	t.entries[KernelCodeSelector.Index()] = NewDescriptor(0, maxLimit, segmentFlags(TypeCodeExecRD, 0))
	t.entries[KernelDataSelector.Index()] = NewDescriptor(0, maxLimit, segmentFlags(TypeDataRW, 0))
	t.entries[UserCodeSelector.Index()] = NewDescriptor(0, maxLimit, segmentFlags(TypeCodeExecRD, 3))
	t.entries[UserDataSelector.Index()] = NewDescriptor(0, maxLimit, segmentFlags(TypeDataRW, 3))
}

// Entry returns the descriptor referenced by sel.
func (t *Table) Entry(sel Selector) Descriptor {
	return t.entries[sel.Index()]
}

// Pointer returns the operand for the LGDT instruction. The base is only
// meaningful while t stays at its current address.
func (t *Table) Pointer() cpu.DescriptorTablePointer {
	return cpu.DescriptorTablePointer{
		Limit: uint16(unsafe.Sizeof(t.entries)) - 1,
		Base:  uintptr(unsafe.Pointer(&t.entries[0])),
	}
}

// Load installs the table and reloads the segment registers with the kernel
// selectors.
func (t *Table) Load(ops cpu.DescriptorTables) {
	ops.LoadGDT(t.Pointer())
	ops.ReloadSegments(uint16(KernelCodeSelector), uint16(KernelDataSelector))

	kfmt.Fprintf(logger, "loaded %d descriptors (cs=0x%2x, ds=0x%2x)\n", EntryCount, uint16(KernelCodeSelector), uint16(KernelDataSelector))
}

var logger = &kfmt.PrefixWriter{Sink: kfmt.Output, Prefix: []byte("[gdt] ")}
