// Package multiboot provides access to the multiboot (v1) information record
// that the bootloader passes to the kernel and the relocator that moves it,
// together with its memory map and drive table, into kernel-owned memory.
package multiboot

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/ParrotXray/CureOS/kernel/mm"
)

// BootloaderMagic is the value a compliant bootloader leaves in EAX.
const BootloaderMagic = uint32(0x2BADB002)

// InfoSize is the size in bytes of the fixed part of the information record.
const InfoSize = 120

// Flag describes a bit of the Info.Flags field. Each bit marks a group of
// fields as valid.
type Flag uint32

const (
	// FlagMemory marks MemLower and MemUpper as valid.
	FlagMemory Flag = 1 << iota

	// FlagBootDevice marks BootDevice as valid.
	FlagBootDevice

	// FlagCmdLine marks CmdLine as a pointer to a NUL-terminated string.
	FlagCmdLine

	// FlagModules marks ModsCount and ModsAddr as valid.
	FlagModules

	// FlagAoutSyms marks Syms as an a.out symbol table.
	FlagAoutSyms

	// FlagElfSections marks Syms as an ELF section header table.
	FlagElfSections

	// FlagMemMap marks MmapLength and MmapAddr as valid.
	FlagMemMap

	// FlagDriveInfo marks DrivesLength and DrivesAddr as valid.
	FlagDriveInfo

	// FlagConfigTable marks ConfigTable as valid.
	FlagConfigTable

	// FlagBootLoaderName marks BootLoaderName as a pointer to a
	// NUL-terminated string.
	FlagBootLoaderName

	// FlagAPMTable marks APMTable as valid.
	FlagAPMTable

	// FlagVBE marks the VBE fields as valid.
	FlagVBE

	// FlagFramebuffer marks the framebuffer fields as valid.
	FlagFramebuffer
)

// Info is the fixed part of the multiboot information record. The layout
// matches the bootloader's byte for byte; the record is interpreted by field
// offset so fields must never be reordered.
type Info struct {
	Flags Flag

	// Amount of lower and upper memory in KiB.
	MemLower uint32
	MemUpper uint32

	BootDevice uint32
	CmdLine    uint32

	ModsCount uint32
	ModsAddr  uint32

	// Syms holds either the a.out symbol table or the ELF section header
	// table, depending on Flags.
	Syms [4]uint32

	MmapLength uint32
	MmapAddr   uint32

	DrivesLength uint32
	DrivesAddr   uint32

	ConfigTable    uint32
	BootLoaderName uint32
	APMTable       uint32

	VBEControlInfo  uint32
	VBEModeInfo     uint32
	VBEMode         uint16
	VBEInterfaceSeg uint16
	VBEInterfaceOff uint16
	VBEInterfaceLen uint16

	FramebufferAddr   uint64
	FramebufferPitch  uint32
	FramebufferWidth  uint32
	FramebufferHeight uint32
	FramebufferBpp    uint8
	FramebufferType   uint8
	_                 [2]byte

	// ColorInfo holds either the palette descriptor or the RGB field
	// layout, depending on FramebufferType.
	ColorInfo [8]byte
}

// Both array lengths must be zero; the build fails if Info drifts from the
// bootloader's layout.
var (
	_ [InfoSize - unsafe.Sizeof(Info{})]byte
	_ [unsafe.Sizeof(Info{}) - InfoSize]byte
	_ [unsafe.Offsetof(Info{}.MmapAddr) - 48]byte
	_ [48 - unsafe.Offsetof(Info{}.MmapAddr)]byte
	_ [unsafe.Offsetof(Info{}.DrivesAddr) - 56]byte
	_ [56 - unsafe.Offsetof(Info{}.DrivesAddr)]byte
	_ [unsafe.Offsetof(Info{}.FramebufferAddr) - 88]byte
	_ [88 - unsafe.Offsetof(Info{}.FramebufferAddr)]byte
)

// Byte offsets of the pointer fields rewritten by Relocate.
const (
	offsetCmdLine        = 16
	offsetMmapAddr       = 48
	offsetDrivesAddr     = 56
	offsetBootLoaderName = 64
)

// InfoAt returns an Info overlaying the record at addr, or nil if mem does
// not back the full record.
func InfoAt(mem mm.PhysMem, addr mm.PhysAddr) *Info {
	b := mem.Bytes(addr, InfoSize)
	if b == nil {
		return nil
	}

	return (*Info)(unsafe.Pointer(&b[0]))
}

// HasFlags returns true if all of the supplied flags are set.
func (i *Info) HasFlags(flags Flag) bool {
	return i.Flags&flags == flags
}

// FramebufferType describes how the framebuffer should be interpreted.
type FramebufferType uint8

const (
	// FramebufferTypeIndexed uses a palette to define the colors.
	FramebufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB defines colors by their red, green and blue
	// components.
	FramebufferTypeRGB

	// FramebufferTypeEGA is a text-mode framebuffer whose width and height
	// are measured in characters.
	FramebufferTypeEGA
)

// TextFramebuffer returns the location and character dimensions of the
// text-mode framebuffer. The last result is false when the bootloader did
// not report one or set up a graphics mode instead.
func (i *Info) TextFramebuffer() (addr mm.PhysAddr, width, height uint16, ok bool) {
	if !i.HasFlags(FlagFramebuffer) || FramebufferType(i.FramebufferType) != FramebufferTypeEGA {
		return 0, 0, 0, false
	}

	if i.FramebufferAddr > 0xffffffff || i.FramebufferWidth > 0xffff || i.FramebufferHeight > 0xffff {
		return 0, 0, 0, false
	}

	return mm.PhysAddr(i.FramebufferAddr), uint16(i.FramebufferWidth), uint16(i.FramebufferHeight), true
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// MemBad marks defective RAM.
	MemBad

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	case MemBad:
		return "bad"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// mmapEntrySize is the size of a memory map entry excluding its leading
// size field.
const mmapEntrySize = 20

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region provided by the boot loader. The
// visitor must return true to continue or false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// VisitMemRegions invokes visitor for each entry in the memory map of info.
// Entries with unknown types are reported as MemReserved. Nothing is visited
// if the memory map flag is unset.
func VisitMemRegions(mem mm.PhysMem, info *Info, visitor MemRegionVisitor) {
	if !info.HasFlags(FlagMemMap) || info.MmapLength == 0 {
		return
	}

	data := mem.Bytes(mm.PhysAddr(info.MmapAddr), info.MmapLength)
	if data == nil {
		return
	}

	var entry MemoryMapEntry
	for len(data) >= 4 {
		// The size field does not count itself.
		size := binary.LittleEndian.Uint32(data)
		if size < mmapEntrySize || uint64(size)+4 > uint64(len(data)) {
			return
		}

		entry.PhysAddress = binary.LittleEndian.Uint64(data[4:])
		entry.Length = binary.LittleEndian.Uint64(data[12:])
		entry.Type = MemoryEntryType(binary.LittleEndian.Uint32(data[20:]))
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(&entry) {
			return
		}

		data = data[size+4:]
	}
}

// maxDrivePorts bounds the number of I/O ports recorded per drive.
const maxDrivePorts = 16

// Drive describes an entry of the BIOS drive table.
type Drive struct {
	// BIOS drive number.
	Number uint8

	// Mode is 0 for CHS and 1 for LBA access.
	Mode uint8

	Cylinders uint16
	Heads     uint8
	Sectors   uint8

	ports     [maxDrivePorts]uint16
	portCount int
}

// Ports returns the I/O ports used by the drive.
func (d *Drive) Ports() []uint16 {
	return d.ports[:d.portCount]
}

// driveHeaderSize is the size of a drive entry up to its port list.
const driveHeaderSize = 10

// DriveVisitor is invoked by VisitDrives for each drive table entry. It must
// return true to continue or false to abort the scan.
type DriveVisitor func(drive *Drive) bool

// VisitDrives invokes visitor for each entry in the drive table of info.
func VisitDrives(mem mm.PhysMem, info *Info, visitor DriveVisitor) {
	if !info.HasFlags(FlagDriveInfo) || info.DrivesLength == 0 {
		return
	}

	data := mem.Bytes(mm.PhysAddr(info.DrivesAddr), info.DrivesLength)
	if data == nil {
		return
	}

	var drive Drive
	for len(data) >= driveHeaderSize {
		// Unlike memory map entries, the size field counts itself.
		size := binary.LittleEndian.Uint32(data)
		if size < driveHeaderSize || uint64(size) > uint64(len(data)) {
			return
		}

		drive.Number = data[4]
		drive.Mode = data[5]
		drive.Cylinders = binary.LittleEndian.Uint16(data[6:])
		drive.Heads = data[8]
		drive.Sectors = data[9]

		drive.portCount = 0
		for off := uint32(driveHeaderSize); off+2 <= size && drive.portCount < maxDrivePorts; off += 2 {
			port := binary.LittleEndian.Uint16(data[off:])
			if port == 0 {
				break
			}
			drive.ports[drive.portCount] = port
			drive.portCount++
		}

		if !visitor(&drive) {
			return
		}

		data = data[size:]
	}
}

// maxStringLen bounds the scan for the terminator of bootloader strings.
const maxStringLen = mm.PageSize

// cStringLen returns the length of the NUL-terminated string at addr, not
// counting the terminator. It returns false if the string is unreadable or
// unterminated.
func cStringLen(mem mm.PhysMem, addr uint32) (uint32, bool) {
	for n := uint32(0); n < maxStringLen; n++ {
		b := mem.Bytes(mm.PhysAddr(addr+n), 1)
		if b == nil {
			return 0, false
		}

		if b[0] == 0 {
			return n, true
		}
	}

	return 0, false
}

// cString returns the bytes of the NUL-terminated string at addr without the
// terminator. It returns nil if no non-empty string can be read at addr.
func cString(mem mm.PhysMem, addr uint32) []byte {
	n, ok := cStringLen(mem, addr)
	if !ok || n == 0 {
		return nil
	}

	return mem.Bytes(mm.PhysAddr(addr), n)
}

// CmdLine returns the kernel command line or nil if the bootloader did not
// supply one. The returned slice aliases the record's memory.
func CmdLine(mem mm.PhysMem, info *Info) []byte {
	if !info.HasFlags(FlagCmdLine) {
		return nil
	}
	return cString(mem, info.CmdLine)
}

// BootLoaderName returns the name of the bootloader or nil if not supplied.
func BootLoaderName(mem mm.PhysMem, info *Info) []byte {
	if !info.HasFlags(FlagBootLoaderName) {
		return nil
	}
	return cString(mem, info.BootLoaderName)
}

// CmdLineArgVisitor is invoked for each space-separated argument of the
// command line. A bare word "foo" is reported with value "foo". The slices
// alias the record's memory. Returning false stops the walk.
type CmdLineArgVisitor func(key, value []byte) bool

// VisitCmdLineArgs invokes visitor for each argument of the kernel command
// line without allocating, so it can run before the Go allocator is usable.
func VisitCmdLineArgs(mem mm.PhysMem, info *Info, visitor CmdLineArgVisitor) {
	line := CmdLine(mem, info)

	for len(line) > 0 {
		for len(line) > 0 && isSpace(line[0]) {
			line = line[1:]
		}

		end := 0
		for end < len(line) && !isSpace(line[end]) {
			end++
		}
		if end == 0 {
			return
		}

		arg := line[:end]
		line = line[end:]

		key, value := arg, arg
		if sep := bytes.IndexByte(arg, '='); sep != -1 {
			key, value = arg[:sep], arg[sep+1:]
		}

		if !visitor(key, value) {
			return
		}
	}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// CmdLineArgs returns the command line key-value pairs passed to the kernel.
// A bare word "foo" is returned as foo=foo. This function must only be
// invoked once the Go allocator is usable.
func CmdLineArgs(mem mm.PhysMem, info *Info) map[string]string {
	kv := make(map[string]string)

	VisitCmdLineArgs(mem, info, func(key, value []byte) bool {
		kv[string(key)] = string(value)
		return true
	})

	return kv
}
