package multiboot

import (
	"encoding/binary"
	"unsafe"

	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/mm"
)

var (
	// ErrInsufficientCapacity is returned when the destination cannot hold
	// the record and all of the tails selected for relocation.
	ErrInsufficientCapacity = &kernel.Error{Module: "multiboot", Message: "relocation destination too small"}

	// ErrInfoUnreadable is returned when the source record is not backed by
	// memory.
	ErrInfoUnreadable = &kernel.Error{Module: "multiboot", Message: "boot info record not readable"}

	// ErrTailUnreadable is returned when a flagged tail points outside the
	// memory that can be read or, for strings, lacks a terminator.
	ErrTailUnreadable = &kernel.Error{Module: "multiboot", Message: "boot info tail not readable"}
)

// DefaultSections lists the tails relocated when no options are given: the
// memory map followed by the drive table.
const DefaultSections = FlagMemMap | FlagDriveInfo

// RelocateOptions configures Relocate.
type RelocateOptions struct {
	// Sections selects additional tails to copy. FlagCmdLine and
	// FlagBootLoaderName are recognized; they are placed after the memory
	// map and drive table so those keep their offsets.
	Sections Flag
}

// tail describes a variable-length block referenced by the record.
type tail struct {
	flag      Flag
	ptrOffset uint32
	src       uint32
	size      uint32
}

// maxTails is the number of tail kinds Relocate knows about.
const maxTails = 4

// Relocate copies the information record at src, and the tails it references,
// into the capacity bytes starting at dst. The header is copied byte for
// byte; each present tail is appended right after the previously copied data
// and the matching pointer field of the copy is rewritten to its new
// location. The memory map always comes first (at dst+InfoSize) and the drive
// table follows it. Tails whose flag is unset are skipped.
//
// Every size is computed up front: if the copy would not fit, nothing is
// written and ErrInsufficientCapacity is returned. On success Relocate returns
// the number of bytes used at dst.
func Relocate(mem mm.PhysMem, src, dst mm.PhysAddr, capacity uint32, opts RelocateOptions) (uint32, *kernel.Error) {
	srcHdr := mem.Bytes(src, InfoSize)
	if srcHdr == nil {
		return 0, ErrInfoUnreadable
	}
	info := (*Info)(unsafe.Pointer(&srcHdr[0]))

	var (
		tails     [maxTails]tail
		tailCount int
		required  = uint64(InfoSize)
	)

	addTail := func(flag Flag, ptrOffset, addr, size uint32) {
		tails[tailCount] = tail{flag: flag, ptrOffset: ptrOffset, src: addr, size: size}
		tailCount++
		required += uint64(size)
	}

	if info.HasFlags(FlagMemMap) {
		addTail(FlagMemMap, offsetMmapAddr, info.MmapAddr, info.MmapLength)
	}
	if info.HasFlags(FlagDriveInfo) {
		addTail(FlagDriveInfo, offsetDrivesAddr, info.DrivesAddr, info.DrivesLength)
	}
	addString := func(flag Flag, ptrOffset, addr uint32) bool {
		n, ok := cStringLen(mem, addr)
		if ok {
			addTail(flag, ptrOffset, addr, n+1)
		}
		return ok
	}

	if opts.Sections&FlagCmdLine != 0 && info.HasFlags(FlagCmdLine) {
		if !addString(FlagCmdLine, offsetCmdLine, info.CmdLine) {
			return 0, ErrTailUnreadable
		}
	}
	if opts.Sections&FlagBootLoaderName != 0 && info.HasFlags(FlagBootLoaderName) {
		if !addString(FlagBootLoaderName, offsetBootLoaderName, info.BootLoaderName) {
			return 0, ErrTailUnreadable
		}
	}

	if required > uint64(capacity) {
		return 0, ErrInsufficientCapacity
	}

	dstBuf := mem.Bytes(dst, uint32(required))
	if dstBuf == nil {
		return 0, ErrInsufficientCapacity
	}

	var srcBufs [maxTails][]byte
	for i := 0; i < tailCount; i++ {
		if tails[i].size == 0 {
			continue
		}
		if srcBufs[i] = mem.Bytes(mm.PhysAddr(tails[i].src), tails[i].size); srcBufs[i] == nil {
			return 0, ErrTailUnreadable
		}
	}

	dstBase := uintptr(unsafe.Pointer(&dstBuf[0]))
	cursor := kernel.Memcopy(uintptr(unsafe.Pointer(&srcHdr[0])), dstBase, InfoSize)

	for i := 0; i < tailCount; i++ {
		binary.LittleEndian.PutUint32(dstBuf[tails[i].ptrOffset:], uint32(dst)+uint32(cursor))
		if srcBufs[i] != nil {
			cursor += kernel.Memcopy(uintptr(unsafe.Pointer(&srcBufs[i][0])), dstBase+cursor, uintptr(tails[i].size))
		}
	}

	return uint32(cursor), nil
}
