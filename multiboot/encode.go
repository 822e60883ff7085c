package multiboot

import (
	"encoding/binary"
	"unsafe"

	"github.com/ParrotXray/CureOS/kernel/mm"
)

// The helpers in this file produce records the way a bootloader lays them
// out. They are used by hosted tools that emulate the bootloader.

// WriteInfo stores info at addr. It returns false if mem does not back the
// full record.
func WriteInfo(mem mm.PhysMem, addr mm.PhysAddr, info *Info) bool {
	dst := mem.Bytes(addr, InfoSize)
	if dst == nil {
		return false
	}

	copy(dst, (*[InfoSize]byte)(unsafe.Pointer(info))[:])
	return true
}

// AppendMemoryMapEntry appends the encoding of entry to buf.
func AppendMemoryMapEntry(buf []byte, entry MemoryMapEntry) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, mmapEntrySize)
	buf = binary.LittleEndian.AppendUint64(buf, entry.PhysAddress)
	buf = binary.LittleEndian.AppendUint64(buf, entry.Length)
	return binary.LittleEndian.AppendUint32(buf, uint32(entry.Type))
}

// AppendDrive appends a drive table entry to buf. The port list is written
// with its zero terminator.
func AppendDrive(buf []byte, number, mode uint8, cylinders uint16, heads, sectors uint8, ports ...uint16) []byte {
	size := uint32(driveHeaderSize + 2*(len(ports)+1))

	buf = binary.LittleEndian.AppendUint32(buf, size)
	buf = append(buf, number, mode)
	buf = binary.LittleEndian.AppendUint16(buf, cylinders)
	buf = append(buf, heads, sectors)
	for _, port := range ports {
		buf = binary.LittleEndian.AppendUint16(buf, port)
	}
	return binary.LittleEndian.AppendUint16(buf, 0)
}
