package main

import (
	"errors"
	"fmt"

	"github.com/ParrotXray/CureOS/kernel/mm"
	"github.com/ParrotXray/CureOS/multiboot"
)

// Placement of the multiboot record built for the guest. The bootloader is
// free to put it anywhere; conventional memory below the EBDA is used here.
const (
	infoAddr       = mm.PhysAddr(0x90000)
	mmapAddr       = infoAddr + 0x100
	cmdLineAddr    = infoAddr + 0x400
	loaderNameAddr = infoAddr + 0xc00
	maxCmdLineLen  = int(loaderNameAddr-cmdLineAddr) - 1

	// ebdaStart is where the extended BIOS data area begins on a PC.
	ebdaStart = 0x9fc00

	// biosROMStart and biosROMEnd bound the system BIOS shadow.
	biosROMStart = 0xf0000
	biosROMEnd   = 0x100000
)

const loaderName = "bootsim"

var errCmdLineTooLong = errors.New("command line too long")

// memoryMap returns the memory map a PC BIOS reports for size bytes of RAM.
func memoryMap(size uint32) []multiboot.MemoryMapEntry {
	return []multiboot.MemoryMapEntry{
		{PhysAddress: 0, Length: ebdaStart, Type: multiboot.MemAvailable},
		{PhysAddress: ebdaStart, Length: 0xa0000 - ebdaStart, Type: multiboot.MemReserved},
		{PhysAddress: biosROMStart, Length: biosROMEnd - biosROMStart, Type: multiboot.MemReserved},
		{PhysAddress: biosROMEnd, Length: uint64(size) - biosROMEnd, Type: multiboot.MemAvailable},
	}
}

// writeBootInfo populates guest memory with the multiboot record a
// bootloader would hand over: basic memory sizes, a memory map, the boot
// loader name and, if not empty, the command line.
func writeBootInfo(mem *mm.Region, cmdLine string) error {
	if len(cmdLine) > maxCmdLineLen {
		return errCmdLineTooLong
	}

	var mmap []byte
	for _, entry := range memoryMap(uint32(len(mem.Mem))) {
		mmap = multiboot.AppendMemoryMapEntry(mmap, entry)
	}

	info := multiboot.Info{
		Flags:          multiboot.FlagMemory | multiboot.FlagMemMap | multiboot.FlagBootLoaderName,
		MemLower:       ebdaStart >> 10,
		MemUpper:       (uint32(len(mem.Mem)) - biosROMEnd) >> 10,
		MmapLength:     uint32(len(mmap)),
		MmapAddr:       uint32(mmapAddr),
		BootLoaderName: uint32(loaderNameAddr),
	}

	if err := putBytes(mem, mmapAddr, mmap); err != nil {
		return err
	}

	if err := putBytes(mem, loaderNameAddr, append([]byte(loaderName), 0)); err != nil {
		return err
	}

	if cmdLine != "" {
		if err := putBytes(mem, cmdLineAddr, append([]byte(cmdLine), 0)); err != nil {
			return err
		}
		info.Flags |= multiboot.FlagCmdLine
		info.CmdLine = uint32(cmdLineAddr)
	}

	if !multiboot.WriteInfo(mem, infoAddr, &info) {
		return fmt.Errorf("multiboot record at 0x%x is outside guest memory", uint32(infoAddr))
	}

	return nil
}

func putBytes(mem mm.PhysMem, addr mm.PhysAddr, data []byte) error {
	dst := mem.Bytes(addr, uint32(len(data)))
	if dst == nil {
		return fmt.Errorf("range 0x%x-0x%x is outside guest memory", uint32(addr), uint32(addr)+uint32(len(data)))
	}

	copy(dst, data)
	return nil
}
