package multiboot

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ParrotXray/CureOS/kernel/mm"
)

const testDstAddr = testRegionBase + 0x1000

func TestRelocateMemoryMapOnly(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)

	// Two entries make up a 48-byte memory map.
	mmap := encodeMemoryMap(testMemoryMap[:2])
	if len(mmap) != 48 {
		t.Fatalf("expected a 48-byte memory map; got %d bytes", len(mmap))
	}
	put(t, mem, testMmapAddr, mmap)

	srcInfo := Info{
		Flags:      FlagMemory | FlagMemMap,
		MemLower:   639,
		MemUpper:   129920,
		MmapLength: uint32(len(mmap)),
		MmapAddr:   uint32(testMmapAddr),
	}
	WriteInfo(mem, testInfoAddr, &srcInfo)

	used, err := Relocate(mem, testInfoAddr, testDstAddr, 256, RelocateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if exp := uint32(InfoSize + 48); used != exp {
		t.Fatalf("expected Relocate to use %d bytes; used %d", exp, used)
	}

	dstInfo := InfoAt(mem, testDstAddr)
	if dstInfo.Flags != srcInfo.Flags {
		t.Fatalf("expected copied flags to be 0x%x; got 0x%x", srcInfo.Flags, dstInfo.Flags)
	}

	if exp := uint32(testDstAddr) + InfoSize; dstInfo.MmapAddr != exp {
		t.Fatalf("expected copied mmap_addr to be 0x%x; got 0x%x", exp, dstInfo.MmapAddr)
	}

	if got := mem.Bytes(testDstAddr+InfoSize, 48); !bytes.Equal(got, mmap) {
		t.Fatalf("expected relocated memory map bytes to match the original\nexp: %x\ngot: %x", mmap, got)
	}

	// Apart from the rewritten pointer the header must be identical.
	expHdr := srcInfo
	expHdr.MmapAddr = dstInfo.MmapAddr
	if *dstInfo != expHdr {
		t.Fatalf("expected relocated header\n%+v\ngot\n%+v", expHdr, *dstInfo)
	}

	// The relocated copy must be readable through its new pointers even
	// after the original is wiped.
	put(t, mem, testMmapAddr, make([]byte, len(mmap)))

	var visited int
	VisitMemRegions(mem, dstInfo, func(entry *MemoryMapEntry) bool {
		if *entry != testMemoryMap[visited] {
			t.Errorf("[entry %d] expected %v; got %v", visited, testMemoryMap[visited], *entry)
		}
		visited++
		return true
	})

	if visited != 2 {
		t.Fatalf("expected 2 entries in the relocated map; got %d", visited)
	}
}

func TestRelocateWithDrives(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)

	mmap := encodeMemoryMap(testMemoryMap)
	put(t, mem, testMmapAddr, mmap)

	drives := AppendDrive(nil, 0x80, 1, 1024, 16, 63, 0x1f0)
	put(t, mem, testDrivesAddr, drives)

	srcInfo := Info{
		Flags:        FlagMemMap | FlagDriveInfo,
		MmapLength:   uint32(len(mmap)),
		MmapAddr:     uint32(testMmapAddr),
		DrivesLength: uint32(len(drives)),
		DrivesAddr:   uint32(testDrivesAddr),
	}
	WriteInfo(mem, testInfoAddr, &srcInfo)

	used, err := Relocate(mem, testInfoAddr, testDstAddr, 1024, RelocateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if exp := uint32(InfoSize + len(mmap) + len(drives)); used != exp {
		t.Fatalf("expected Relocate to use %d bytes; used %d", exp, used)
	}

	dstInfo := InfoAt(mem, testDstAddr)
	if exp := uint32(testDstAddr) + InfoSize; dstInfo.MmapAddr != exp {
		t.Errorf("expected copied mmap_addr to be 0x%x; got 0x%x", exp, dstInfo.MmapAddr)
	}

	if exp := uint32(testDstAddr) + InfoSize + srcInfo.MmapLength; dstInfo.DrivesAddr != exp {
		t.Errorf("expected copied drives_addr to be 0x%x; got 0x%x", exp, dstInfo.DrivesAddr)
	}

	if got := mem.Bytes(mm.PhysAddr(dstInfo.DrivesAddr), uint32(len(drives))); !bytes.Equal(got, drives) {
		t.Errorf("expected relocated drive table bytes to match the original\nexp: %x\ngot: %x", drives, got)
	}
}

func TestRelocateSkipsMissingTails(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)

	// Stale pointers without their flags must be left alone.
	srcInfo := Info{
		Flags:        FlagMemory,
		MmapLength:   48,
		MmapAddr:     0xdead0000,
		DrivesLength: 16,
		DrivesAddr:   0xbeef0000,
	}
	WriteInfo(mem, testInfoAddr, &srcInfo)

	used, err := Relocate(mem, testInfoAddr, testDstAddr, InfoSize, RelocateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if used != InfoSize {
		t.Fatalf("expected Relocate to copy only the header; used %d bytes", used)
	}

	if got := InfoAt(mem, testDstAddr); *got != srcInfo {
		t.Fatalf("expected relocated header\n%+v\ngot\n%+v", srcInfo, *got)
	}
}

func TestRelocateOptionalSections(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)

	mmap := encodeMemoryMap(testMemoryMap[:1])
	put(t, mem, testMmapAddr, mmap)
	put(t, mem, testCmdAddr, []byte("irq=on\x00"))
	put(t, mem, testNameAddr, []byte("GRUB\x00"))

	srcInfo := Info{
		Flags:          FlagMemMap | FlagCmdLine | FlagBootLoaderName,
		MmapLength:     uint32(len(mmap)),
		MmapAddr:       uint32(testMmapAddr),
		CmdLine:        uint32(testCmdAddr),
		BootLoaderName: uint32(testNameAddr),
	}
	WriteInfo(mem, testInfoAddr, &srcInfo)

	t.Run("not requested", func(t *testing.T) {
		if _, err := Relocate(mem, testInfoAddr, testDstAddr, 1024, RelocateOptions{}); err != nil {
			t.Fatal(err)
		}

		dstInfo := InfoAt(mem, testDstAddr)
		if dstInfo.CmdLine != srcInfo.CmdLine || dstInfo.BootLoaderName != srcInfo.BootLoaderName {
			t.Fatal("expected string pointers to be copied verbatim when their sections are not requested")
		}
	})

	t.Run("requested", func(t *testing.T) {
		used, err := Relocate(mem, testInfoAddr, testDstAddr, 1024, RelocateOptions{Sections: FlagCmdLine | FlagBootLoaderName})
		if err != nil {
			t.Fatal(err)
		}

		if exp := uint32(InfoSize + len(mmap) + len("irq=on\x00") + len("GRUB\x00")); used != exp {
			t.Fatalf("expected Relocate to use %d bytes; used %d", exp, used)
		}

		dstInfo := InfoAt(mem, testDstAddr)
		if exp := uint32(testDstAddr) + InfoSize; dstInfo.MmapAddr != exp {
			t.Errorf("expected the memory map to stay at 0x%x; got 0x%x", exp, dstInfo.MmapAddr)
		}

		if exp := uint32(testDstAddr) + InfoSize + uint32(len(mmap)); dstInfo.CmdLine != exp {
			t.Errorf("expected cmdline to be relocated to 0x%x; got 0x%x", exp, dstInfo.CmdLine)
		}

		// Wipe the originals; the copy must still be readable.
		put(t, mem, testCmdAddr, make([]byte, 8))
		put(t, mem, testNameAddr, make([]byte, 8))

		if got := string(CmdLine(mem, dstInfo)); got != "irq=on" {
			t.Errorf("expected relocated cmdline %q; got %q", "irq=on", got)
		}

		if got := string(BootLoaderName(mem, dstInfo)); got != "GRUB" {
			t.Errorf("expected relocated boot loader name %q; got %q", "GRUB", got)
		}
	})
}

func TestRelocateErrors(t *testing.T) {
	t.Run("insufficient capacity", func(t *testing.T) {
		mem := mm.NewRegion(testRegionBase, testRegionSize)

		mmap := encodeMemoryMap(testMemoryMap)
		put(t, mem, testMmapAddr, mmap)
		WriteInfo(mem, testInfoAddr, &Info{
			Flags:      FlagMemMap,
			MmapLength: uint32(len(mmap)),
			MmapAddr:   uint32(testMmapAddr),
		})

		// Fill the destination with a pattern to detect partial writes.
		pattern := bytes.Repeat([]byte{0xaa}, 512)
		put(t, mem, testDstAddr, pattern)

		if _, err := Relocate(mem, testInfoAddr, testDstAddr, 256, RelocateOptions{}); err != ErrInsufficientCapacity {
			t.Fatalf("expected ErrInsufficientCapacity; got %v", err)
		}

		if got := mem.Bytes(testDstAddr, 512); !bytes.Equal(got, pattern) {
			t.Fatal("expected the destination to be left untouched")
		}
	})

	t.Run("destination not backed", func(t *testing.T) {
		mem := mm.NewRegion(testRegionBase, testRegionSize)
		WriteInfo(mem, testInfoAddr, &Info{})

		if _, err := Relocate(mem, testInfoAddr, mem.End()-64, 4096, RelocateOptions{}); err != ErrInsufficientCapacity {
			t.Fatalf("expected ErrInsufficientCapacity; got %v", err)
		}
	})

	t.Run("source not backed", func(t *testing.T) {
		mem := mm.NewRegion(testRegionBase, testRegionSize)

		if _, err := Relocate(mem, mem.End(), testDstAddr, 4096, RelocateOptions{}); err != ErrInfoUnreadable {
			t.Fatalf("expected ErrInfoUnreadable; got %v", err)
		}
	})

	t.Run("tail not backed", func(t *testing.T) {
		mem := mm.NewRegion(testRegionBase, testRegionSize)
		WriteInfo(mem, testInfoAddr, &Info{
			Flags:      FlagMemMap,
			MmapLength: 48,
			MmapAddr:   0xdead0000,
		})

		if _, err := Relocate(mem, testInfoAddr, testDstAddr, 4096, RelocateOptions{}); err != ErrTailUnreadable {
			t.Fatalf("expected ErrTailUnreadable; got %v", err)
		}

		if got := binary.LittleEndian.Uint32(mem.Bytes(testDstAddr, 4)); got != 0 {
			t.Fatal("expected the destination to be left untouched")
		}
	})
	t.Run("string tail not readable", func(t *testing.T) {
		specs := []struct {
			cmdLine uint32
			name    uint32
		}{
			// Unbacked command line.
			{0xfffff000, uint32(testNameAddr)},
			// Command line running into the end of memory.
			{uint32(testRegionBase) + testRegionSize - 4, uint32(testNameAddr)},
			// Unbacked boot loader name.
			{uint32(testCmdAddr), 0xfffff000},
		}

		for specIndex, spec := range specs {
			mem := mm.NewRegion(testRegionBase, testRegionSize)
			put(t, mem, testCmdAddr, []byte("vmm.tables=4\x00"))
			put(t, mem, testNameAddr, []byte("irq=on\x00"))
			put(t, mem, mm.PhysAddr(testRegionBase)+testRegionSize-4, []byte("abcd"))
			WriteInfo(mem, testInfoAddr, &Info{
				Flags:          FlagCmdLine | FlagBootLoaderName,
				CmdLine:        spec.cmdLine,
				BootLoaderName: spec.name,
			})

			_, err := Relocate(mem, testInfoAddr, testDstAddr, 4096, RelocateOptions{Sections: FlagCmdLine | FlagBootLoaderName})
			if err != ErrTailUnreadable {
				t.Errorf("[spec %d] expected ErrTailUnreadable; got %v", specIndex, err)
				continue
			}

			if got := binary.LittleEndian.Uint32(mem.Bytes(testDstAddr, 4)); got != 0 {
				t.Errorf("[spec %d] expected the destination to be left untouched", specIndex)
			}
		}
	})
}
