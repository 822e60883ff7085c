package multiboot

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/ParrotXray/CureOS/kernel/mm"
)

const (
	testRegionBase = mm.PhysAddr(0x10000)
	testRegionSize = 0x4000
	testInfoAddr   = testRegionBase
	testMmapAddr   = testRegionBase + 0x200
	testDrivesAddr = testRegionBase + 0x400
	testCmdAddr    = testRegionBase + 0x600
	testNameAddr   = testRegionBase + 0x700
)

// testMemoryMap is the map QEMU reports for a 128 MiB guest.
var testMemoryMap = []MemoryMapEntry{
	{0, 654336, MemAvailable},
	{654336, 1024, MemReserved},
	{983040, 65536, MemReserved},
	{1048576, 133038080, MemAvailable},
	{134086656, 131072, MemReserved},
	{4294705152, 262144, MemReserved},
}

func encodeMemoryMap(entries []MemoryMapEntry) []byte {
	var buf []byte
	for _, entry := range entries {
		buf = AppendMemoryMapEntry(buf, entry)
	}
	return buf
}

func put(t *testing.T, mem mm.PhysMem, addr mm.PhysAddr, data []byte) {
	t.Helper()
	dst := mem.Bytes(addr, uint32(len(data)))
	if dst == nil {
		t.Fatalf("address 0x%x not backed by test region", addr)
	}
	copy(dst, data)
}

func TestInfoLayout(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)

	raw := mem.Bytes(testInfoAddr, InfoSize)
	binary.LittleEndian.PutUint32(raw[0:], uint32(FlagMemMap|FlagCmdLine))
	binary.LittleEndian.PutUint32(raw[4:], 639)
	binary.LittleEndian.PutUint32(raw[8:], 129920)
	binary.LittleEndian.PutUint32(raw[16:], 0xcafe)
	binary.LittleEndian.PutUint32(raw[44:], 144)
	binary.LittleEndian.PutUint32(raw[48:], 0x9000)
	binary.LittleEndian.PutUint32(raw[52:], 12)
	binary.LittleEndian.PutUint32(raw[56:], 0xa000)
	binary.LittleEndian.PutUint32(raw[64:], 0xb000)
	binary.LittleEndian.PutUint16(raw[80:], 0x117)
	binary.LittleEndian.PutUint64(raw[88:], 0xfd000000)
	binary.LittleEndian.PutUint32(raw[100:], 1024)
	raw[108] = 32
	raw[109] = 1
	raw[112] = 16

	info := InfoAt(mem, testInfoAddr)
	if info == nil {
		t.Fatal("expected InfoAt to return a record")
	}

	specs := []struct {
		name     string
		got, exp uint64
	}{
		{"Flags", uint64(info.Flags), uint64(FlagMemMap | FlagCmdLine)},
		{"MemLower", uint64(info.MemLower), 639},
		{"MemUpper", uint64(info.MemUpper), 129920},
		{"CmdLine", uint64(info.CmdLine), 0xcafe},
		{"MmapLength", uint64(info.MmapLength), 144},
		{"MmapAddr", uint64(info.MmapAddr), 0x9000},
		{"DrivesLength", uint64(info.DrivesLength), 12},
		{"DrivesAddr", uint64(info.DrivesAddr), 0xa000},
		{"BootLoaderName", uint64(info.BootLoaderName), 0xb000},
		{"VBEMode", uint64(info.VBEMode), 0x117},
		{"FramebufferAddr", info.FramebufferAddr, 0xfd000000},
		{"FramebufferWidth", uint64(info.FramebufferWidth), 1024},
		{"FramebufferBpp", uint64(info.FramebufferBpp), 32},
		{"FramebufferType", uint64(info.FramebufferType), 1},
		{"ColorInfo[0]", uint64(info.ColorInfo[0]), 16},
	}

	for specIndex, spec := range specs {
		if spec.got != spec.exp {
			t.Errorf("[spec %d] expected field %s to be 0x%x; got 0x%x", specIndex, spec.name, spec.exp, spec.got)
		}
	}

	if !info.HasFlags(FlagMemMap | FlagCmdLine) {
		t.Error("expected HasFlags to report both flags as set")
	}

	if info.HasFlags(FlagMemMap | FlagDriveInfo) {
		t.Error("expected HasFlags to return false when one of the flags is missing")
	}

	if InfoAt(mem, mem.End()-InfoSize+1) != nil {
		t.Error("expected InfoAt to return nil for a record crossing the end of memory")
	}
}

func TestWriteInfo(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)

	info := Info{Flags: FlagMemory, MemLower: 640, MemUpper: 0x1000}
	if !WriteInfo(mem, testInfoAddr, &info) {
		t.Fatal("expected WriteInfo to succeed")
	}

	if got := InfoAt(mem, testInfoAddr); *got != info {
		t.Fatalf("expected stored record to equal\n%+v\ngot\n%+v", info, *got)
	}

	if WriteInfo(mem, mem.End(), &info) {
		t.Fatal("expected WriteInfo to fail outside the backed region")
	}
}

func TestVisitMemRegions(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)
	mmap := encodeMemoryMap(testMemoryMap)

	// Patch the type of the first entry to a bogus value; it should be
	// reported as reserved.
	binary.LittleEndian.PutUint32(mmap[20:], 0xff)
	put(t, mem, testMmapAddr, mmap)

	info := &Info{MmapAddr: uint32(testMmapAddr), MmapLength: uint32(len(mmap))}

	var visitCount int
	VisitMemRegions(mem, info, func(_ *MemoryMapEntry) bool {
		visitCount++
		return true
	})

	if visitCount != 0 {
		t.Fatal("expected visitor not to be invoked when the memory map flag is unset")
	}

	info.Flags = FlagMemMap

	var got []MemoryMapEntry
	VisitMemRegions(mem, info, func(entry *MemoryMapEntry) bool {
		got = append(got, *entry)
		return true
	})

	exp := append([]MemoryMapEntry(nil), testMemoryMap...)
	exp[0].Type = MemReserved

	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("expected visited entries to be\n%v\ngot\n%v", exp, got)
	}

	t.Run("abort scan", func(t *testing.T) {
		visitCount = 0
		VisitMemRegions(mem, info, func(_ *MemoryMapEntry) bool {
			visitCount++
			return false
		})

		if visitCount != 1 {
			t.Fatalf("expected visitor to be invoked once; got %d", visitCount)
		}
	})

	t.Run("truncated map", func(t *testing.T) {
		truncated := *info
		truncated.MmapLength = 24 + 10

		visitCount = 0
		VisitMemRegions(mem, &truncated, func(_ *MemoryMapEntry) bool {
			visitCount++
			return true
		})

		if visitCount != 1 {
			t.Fatalf("expected only the complete entry to be visited; got %d visits", visitCount)
		}
	})
}

func TestMemoryEntryTypeString(t *testing.T) {
	specs := []struct {
		input MemoryEntryType
		exp   string
	}{
		{MemAvailable, "available"},
		{MemReserved, "reserved"},
		{MemAcpiReclaimable, "ACPI (reclaimable)"},
		{MemNvs, "NVS"},
		{MemBad, "bad"},
		{MemoryEntryType(123), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.input.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestVisitDrives(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)

	var drives []byte
	drives = AppendDrive(drives, 0x80, 1, 1024, 16, 63, 0x1f0, 0x3f6)
	drives = AppendDrive(drives, 0x81, 0, 80, 2, 18)
	put(t, mem, testDrivesAddr, drives)

	info := &Info{
		Flags:        FlagDriveInfo,
		DrivesAddr:   uint32(testDrivesAddr),
		DrivesLength: uint32(len(drives)),
	}

	type driveSummary struct {
		number, mode   uint8
		cylinders      uint16
		heads, sectors uint8
		ports          []uint16
	}

	var got []driveSummary
	VisitDrives(mem, info, func(d *Drive) bool {
		got = append(got, driveSummary{
			d.Number, d.Mode, d.Cylinders, d.Heads, d.Sectors,
			append([]uint16{}, d.Ports()...),
		})
		return true
	})

	exp := []driveSummary{
		{0x80, 1, 1024, 16, 63, []uint16{0x1f0, 0x3f6}},
		{0x81, 0, 80, 2, 18, []uint16{}},
	}

	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("expected visited drives to be\n%+v\ngot\n%+v", exp, got)
	}

	info.Flags = 0
	VisitDrives(mem, info, func(_ *Drive) bool {
		t.Fatal("expected visitor not to be invoked when the drive flag is unset")
		return false
	})
}

func TestCmdLine(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)
	put(t, mem, testCmdAddr, []byte("vmm.tables=4 irq=on quiet\x00"))
	put(t, mem, testNameAddr, []byte("GRUB 2.06\x00"))

	info := &Info{CmdLine: uint32(testCmdAddr), BootLoaderName: uint32(testNameAddr)}

	if got := CmdLine(mem, info); got != nil {
		t.Fatalf("expected nil command line when the flag is unset; got %q", got)
	}

	if got := len(CmdLineArgs(mem, info)); got != 0 {
		t.Fatalf("expected no args when the flag is unset; got %d", got)
	}

	info.Flags = FlagCmdLine | FlagBootLoaderName

	if got, exp := string(CmdLine(mem, info)), "vmm.tables=4 irq=on quiet"; got != exp {
		t.Fatalf("expected command line %q; got %q", exp, got)
	}

	if got, exp := string(BootLoaderName(mem, info)), "GRUB 2.06"; got != exp {
		t.Fatalf("expected boot loader name %q; got %q", exp, got)
	}

	expArgs := map[string]string{
		"vmm.tables": "4",
		"irq":        "on",
		"quiet":      "quiet",
	}

	if got := CmdLineArgs(mem, info); !reflect.DeepEqual(got, expArgs) {
		t.Fatalf("expected args %v; got %v", expArgs, got)
	}

	t.Run("unterminated string", func(t *testing.T) {
		tail := mem.End() - 4
		put(t, mem, tail, []byte("abcd"))

		if got := CmdLine(mem, &Info{Flags: FlagCmdLine, CmdLine: uint32(tail)}); got != nil {
			t.Fatalf("expected nil for an unterminated string; got %q", got)
		}
	})
}

func TestVisitCmdLineArgs(t *testing.T) {
	mem := mm.NewRegion(testRegionBase, testRegionSize)
	put(t, mem, testCmdAddr, []byte("  idt.defaults=on\tempty= a=b=c  \x00"))

	info := &Info{Flags: FlagCmdLine, CmdLine: uint32(testCmdAddr)}

	var got [][2]string
	VisitCmdLineArgs(mem, info, func(key, value []byte) bool {
		got = append(got, [2]string{string(key), string(value)})
		return true
	})

	exp := [][2]string{
		{"idt.defaults", "on"},
		{"empty", ""},
		{"a", "b=c"},
	}

	if !reflect.DeepEqual(got, exp) {
		t.Fatalf("expected args %v; got %v", exp, got)
	}

	t.Run("abort", func(t *testing.T) {
		var calls int
		VisitCmdLineArgs(mem, info, func(_, _ []byte) bool {
			calls++
			return false
		})

		if calls != 1 {
			t.Fatalf("expected visitor to be called once; got %d", calls)
		}
	})
}

func TestTextFramebuffer(t *testing.T) {
	specs := []struct {
		info      Info
		expOK     bool
		expAddr   mm.PhysAddr
		expWidth  uint16
		expHeight uint16
	}{
		{
			Info{Flags: FlagFramebuffer, FramebufferAddr: 0xb8000, FramebufferWidth: 80, FramebufferHeight: 25, FramebufferType: uint8(FramebufferTypeEGA)},
			true, 0xb8000, 80, 25,
		},
		// flag not set
		{
			Info{FramebufferAddr: 0xb8000, FramebufferWidth: 80, FramebufferHeight: 25, FramebufferType: uint8(FramebufferTypeEGA)},
			false, 0, 0, 0,
		},
		// graphics mode
		{
			Info{Flags: FlagFramebuffer, FramebufferAddr: 0xfd000000, FramebufferWidth: 1024, FramebufferHeight: 768, FramebufferType: uint8(FramebufferTypeRGB)},
			false, 0, 0, 0,
		},
		// above 4 GiB
		{
			Info{Flags: FlagFramebuffer, FramebufferAddr: 0x1000b8000, FramebufferWidth: 80, FramebufferHeight: 25, FramebufferType: uint8(FramebufferTypeEGA)},
			false, 0, 0, 0,
		},
	}

	for specIndex, spec := range specs {
		addr, width, height, ok := spec.info.TextFramebuffer()
		if ok != spec.expOK || addr != spec.expAddr || width != spec.expWidth || height != spec.expHeight {
			t.Errorf("[spec %d] expected (0x%x, %d, %d, %t); got (0x%x, %d, %d, %t)", specIndex, spec.expAddr, spec.expWidth, spec.expHeight, spec.expOK, addr, width, height, ok)
		}
	}
}
