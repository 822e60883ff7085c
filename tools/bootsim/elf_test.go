package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

const (
	testKernelVaddr = 0xc0102000
	testKernelPaddr = 0x102000
)

// testCode holds ud2; hlt; jmp $; nop padding.
var testCode = []byte{0x0f, 0x0b, 0xf4, 0xeb, 0xfe, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90}

var testSymbols = map[string]uint32{
	"__kernel_start": 0xc0102000,
	"__kernel_end":   0xc0104000,
	"__init_hhk_end": 0x101000,
	"_k_stack":       0xc0104000,
}

func align4(v uint32) uint32 {
	return (v + 3) &^ 3
}

// writeTestKernel writes a minimal 32-bit x86 ELF executable with a single
// loadable segment holding code at testKernelVaddr and a symbol table with
// the supplied absolute symbols. It returns the path to the image.
func writeTestKernel(t *testing.T, code []byte, memsz uint32, symbols map[string]uint32) string {
	t.Helper()

	const (
		ehdrSize = 52
		phdrSize = 32
		shdrSize = 40
		symSize  = 16
	)

	names := make([]string, 0, len(symbols))
	for name := range symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		strtab   = []byte{0}
		syms     = []elf.Sym32{{}}
		shstrtab = []byte("\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00")
	)
	for _, name := range names {
		syms = append(syms, elf.Sym32{
			Name:  uint32(len(strtab)),
			Value: symbols[name],
			Info:  elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE),
			Shndx: uint16(elf.SHN_ABS),
		})
		strtab = append(strtab, name...)
		strtab = append(strtab, 0)
	}

	var (
		textOff     = uint32(ehdrSize + phdrSize)
		strtabOff   = align4(textOff + uint32(len(code)))
		symtabOff   = align4(strtabOff + uint32(len(strtab)))
		shstrtabOff = symtabOff + uint32(len(syms))*symSize
		shOff       = align4(shstrtabOff + uint32(len(shstrtab)))
		img         = make([]byte, shOff+5*shdrSize)
	)

	place := func(off uint32, v interface{}) {
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
		copy(img[off:], buf.Bytes())
	}

	place(0, elf.Header32{
		Ident:     [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS32), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)},
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_386),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     testKernelVaddr,
		Phoff:     ehdrSize,
		Shoff:     shOff,
		Ehsize:    ehdrSize,
		Phentsize: phdrSize,
		Phnum:     1,
		Shentsize: shdrSize,
		Shnum:     5,
		Shstrndx:  4,
	})
	place(ehdrSize, elf.Prog32{
		Type:   uint32(elf.PT_LOAD),
		Off:    textOff,
		Vaddr:  testKernelVaddr,
		Paddr:  testKernelPaddr,
		Filesz: uint32(len(code)),
		Memsz:  memsz,
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Align:  0x1000,
	})
	place(textOff, code)
	place(strtabOff, strtab)
	place(symtabOff, syms)
	place(shstrtabOff, shstrtab)
	place(shOff, []elf.Section32{
		{},
		{Name: 1, Type: uint32(elf.SHT_PROGBITS), Flags: uint32(elf.SHF_ALLOC | elf.SHF_EXECINSTR), Addr: testKernelVaddr, Off: textOff, Size: uint32(len(code)), Addralign: 16},
		{Name: 7, Type: uint32(elf.SHT_SYMTAB), Off: symtabOff, Size: uint32(len(syms)) * symSize, Link: 3, Info: 1, Addralign: 4, Entsize: symSize},
		{Name: 15, Type: uint32(elf.SHT_STRTAB), Off: strtabOff, Size: uint32(len(strtab)), Addralign: 1},
		{Name: 23, Type: uint32(elf.SHT_STRTAB), Off: shstrtabOff, Size: uint32(len(shstrtab)), Addralign: 1},
	})

	path := filepath.Join(t.TempDir(), "kernel.elf")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}
