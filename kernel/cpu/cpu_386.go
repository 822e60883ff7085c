package cpu

// Native drives the processor the kernel is running on. It is stateless; all
// methods are thin wrappers around the assembly routines in cpu_386.s.
type Native struct{}

// Default returns the privileged-operations backend for this platform.
func Default() Ops { return Native{} }

func (Native) ReadCR0() uint32             { return readCR0() }
func (Native) WriteCR0(val uint32)         { writeCR0(val) }
func (Native) ReadCR2() uint32             { return readCR2() }
func (Native) ReadCR3() uint32             { return readCR3() }
func (Native) WriteCR3(pdtPhysAddr uint32) { writeCR3(pdtPhysAddr) }

func (Native) LoadGDT(ptr DescriptorTablePointer) { loadGDT(ptr.Base, ptr.Limit) }
func (Native) LoadIDT(ptr DescriptorTablePointer) { loadIDT(ptr.Base, ptr.Limit) }

func (Native) ReloadSegments(codeSel, dataSel uint16) { reloadSegments(codeSel, dataSel) }

func (Native) EnableInterrupts()       { enableInterrupts() }
func (Native) DisableInterrupts()      { disableInterrupts() }
func (Native) InterruptsEnabled() bool { return readEFlags()&EFlagsInterrupt != 0 }
func (Native) Halt()                   { halt() }

func (Native) PortReadByte(port uint16) uint8         { return portReadByte(port) }
func (Native) PortReadWord(port uint16) uint16        { return portReadWord(port) }
func (Native) PortReadDword(port uint16) uint32       { return portReadDword(port) }
func (Native) PortWriteByte(port uint16, val uint8)   { portWriteByte(port, val) }
func (Native) PortWriteWord(port uint16, val uint16)  { portWriteWord(port, val) }
func (Native) PortWriteDword(port uint16, val uint32) { portWriteDword(port, val) }

func readCR0() uint32
func writeCR0(val uint32)
func readCR2() uint32
func readCR3() uint32
func writeCR3(val uint32)
func readEFlags() uint32

func loadGDT(base uintptr, limit uint16)
func loadIDT(base uintptr, limit uint16)
func reloadSegments(codeSel, dataSel uint16)

func enableInterrupts()
func disableInterrupts()
func halt()

func portReadByte(port uint16) uint8
func portReadWord(port uint16) uint16
func portReadDword(port uint16) uint32
func portWriteByte(port uint16, val uint8)
func portWriteWord(port uint16, val uint16)
func portWriteDword(port uint16, val uint32)
