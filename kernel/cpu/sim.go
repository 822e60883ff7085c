package cpu

// PortAccess records a single port write performed against a Sim.
type PortAccess struct {
	Port  uint16
	Width uint8
	Value uint32
}

// Sim is a simulated processor. It records every privileged operation so
// that tests and hosted tools can inspect the state the bootstrap code would
// have left in the real registers. Halt does not stop the host; it only
// increments HaltCount.
type Sim struct {
	CR0, CR2, CR3 uint32

	GDT, IDT DescriptorTablePointer

	CodeSelector, DataSelector uint16

	InterruptFlag bool

	HaltCount int

	// PortInput holds the values returned by port reads. Ports without
	// an entry read as all ones, like a floating ISA bus.
	PortInput map[uint16]uint32

	// PortWrites lists port writes in the order they were issued.
	PortWrites []PortAccess

	// CR3Writes counts directory switches; each one flushes the TLB.
	CR3Writes int
}

// NewSim returns a simulated processor in the state the bootloader hands it
// over: protected mode enabled, paging disabled and interrupts masked.
func NewSim() *Sim {
	return &Sim{
		CR0:       CR0ProtectedMode,
		PortInput: make(map[uint16]uint32),
	}
}

func (s *Sim) ReadCR0() uint32     { return s.CR0 }
func (s *Sim) WriteCR0(val uint32) { s.CR0 = val }
func (s *Sim) ReadCR2() uint32     { return s.CR2 }
func (s *Sim) ReadCR3() uint32     { return s.CR3 }

func (s *Sim) WriteCR3(pdtPhysAddr uint32) {
	s.CR3 = pdtPhysAddr
	s.CR3Writes++
}

// PagingEnabled returns true if CR0.PG is set.
func (s *Sim) PagingEnabled() bool { return s.CR0&CR0Paging != 0 }

func (s *Sim) LoadGDT(ptr DescriptorTablePointer) { s.GDT = ptr }
func (s *Sim) LoadIDT(ptr DescriptorTablePointer) { s.IDT = ptr }

func (s *Sim) ReloadSegments(codeSel, dataSel uint16) {
	s.CodeSelector, s.DataSelector = codeSel, dataSel
}

func (s *Sim) EnableInterrupts()       { s.InterruptFlag = true }
func (s *Sim) DisableInterrupts()      { s.InterruptFlag = false }
func (s *Sim) InterruptsEnabled() bool { return s.InterruptFlag }

// Halt masks interrupts and records the halt.
func (s *Sim) Halt() {
	s.InterruptFlag = false
	s.HaltCount++
}

// Halted returns true if Halt has been called at least once.
func (s *Sim) Halted() bool { return s.HaltCount != 0 }

func (s *Sim) portRead(port uint16, mask uint32) uint32 {
	if val, ok := s.PortInput[port]; ok {
		return val & mask
	}
	return mask
}

func (s *Sim) PortReadByte(port uint16) uint8   { return uint8(s.portRead(port, 0xff)) }
func (s *Sim) PortReadWord(port uint16) uint16  { return uint16(s.portRead(port, 0xffff)) }
func (s *Sim) PortReadDword(port uint16) uint32 { return s.portRead(port, 0xffffffff) }

func (s *Sim) PortWriteByte(port uint16, val uint8) {
	s.PortWrites = append(s.PortWrites, PortAccess{Port: port, Width: 1, Value: uint32(val)})
}

func (s *Sim) PortWriteWord(port uint16, val uint16) {
	s.PortWrites = append(s.PortWrites, PortAccess{Port: port, Width: 2, Value: uint32(val)})
}

func (s *Sim) PortWriteDword(port uint16, val uint32) {
	s.PortWrites = append(s.PortWrites, PortAccess{Port: port, Width: 4, Value: val})
}
