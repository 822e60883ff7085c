package console

import (
	"unsafe"

	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/mm"
)

const (
	clearColor = Black
	clearChar  = byte(' ')

	// DefaultWidth and DefaultHeight describe the 80x25 text mode the
	// bootloader leaves the adapter in.
	DefaultWidth  = 80
	DefaultHeight = 25

	// DefaultFramebuffer is the physical address of the color text
	// buffer. It lies in low memory which stays identity mapped.
	DefaultFramebuffer = mm.PhysAddr(0xB8000)

	// CRT controller index and data ports.
	crtcIndexPort = 0x3D4
	crtcDataPort  = 0x3D5

	// CRT controller registers holding the cursor location.
	crtcCursorHigh = 0x0E
	crtcCursorLow  = 0x0F
)

var errFramebufferUnavailable = &kernel.Error{Module: "console", Message: "text framebuffer is not backed by memory"}

// Vga implements an EGA-compatible text console whose cells live in the
// physical text buffer. Each cell is a 16-bit value holding the character in
// its low byte and the color attribute in its high byte.
type Vga struct {
	width  uint16
	height uint16

	fb []uint16

	// ports, when set, receives the cursor updates.
	ports cpu.Ports
}

// NewVga returns a console with the given dimensions backed by the text
// buffer at fbAddr. The hardware cursor is driven through ports unless ports
// is nil.
func NewVga(mem mm.PhysMem, fbAddr mm.PhysAddr, width, height uint16, ports cpu.Ports) (*Vga, *kernel.Error) {
	buf := mem.Bytes(fbAddr, uint32(width)*uint32(height)*2)
	if buf == nil {
		return nil, errFramebufferUnavailable
	}

	return &Vga{
		width:  width,
		height: height,
		fb:     unsafe.Slice((*uint16)(unsafe.Pointer(&buf[0])), int(width)*int(height)),
		ports:  ports,
	}, nil
}

// Clear clears the specified rectangular region
func (cons *Vga) Clear(x, y, width, height uint16) {
	var (
		attr                 = uint16((clearColor << 4) | clearColor)
		clr                  = attr | uint16(clearChar)
		rowOffset, colOffset uint16
	)

	// clip rectangle
	if x >= cons.width {
		x = cons.width
	}
	if y >= cons.height {
		y = cons.height
	}

	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	rowOffset = (y * cons.width) + x
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
}

// Dimensions returns the console width and height in characters.
func (cons *Vga) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Scroll a particular number of lines to the specified direction.
func (cons *Vga) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines > cons.height {
		return
	}

	var i uint16
	offset := lines * cons.width

	switch dir {
	case Up:
		for ; i < (cons.height-lines)*cons.width; i++ {
			cons.fb[i] = cons.fb[i+offset]
		}
	case Down:
		for i = cons.height*cons.width - 1; i >= lines*cons.width; i-- {
			cons.fb[i] = cons.fb[i-offset]
		}
	}
}

// Write a char to the specified location.
func (cons *Vga) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	cons.fb[(y*cons.width)+x] = (uint16(attr) << 8) | uint16(ch)
}

// SetCursor programs the CRT controller cursor location registers.
func (cons *Vga) SetCursor(x, y uint16) {
	if cons.ports == nil || x >= cons.width || y >= cons.height {
		return
	}

	pos := y*cons.width + x
	cons.ports.PortWriteByte(crtcIndexPort, crtcCursorLow)
	cons.ports.PortWriteByte(crtcDataPort, uint8(pos))
	cons.ports.PortWriteByte(crtcIndexPort, crtcCursorHigh)
	cons.ports.PortWriteByte(crtcDataPort, uint8(pos>>8))
}
