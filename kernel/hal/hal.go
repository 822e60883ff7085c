// Package hal wires the display hardware the bootloader left behind into a
// terminal the kernel can log to.
package hal

import (
	"github.com/ParrotXray/CureOS/kernel"
	"github.com/ParrotXray/CureOS/kernel/cpu"
	"github.com/ParrotXray/CureOS/kernel/driver/tty"
	"github.com/ParrotXray/CureOS/kernel/driver/video/console"
	"github.com/ParrotXray/CureOS/kernel/mm"
	"github.com/ParrotXray/CureOS/multiboot"
)

// ActiveTerminal points to the currently active terminal.
var ActiveTerminal = &tty.Vt{}

// InitTerminal provides a basic terminal to allow the kernel to emit some
// output till everything is properly setup. The text framebuffer reported by
// the bootloader is used when present; otherwise the terminal falls back to
// the standard 80x25 color text buffer.
func InitTerminal(mem mm.PhysMem, ports cpu.Ports, info *multiboot.Info) *kernel.Error {
	var (
		fbAddr        = console.DefaultFramebuffer
		width, height = uint16(console.DefaultWidth), uint16(console.DefaultHeight)
	)

	if info != nil {
		if addr, w, h, ok := info.TextFramebuffer(); ok {
			fbAddr, width, height = addr, w, h
		}
	}

	cons, err := console.NewVga(mem, fbAddr, width, height, ports)
	if err != nil {
		return err
	}

	ActiveTerminal.AttachTo(cons)
	ActiveTerminal.Clear()
	ActiveTerminal.SetPosition(0, 0)
	return nil
}
