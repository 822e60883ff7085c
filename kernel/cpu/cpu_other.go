//go:build !386

package cpu

// hostSim is handed out by Default on platforms where the kernel cannot touch
// the processor directly.
var hostSim = NewSim()

// Default returns the privileged-operations backend for this platform. On
// anything but 386 this is a shared simulated processor.
func Default() Ops { return hostSim }
