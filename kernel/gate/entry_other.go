//go:build !386

package gate

// syntheticEntryBase is where the trampolines would be placed in a kernel
// image. Hosted builds have no trampolines; the synthetic addresses only
// give the gates distinct, recognizable offsets.
const syntheticEntryBase = 0xc0100000

// syntheticEntrySize is the spacing between synthetic trampolines.
const syntheticEntrySize = 16

// entryPoint returns the address of the trampoline for vector.
func entryPoint(vector InterruptNumber) uintptr {
	return syntheticEntryBase + uintptr(vector)*syntheticEntrySize
}
