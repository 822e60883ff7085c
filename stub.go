package main

import "github.com/ParrotXray/CureOS/kernel/kmain"

// These variables are populated by the rt0 code before main runs: the
// multiboot info pointer handed over by the bootloader in EBX and the
// linker-provided addresses describing the kernel image.
var (
	multibootInfoPtr uintptr
	kernelStart      uintptr
	kernelEnd        uintptr
	shimEnd          uintptr
	stackTop         uintptr
)

// main makes a dummy call to the actual kernel main entrypoint function. It
// is intentionally defined to prevent the Go compiler from optimizing away the
// real kernel code.
//
// Global variables are passed as arguments to Kmain to prevent the compiler
// from inlining the actual call and removing Kmain from the generated .o file.
func main() {
	kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd, shimEnd, stackTop)
}
