//go:build unix

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocGuestMemory maps size bytes of anonymous zeroed memory to serve as
// guest RAM. The returned function releases the mapping.
func allocGuestMemory(size uint32) ([]byte, func(), error) {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("allocating %d bytes of guest memory: %w", size, err)
	}

	return mem, func() { _ = unix.Munmap(mem) }, nil
}
