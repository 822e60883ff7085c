package gate

// entryPoint returns the address of the trampoline for vector.
func entryPoint(vector InterruptNumber) uintptr {
	return uintptr(isrEntries()[vector])
}

// isrEntries returns the table of trampoline addresses built in entry_386.s.
func isrEntries() *[EntryCount]uint32
