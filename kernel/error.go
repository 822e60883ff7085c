package kernel

// Error describes a kernel error. Kernel errors are declared as package-level
// pointers to Error values because most of the code that reports them runs
// before (or instead of) the Go allocator, so errors.New is not an option.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
