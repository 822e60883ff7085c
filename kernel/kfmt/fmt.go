// Package kfmt provides the formatted output used by the kernel before (and
// independently of) any console driver: an allocation-free Printf, a ring
// buffer that captures early output and the Panic routine.
package kfmt

import (
	"io"
	"unsafe"
)

// numBufSize is large enough for a 64-bit value in base 8 plus a sign.
const numBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numBuf [numBufSize]byte

	// oneByte is shared by every write of a single character so that
	// string arguments can be emitted without converting them to slices.
	oneByte = []byte{0}

	// earlyPrintBuffer stores Printf output until a sink is attached.
	earlyPrintBuffer ringBuffer

	// outputSink receives the output of Printf. While nil, output is
	// kept in earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and replays
// any output accumulated in the early print buffer into it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		_, _ = io.Copy(w, &earlyPrintBuffer)
	}
}

// GetOutputSink returns the current target for calls to Printf.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf provides a minimal Printf implementation that can be used before the
// Go allocator is available. It supports the following verbs:
//
//	%s  string or []byte
//	%c  a single byte
//	%d  base 10 integer, padded with spaces
//	%o  base 8 integer, padded with zeroes
//	%x  base 16 integer (lower-case), padded with zeroes
//	%t  boolean
//	%%  a literal percent sign
//
// An optional decimal width may precede the verb. Strings shorter than the
// width are left-padded with spaces.
//
// Arguments must be built-in string, bool or integer types; Printf does not
// consult fmt.Stringer because the itables may not have been set up yet.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		i        int
	)

	for i < len(format) {
		ch := format[i]
		i++

		if ch != '%' {
			writeByte(w, ch)
			continue
		}

		width := 0
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			width = width*10 + int(format[i]-'0')
			i++
		}

		if i == len(format) {
			doWrite(w, errNoVerb)
			break
		}

		verb := format[i]
		i++

		if verb == '%' {
			writeByte(w, '%')
			continue
		}

		if !isVerb(verb) {
			doWrite(w, errNoVerb)
			continue
		}

		if argIndex >= len(args) {
			doWrite(w, errMissingArg)
			continue
		}

		switch verb {
		case 'd':
			fmtInt(w, args[argIndex], 10, width)
		case 'o':
			fmtInt(w, args[argIndex], 8, width)
		case 'x':
			fmtInt(w, args[argIndex], 16, width)
		case 's':
			fmtString(w, args[argIndex], width)
		case 'c':
			fmtChar(w, args[argIndex])
		case 't':
			fmtBool(w, args[argIndex])
		}
		argIndex++
	}

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func isVerb(ch byte) bool {
	switch ch {
	case 'd', 'o', 'x', 's', 'c', 't':
		return true
	}
	return false
}

func writeByte(w io.Writer, ch byte) {
	oneByte[0] = ch
	doWrite(w, oneByte)
}

func padWith(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	b, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case b:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

func fmtChar(w io.Writer, v interface{}) {
	switch c := v.(type) {
	case byte:
		writeByte(w, c)
	case rune:
		if c > 0x7f {
			c = '?'
		}
		writeByte(w, byte(c))
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch s := v.(type) {
	case string:
		padWith(w, ' ', width-len(s))
		for i := 0; i < len(s); i++ {
			writeByte(w, s[i])
		}
	case []byte:
		padWith(w, ' ', width-len(s))
		doWrite(w, s)
	default:
		doWrite(w, errWrongArgType)
	}
}

// toUint64 converts any built-in integer to its magnitude and sign.
func toUint64(v interface{}) (mag uint64, neg, ok bool) {
	var sval int64

	switch n := v.(type) {
	case uint8:
		return uint64(n), false, true
	case uint16:
		return uint64(n), false, true
	case uint32:
		return uint64(n), false, true
	case uint64:
		return n, false, true
	case uint:
		return uint64(n), false, true
	case uintptr:
		return uint64(n), false, true
	case int8:
		sval = int64(n)
	case int16:
		sval = int64(n)
	case int32:
		sval = int64(n)
	case int64:
		sval = n
	case int:
		sval = int64(n)
	default:
		return 0, false, false
	}

	if sval < 0 {
		return uint64(-sval), true, true
	}
	return uint64(sval), false, true
}

// fmtInt prints v in the requested base. Numbers narrower than width are
// padded on the left: with spaces for base 10 and zeroes otherwise. The sign
// of a negative number counts towards the width.
func fmtInt(w io.Writer, v interface{}, base uint64, width int) {
	mag, neg, ok := toUint64(v)
	if !ok {
		doWrite(w, errWrongArgType)
		return
	}

	if width > numBufSize-1 {
		width = numBufSize - 1
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	// Digits are produced right to left.
	pos := numBufSize
	for {
		digit := byte(mag % base)
		mag /= base

		pos--
		if digit < 10 {
			numBuf[pos] = '0' + digit
		} else {
			numBuf[pos] = 'a' + digit - 10
		}

		if mag == 0 {
			break
		}
	}

	if padCh == ' ' {
		if neg {
			pos--
			numBuf[pos] = '-'
		}
		for numBufSize-pos < width {
			pos--
			numBuf[pos] = ' '
		}
	} else {
		signLen := 0
		if neg {
			signLen = 1
		}
		for numBufSize-pos+signLen < width {
			pos--
			numBuf[pos] = '0'
		}
		if neg {
			pos--
			numBuf[pos] = '-'
		}
	}

	doWrite(w, numBuf[pos:])
}

// doWrite hides p from escape analysis before handing it to the writer.
// Without this the compiler assumes that p escapes through the io.Writer
// interface call and makes every Printf argument a heap allocation, which
// crashes the kernel when Printf runs before the allocator is ready.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		_, _ = w.Write(p)
	} else {
		_, _ = earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}

// Output is an io.Writer that forwards everything to the current output sink
// or, while none is attached, to the early print buffer. Unlike the value
// returned by GetOutputSink it is never nil and can be captured at package
// initialization time.
var Output io.Writer = outputForwarder{}

type outputForwarder struct{}

func (outputForwarder) Write(p []byte) (int, error) {
	doWrite(outputSink, p)
	return len(p), nil
}
