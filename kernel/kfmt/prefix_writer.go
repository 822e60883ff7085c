package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter wraps another io.Writer and emits Prefix in front of every
// line written through it. Subsystems use it to tag their output, e.g. the
// page-table builder writes through a PrefixWriter with prefix "[vmm] ".
type PrefixWriter struct {
	// Sink receives the prefixed output.
	Sink io.Writer

	// Prefix is written at the start of each line.
	Prefix []byte

	// midLine is set when the last byte written was not a line feed.
	midLine bool
}

// Write sends p to the sink, injecting the prefix at the beginning of each
// new line. The returned count covers the bytes of p only; prefix bytes are
// not included.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) > 0 {
		if !w.midLine {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		line := p
		if idx := bytes.IndexByte(p, '\n'); idx != -1 {
			line = p[:idx+1]
			w.midLine = false
		}

		n, err := w.Sink.Write(line)
		written += n
		if err != nil {
			return written, err
		}
		p = p[len(line):]
	}

	return written, nil
}
