package util

import (
	"io"
	"sync"
)

// RingBufferWriter forwards writes to an underlying writer and keeps the
// last N bytes so a failing subprocess can report the tail of its output.
type RingBufferWriter struct {
	writer io.Writer
	buffer []byte
	size   int
	pos    int
	full   bool
	mu     sync.Mutex
}

// NewRingBufferWriter creates a RingBufferWriter that writes to w and keeps
// the last size bytes. w may be nil.
func NewRingBufferWriter(w io.Writer, size int) *RingBufferWriter {
	return &RingBufferWriter{
		writer: w,
		buffer: make([]byte, size),
		size:   size,
	}
}

// Write implements io.Writer interface
func (w *RingBufferWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writer != nil {
		n, err = w.writer.Write(p)
		if err != nil {
			return n, err
		}
	}

	for _, b := range p {
		w.buffer[w.pos] = b
		w.pos++
		if w.pos == w.size {
			w.pos = 0
			w.full = true
		}
	}

	return len(p), nil
}

// String returns the contents of the ring buffer as a string
func (w *RingBufferWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.full {
		return string(w.buffer[:w.pos])
	}
	return string(w.buffer[w.pos:]) + string(w.buffer[:w.pos])
}
