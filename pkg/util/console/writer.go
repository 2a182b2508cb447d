package console

import (
	"bytes"
	"io"
	"sync"
)

type lineWriter struct {
	c     *Console
	level Level
	mu    sync.Mutex
	buf   []byte
}

// Writer returns a writer that logs every line written to it at level.
// Close flushes a trailing partial line.
func (c *Console) Writer(level Level) io.WriteCloser {
	return &lineWriter{c: c, level: level}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.c.log(w.level, string(bytes.TrimRight(w.buf[:i], "\r")))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.c.log(w.level, string(w.buf))
		w.buf = nil
	}
	return nil
}
