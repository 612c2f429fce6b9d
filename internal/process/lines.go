package process

import (
	"bytes"
	"strings"
	"sync"
)

// LineWriter is an io.Writer that calls fn once per complete line written to
// it, without the trailing newline or carriage return. A final partial line
// is delivered by Flush.
//
// LineWriter is safe for concurrent use; fn is never called concurrently.
type LineWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
	fn  func(string)
}

// NewLineWriter returns a LineWriter delivering lines to fn.
func NewLineWriter(fn func(string)) *LineWriter {
	return &LineWriter{fn: fn}
}

// Write implements io.Writer.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.fn(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush delivers any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	w.fn(strings.TrimRight(line, "\r\n"))
}
