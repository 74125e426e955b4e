package instance

import (
	"bytes"
	"sync"
)

// lineWriter calls fn for each complete line written to it, without the line ending.
type lineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func(line string)
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
		line := bytes.TrimSuffix(w.buf[:i], []byte{'\r'})
		w.fn(string(line))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush hands any trailing unterminated line to fn.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.fn(string(w.buf))
		w.buf = nil
	}
}
