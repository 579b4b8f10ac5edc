package process

import (
	"bytes"
	"sync"

	"github.com/Paintersrp/tether/internal/runtime"
)

// lineWriter splits a worker's output stream into log entries.
type lineWriter struct {
	emitFn func(runtime.LogEntry)
	source string
	level  string

	mu  sync.Mutex
	buf bytes.Buffer
}

func newLineWriter(emit func(runtime.LogEntry), source, level string) *lineWriter {
	return &lineWriter{emitFn: emit, source: source, level: level}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	total := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			w.buf.Write(p)
			break
		}
		w.buf.Write(p[:i])
		w.flush()
		p = p[i+1:]
	}
	return total, nil
}

// Close emits any trailing partial line.
func (w *lineWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flush()
}

func (w *lineWriter) flush() {
	line := bytes.TrimRight(w.buf.Bytes(), "\r")
	if len(line) > 0 {
		w.emitFn(runtime.LogEntry{Message: string(line), Source: w.source, Level: w.level})
	}
	w.buf.Reset()
}
