// Package syncbuffer provides a bytes.Buffer that tests can hand to a
// logger and inspect afterwards.
package syncbuffer

import (
	"bytes"
	"sync"
)

// Buffer wraps around a bytes.Buffer and makes it safe to use from
// multiple goroutines.
type Buffer struct {
	mut sync.RWMutex
	buf bytes.Buffer
}

func (sb *Buffer) Write(p []byte) (n int, err error) {
	sb.mut.Lock()
	defer sb.mut.Unlock()

	return sb.buf.Write(p)
}

func (sb *Buffer) String() string {
	sb.mut.RLock()
	defer sb.mut.RUnlock()

	return sb.buf.String()
}

// Lines returns the non-empty lines written so far.
func (sb *Buffer) Lines() []string {
	sb.mut.RLock()
	defer sb.mut.RUnlock()

	var lines []string
	for line := range bytes.Lines(sb.buf.Bytes()) {
		if l := bytes.TrimSpace(line); len(l) > 0 {
			lines = append(lines, string(l))
		}
	}
	return lines
}

func (sb *Buffer) Reset() {
	sb.mut.Lock()
	defer sb.mut.Unlock()
	sb.buf.Reset()
}
