// Package logtail keeps the most recent lines of the proxy's diagnostic stream.
package logtail

import (
	"strings"
	"sync"
)

const DefaultCapacity = 100

// Buffer is a fixed capacity ring of lines. When full, Push overwrites the
// oldest line; it never blocks and never grows.
type Buffer struct {
	mu      sync.Mutex
	lines   []string
	head    int
	size    int
	dropped int64
}

// NewBuffer panics if capacity is not positive.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic("logtail: buffer capacity must be positive")
	}
	return &Buffer{lines: make([]string, capacity)}
}

// Push appends line and reports whether the oldest line was dropped for it.
func (b *Buffer) Push(line string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	tail := (b.head + b.size) % len(b.lines)
	b.lines[tail] = line
	if b.size < len(b.lines) {
		b.size++
		return false
	}
	b.head = (b.head + 1) % len(b.lines)
	b.dropped++
	return true
}

// Lines returns the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.lines[(b.head+i)%len(b.lines)]
	}
	return out
}

// Join returns the buffered lines separated by newlines, for export.
func (b *Buffer) Join() string {
	return strings.Join(b.Lines(), "\n")
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Buffer) Cap() int {
	return len(b.lines)
}

// Dropped is the number of lines overwritten so far.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
