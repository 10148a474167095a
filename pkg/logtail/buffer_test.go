package logtail

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferKeepsLastHundred(t *testing.T) {
	b := NewBuffer(DefaultCapacity)
	for i := 0; i < 150; i++ {
		b.Push(fmt.Sprintf("line %d", i))
	}

	lines := b.Lines()
	assert.Len(t, lines, 100)
	assert.Equal(t, "line 50", lines[0])
	assert.Equal(t, "line 149", lines[99])
	for i, l := range lines {
		assert.Equal(t, fmt.Sprintf("line %d", i+50), l)
	}
	assert.EqualValues(t, 50, b.Dropped())
}

func TestBufferPartial(t *testing.T) {
	b := NewBuffer(4)
	assert.False(t, b.Push("a"))
	assert.False(t, b.Push("b"))
	assert.Equal(t, []string{"a", "b"}, b.Lines())
	assert.Equal(t, "a\nb", b.Join())
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 4, b.Cap())
}

func TestBufferOverwriteReportsDrop(t *testing.T) {
	b := NewBuffer(2)
	b.Push("a")
	b.Push("b")
	assert.True(t, b.Push("c"))
	assert.Equal(t, "b\nc", b.Join())
	assert.EqualValues(t, 1, b.Dropped())
}

func TestBufferConcurrentWriterReader(t *testing.T) {
	b := NewBuffer(DefaultCapacity)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			b.Push(fmt.Sprintf("%d", i))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			assert.LessOrEqual(t, len(b.Lines()), DefaultCapacity)
		}
	}()
	wg.Wait()
	assert.Equal(t, DefaultCapacity, b.Len())
	assert.True(t, strings.HasSuffix(b.Join(), "999"))
}

func TestNewBufferPanicsOnZero(t *testing.T) {
	assert.Panics(t, func() { NewBuffer(0) })
}
