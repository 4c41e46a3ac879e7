package ring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quectel/qmodem/internal/ring"
)

func TestWriteRead(t *testing.T) {
	b := ring.New(8)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 8, b.Free())

	n := b.Write([]byte("hello"))
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, b.Len())

	p := make([]byte, 3)
	n = b.Read(p)
	assert.Equal(t, 3, n)
	assert.Equal(t, "hel", string(p))
	assert.Equal(t, 2, b.Len())
}

func TestWrapAround(t *testing.T) {
	b := ring.New(4)
	b.Write([]byte("ab"))
	p := make([]byte, 1)
	b.Read(p)
	b.Write([]byte("cde")) // wraps: free was 3 (4-1), fits exactly
	out := make([]byte, 4)
	n := b.Read(out)
	assert.Equal(t, 4, n)
	assert.Equal(t, "bcde", string(out[:n]))
	assert.Equal(t, 0, b.Len())
}

func TestOverflowTruncates(t *testing.T) {
	b := ring.New(4)
	n := b.Write([]byte("abcdef"))
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, 0, b.Free())
}

func TestReset(t *testing.T) {
	b := ring.New(4)
	b.Write([]byte("ab"))
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 4, b.Free())
}
