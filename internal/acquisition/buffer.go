package acquisition

import "github.com/Aquilesorei/talon/internal/scale"

const defaultBufferSize = 4096

// Buffer holds the decoded samples of the locked target in arrival order.
// It is owned by the session goroutine and is not safe for concurrent use.
type Buffer struct {
	samples []scale.DecodedSample
	size    int
	evicted int
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Buffer{size: size}
}

// Add appends a sample, evicting the oldest one once the buffer is full.
func (b *Buffer) Add(s scale.DecodedSample) {
	if len(b.samples) >= b.size {
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:len(b.samples)-1]
		b.evicted++
	}
	b.samples = append(b.samples, s)
}

func (b *Buffer) Len() int { return len(b.samples) }

// Evicted reports how many samples were dropped for capacity since the last Reset.
func (b *Buffer) Evicted() int { return b.evicted }

// Samples returns a copy of the buffered samples.
func (b *Buffer) Samples() []scale.DecodedSample {
	out := make([]scale.DecodedSample, len(b.samples))
	copy(out, b.samples)
	return out
}

func (b *Buffer) Reset() {
	b.samples = b.samples[:0]
	b.evicted = 0
}
