package pools

import (
	"sync"
	"sync/atomic"
)

// Pool geometry tuned for HTTP header/body workloads
const (
	DefaultBufferSize   = 8 * 1024 // 8KB per buffer
	DefaultPoolCapacity = 1024     // buffers retained on the free list
)

// BufferPool is a bounded free list of fixed-capacity byte buffers.
// Acquire hands out a logically empty buffer; Release truncates the
// buffer and returns it unless the list is already at its bound, in
// which case the buffer is dropped and left to the GC.
type BufferPool struct {
	mu       sync.Mutex
	free     [][]byte
	size     int
	capacity int

	// Statistics
	hits   atomic.Uint64
	misses atomic.Uint64
	drops  atomic.Uint64
}

// NewBufferPool creates a pool of fixed-size buffers with the given
// free-list bound. Non-positive arguments fall back to the defaults.
func NewBufferPool(size, capacity int) *BufferPool {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	return &BufferPool{
		free:     make([][]byte, 0, capacity),
		size:     size,
		capacity: capacity,
	}
}

// Acquire returns a zero-length buffer with the pool's fixed capacity.
func (p *BufferPool) Acquire() []byte {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		buf := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		p.hits.Add(1)
		return buf
	}
	p.mu.Unlock()

	p.misses.Add(1)
	return make([]byte, 0, p.size)
}

// Release truncates buf and returns it to the free list. Buffers are
// dropped silently when the list is full or when buf was not sized by
// this pool (a grown header buffer, for example).
func (p *BufferPool) Release(buf []byte) {
	if cap(buf) != p.size {
		p.drops.Add(1)
		return
	}
	buf = buf[:0]

	p.mu.Lock()
	if len(p.free) < p.capacity {
		p.free = append(p.free, buf)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.drops.Add(1)
}

// BufferSize returns the fixed capacity of pooled buffers.
func (p *BufferPool) BufferSize() int {
	return p.size
}

// Len returns the current number of buffers on the free list.
func (p *BufferPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Stats returns a snapshot of the pool counters.
func (p *BufferPool) Stats() BufferStats {
	return BufferStats{
		Hits:   p.hits.Load(),
		Misses: p.misses.Load(),
		Drops:  p.drops.Load(),
		Free:   p.Len(),
	}
}

// BufferStats contains buffer pool statistics.
type BufferStats struct {
	Hits   uint64
	Misses uint64
	Drops  uint64
	Free   int
}
