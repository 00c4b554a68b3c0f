// File: pool/bufferpool.go
// Author: momentics <momentics@gmail.com>
//
// Size-classed buffer pool. Storage is recycled through one sync.Pool per
// power-of-two class; oversized requests fall back to plain allocation.

package pool

import (
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	minClassShift = 6  // 64 B
	maxClassShift = 22 // 4 MiB
	numClasses    = maxClassShift - minClassShift + 1
)

// BufferPoolStats aggregates buffer allocation/reuse stats.
type BufferPoolStats struct {
	TotalAlloc int64 // fresh storage allocations
	TotalFree  int64 // buffers returned to the pool
	InUse      int64 // buffers handed out and not yet returned
}

// BufferPool hands out exclusively owned Buffers.
type BufferPool struct {
	classes [numClasses]sync.Pool

	totalAlloc atomic.Int64
	totalGet   atomic.Int64
	totalFree  atomic.Int64
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

var defaultPool = NewBufferPool()

// DefaultPool returns the process-wide pool so every component reuses the
// same storage.
func DefaultPool() *BufferPool { return defaultPool }

// Get returns an empty buffer with capacity for at least size bytes.
func (p *BufferPool) Get(size int) *Buffer {
	p.totalGet.Add(1)
	return &Buffer{data: p.alloc(size), pool: p}
}

// Put returns buf to the pool. buf must not be used afterwards.
func (p *BufferPool) Put(buf *Buffer) {
	if buf == nil || buf.pool != p || buf.released {
		return
	}
	buf.released = true
	p.totalFree.Add(1)
	p.free(buf.data)
	buf.data = nil
}

// Stats exposes resource/accounting metrics for observability.
func (p *BufferPool) Stats() BufferPoolStats {
	free := p.totalFree.Load()
	return BufferPoolStats{
		TotalAlloc: p.totalAlloc.Load(),
		TotalFree:  free,
		InUse:      p.totalGet.Load() - free,
	}
}

func classOf(size int) int {
	if size <= 1<<minClassShift {
		return 0
	}
	return bits.Len(uint(size-1)) - minClassShift
}

func (p *BufferPool) alloc(size int) []byte {
	if size < 0 {
		size = 0
	}
	idx := classOf(size)
	if idx >= numClasses {
		p.totalAlloc.Add(1)
		return make([]byte, 0, size)
	}
	if v := p.classes[idx].Get(); v != nil {
		return (*(v.(*[]byte)))[:0]
	}
	p.totalAlloc.Add(1)
	return make([]byte, 0, 1<<(idx+minClassShift))
}

func (p *BufferPool) free(data []byte) {
	c := cap(data)
	if c < 1<<minClassShift || c&(c-1) != 0 {
		return
	}
	idx := bits.Len(uint(c)) - 1 - minClassShift
	if idx >= numClasses {
		return
	}
	data = data[:0]
	p.classes[idx].Put(&data)
}
