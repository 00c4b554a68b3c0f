// File: pool/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Growable, exclusively owned byte container handed between goroutines by
// pointer move.

package pool

// Buffer is a growable byte container owned by exactly one goroutine at a
// time. Passing a *Buffer to another component transfers ownership; the
// sender must not touch it afterwards.
type Buffer struct {
	data     []byte
	pool     *BufferPool
	released bool
}

// NewBuffer wraps p without pooling. The buffer takes ownership of p.
func NewBuffer(p []byte) *Buffer {
	return &Buffer{data: p}
}

// Bytes returns the buffer contents. The slice is valid until the next
// mutation or Release.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the number of bytes held.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Cap returns the storage capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Append copies p to the end of the buffer, growing it if needed.
func (b *Buffer) Append(p []byte) {
	copy(b.Extend(len(p)), p)
}

// Write implements io.Writer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(p)
	return len(p), nil
}

// Extend grows the buffer by n bytes and returns the new tail for the
// caller to fill (typically by a read call followed by Truncate).
func (b *Buffer) Extend(n int) []byte {
	l := len(b.data)
	b.grow(n)
	b.data = b.data[:l+n]
	return b.data[l : l+n]
}

// Truncate keeps the first n bytes.
func (b *Buffer) Truncate(n int) {
	if n < 0 || n > len(b.data) {
		panic("pool: truncate out of range")
	}
	b.data = b.data[:n]
}

// Reset empties the buffer, keeping its storage.
func (b *Buffer) Reset() { b.data = b.data[:0] }

// Split keeps the first n bytes in b and returns the remaining bytes in a
// new buffer drawn from the same pool. The returned buffer is empty when
// n == b.Len().
func (b *Buffer) Split(n int) *Buffer {
	if n < 0 || n > len(b.data) {
		panic("pool: split out of range")
	}
	tail := b.data[n:]
	var rest *Buffer
	if b.pool != nil {
		rest = b.pool.Get(len(tail))
	} else {
		rest = &Buffer{data: make([]byte, 0, len(tail))}
	}
	rest.Append(tail)
	b.data = b.data[:n]
	return rest
}

// Release returns the buffer to its pool. Releasing twice is a no-op.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if b.pool != nil {
		b.pool.Put(b)
		return
	}
	b.released = true
	b.data = nil
}

func (b *Buffer) grow(n int) {
	need := len(b.data) + n
	if need <= cap(b.data) {
		return
	}
	newCap := 2 * cap(b.data)
	if newCap < need {
		newCap = need
	}
	var data []byte
	if b.pool != nil {
		data = b.pool.alloc(newCap)
	} else {
		data = make([]byte, 0, newCap)
	}
	data = append(data, b.data...)
	if b.pool != nil {
		b.pool.free(b.data)
	}
	b.data = data
}
