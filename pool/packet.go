// File: pool/packet.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Immutable, reference-counted byte range passed between components
// without copying.

package pool

import "sync/atomic"

// Packet is an immutable view over bytes. Pooled packets (built with
// Buffer.Packet) return their storage once every reference is released.
// The zero Packet is empty and valid.
type Packet struct {
	data []byte
	ref  *packetRef
}

type packetRef struct {
	refs atomic.Int32
	buf  *Buffer
}

// NewPacket wraps p. The caller must not modify p afterwards.
func NewPacket(p []byte) Packet {
	return Packet{data: p}
}

// Packet moves the buffer into a packet holding one reference. b must not
// be used afterwards.
func (b *Buffer) Packet() Packet {
	if b == nil {
		return Packet{}
	}
	r := &packetRef{buf: b}
	r.refs.Store(1)
	return Packet{data: b.data, ref: r}
}

// Bytes returns the packet contents. Callers must not modify them.
func (p Packet) Bytes() []byte { return p.data }

// Len returns the packet size.
func (p Packet) Len() int { return len(p.data) }

// Retain adds a reference and returns the same packet.
func (p Packet) Retain() Packet {
	if p.ref != nil {
		p.ref.refs.Add(1)
	}
	return p
}

// Slice returns a retained sub-range; release it independently.
func (p Packet) Slice(from, to int) Packet {
	q := p.Retain()
	q.data = p.data[from:to]
	return q
}

// Release drops one reference.
func (p Packet) Release() {
	if p.ref == nil {
		return
	}
	if p.ref.refs.Add(-1) == 0 {
		p.ref.buf.Release()
	}
}
