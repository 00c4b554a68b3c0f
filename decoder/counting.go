// File: decoder/counting.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package decoder

import (
	"io"
	"sync/atomic"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/pool"
)

// Counter wraps a decoder and accounts what it consumed. Bytes a decoder
// cuts from the buffer it was given and returns (framing headers) count as
// consumed, so Consumed matches the stream length once it is fully decoded.
type Counter struct {
	inner     api.Decoder
	calls     atomic.Uint64
	units     atomic.Uint64
	unitBytes atomic.Uint64
	consumed  atomic.Uint64
	active   atomic.Int32
	overlap  atomic.Bool
	closed   atomic.Bool
}

// Counting wraps inner.
func Counting(inner api.Decoder) *Counter {
	return &Counter{inner: inner}
}

// Decode forwards to the wrapped decoder.
func (c *Counter) Decode(buf *pool.Buffer, end bool) (int, *pool.Buffer, error) {
	if c.active.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.active.Add(-1)
	c.calls.Add(1)
	before := buf.Len()
	n, out, err := c.inner.Decode(buf, end)
	if err != nil {
		return n, out, err
	}
	if out == buf && out.Len() < before {
		c.consumed.Add(uint64(before - out.Len()))
	}
	if n > 0 {
		c.units.Add(1)
		c.unitBytes.Add(uint64(n))
		c.consumed.Add(uint64(n))
	}
	return n, out, err
}

// Calls returns the number of Decode invocations.
func (c *Counter) Calls() uint64 { return c.calls.Load() }

// Units returns the number of completed units.
func (c *Counter) Units() uint64 { return c.units.Load() }

// UnitBytes returns the sum of bytes of all completed units.
func (c *Counter) UnitBytes() uint64 { return c.unitBytes.Load() }

// Consumed returns the input bytes accounted for: unit bytes plus bytes
// the decoder cut from its input.
func (c *Counter) Consumed() uint64 { return c.consumed.Load() }

// Overlapped reports whether two Decode calls ever ran at the same time.
func (c *Counter) Overlapped() bool { return c.overlap.Load() }

// Closed reports whether Close was called.
func (c *Counter) Closed() bool { return c.closed.Load() }

// Close closes the wrapped decoder when it is an io.Closer.
func (c *Counter) Close() error {
	c.closed.Store(true)
	if cl, ok := c.inner.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
