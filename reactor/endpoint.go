// File: reactor/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Accounting shared by socket and file endpoints, and the privileged view
// the reactors hold on them.

package reactor

import (
	"sync/atomic"

	"github.com/momentics/hioload-stream/api"
)

// counters is the lock-free accounting block of an endpoint. The exported
// getters are promoted onto Socket and File; the mutators stay private to
// the reactors.
type counters struct {
	readen   atomic.Uint64
	written  atomic.Uint64
	queueing atomic.Uint64
}

// Readen returns the bytes read since open/connect.
func (c *counters) Readen() uint64 { return c.readen.Load() }

// Written returns the bytes written since open/connect.
func (c *counters) Written() uint64 { return c.written.Load() }

// Queueing returns the bytes accepted for asynchronous write and not yet
// flushed to the OS.
func (c *counters) Queueing() uint64 { return c.queueing.Load() }

func (c *counters) addReaden(n int) {
	if n > 0 {
		c.readen.Add(uint64(n))
	}
}

func (c *counters) addWritten(n int) {
	if n > 0 {
		c.written.Add(uint64(n))
	}
}

func (c *counters) addQueueing(n int) {
	if n > 0 {
		c.queueing.Add(uint64(n))
	}
}

// subQueueing removes n queued bytes and returns what is left. The counter
// saturates at zero; underflow reports the violation.
func (c *counters) subQueueing(n int) (left uint64, underflow bool) {
	if n <= 0 {
		return c.queueing.Load(), false
	}
	for {
		cur := c.queueing.Load()
		next := cur - uint64(n)
		underflow = uint64(n) > cur
		if underflow {
			next = 0
		}
		if c.queueing.CompareAndSwap(cur, next) {
			return next, underflow
		}
	}
}

func (c *counters) reset() {
	c.readen.Store(0)
	c.written.Store(0)
	c.queueing.Store(0)
}

// endpoint is the capability the reactors use on a Socket or File.
// Its unexported methods keep it out of reach of other packages.
type endpoint interface {
	api.Endpoint
	acct() *counters
	kind() string
	shutdown() error
}

const (
	kindSocket = "socket"
	kindFile   = "file"
)
