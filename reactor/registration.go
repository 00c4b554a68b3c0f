// File: reactor/registration.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-endpoint registration state: handlers, decoder, carry-over buffer and
// the lifetime bookkeeping shared by both reactors.

package reactor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/control"
	"github.com/momentics/hioload-stream/pool"
)

// registration lives from Register until the last in-flight task of the
// endpoint has returned after Unregister. refs counts the registration
// itself plus every task or goroutine still holding it.
type registration struct {
	ep      endpoint
	dec     api.Decoder
	owned   bool
	h       api.Handlers
	log     *slog.Logger
	metrics *control.Metrics

	// carry holds bytes the decoder asked to keep. Decode strand only.
	carry *pool.Buffer

	refs       atomic.Int64
	detached   atomic.Bool // Unregister called, events suppressed
	closing    atomic.Bool // endpoint shut, queued work no longer runs
	terminated atomic.Bool // close event emitted, no event follows
	readDead   atomic.Bool // decoder failed, no further decode
	quit       chan struct{}
	quitOnce   sync.Once
	done       chan struct{}
	finalOnce  sync.Once
	onFinalize func()
}

func newRegistration(ep endpoint, reg api.Registration, o *options) *registration {
	r := &registration{
		ep:      ep,
		dec:     reg.Decoder,
		owned:   reg.Owned,
		h:       reg.Handlers,
		log:     o.log.With("endpoint", ep.ID(), "kind", ep.kind()),
		metrics: o.metrics,
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	r.refs.Store(1)
	return r
}

func (r *registration) acquire() { r.refs.Add(1) }

func (r *registration) release() {
	if r.refs.Add(-1) == 0 {
		r.finalize()
	}
}

// detach stops event delivery and drops the registration's own reference.
// The returned channel closes once nothing references the endpoint.
func (r *registration) detach() <-chan struct{} {
	if r.detached.CompareAndSwap(false, true) {
		r.stop()
		r.release()
	}
	return r.done
}

func (r *registration) stop() {
	r.quitOnce.Do(func() { close(r.quit) })
}

func (r *registration) stopped() bool {
	select {
	case <-r.quit:
		return true
	default:
		return false
	}
}

func (r *registration) finalize() {
	r.finalOnce.Do(func() {
		if r.carry != nil {
			r.carry.Release()
			r.carry = nil
		}
		if r.owned {
			if c, ok := r.dec.(io.Closer); ok {
				if err := c.Close(); err != nil {
					r.log.Debug("decoder close", "error", err)
				}
			}
		}
		r.dec = nil
		if r.onFinalize != nil {
			r.onFinalize()
		}
		close(r.done)
		r.log.Debug("registration finalized")
	})
}

func (r *registration) emitData(buf *pool.Buffer, end bool) {
	if r.detached.Load() || r.terminated.Load() || r.h.OnData == nil {
		buf.Release()
		return
	}
	r.metrics.Event(r.ep.kind(), "data")
	r.h.OnData(buf, end)
}

func (r *registration) emitFlush() {
	if r.detached.Load() || r.terminated.Load() || r.h.OnFlush == nil {
		return
	}
	r.metrics.Event(r.ep.kind(), "flush")
	r.h.OnFlush()
}

func (r *registration) emitError(err error) {
	r.metrics.Error(r.ep.kind(), api.CodeOf(err).String())
	r.log.Warn("endpoint error", "error", err)
	if r.detached.Load() || r.h.OnError == nil {
		return
	}
	r.metrics.Event(r.ep.kind(), "error")
	r.h.OnError(err)
}

// shut stops the reader and releases the OS handle without emitting
// anything. Work still queued for the endpoint is aborted when it runs.
func (r *registration) shut() error {
	r.closing.Store(true)
	r.stop()
	return r.ep.shutdown()
}

// terminate shuts the endpoint and emits the close event, once. Sockets
// call it on the decode strand only, so it is ordered after every data
// event already posted and no data event follows it.
func (r *registration) terminate(cause error) {
	if !r.terminated.CompareAndSwap(false, true) {
		return
	}
	if err := r.shut(); err != nil {
		r.log.Debug("shutdown", "error", err)
	}
	if r.detached.Load() || r.h.OnClose == nil {
		return
	}
	r.metrics.Event(r.ep.kind(), "close")
	r.h.OnClose(cause)
}

// fail reports err and closes the endpoint. Failures arriving after the
// endpoint was shut are consequences of the shutdown and are only logged.
func (r *registration) fail(err error) {
	if r.closing.Load() {
		r.metrics.Error(r.ep.kind(), api.CodeOf(err).String())
		r.log.Debug("failure after close", "error", err)
		return
	}
	r.emitError(err)
	r.terminate(err)
}

// consume runs the decode loop over one chunk and reports whether the
// reader should keep going without waiting: the last decode either
// completed a unit or kept bytes it needs more data for.
func (r *registration) consume(chunk *pool.Buffer, end bool) bool {
	if r.readDead.Load() || r.detached.Load() || r.terminated.Load() {
		chunk.Release()
		return false
	}
	if r.dec == nil {
		if chunk.Len() > 0 || end {
			r.emitData(chunk, end)
		} else {
			chunk.Release()
		}
		return !end
	}

	buf := chunk
	if r.carry != nil {
		r.carry.Append(chunk.Bytes())
		chunk.Release()
		buf, r.carry = r.carry, nil
	}
	for {
		n, out, err := r.decode(buf, end)
		switch {
		case err != nil:
			out.Release()
			r.readDead.Store(true)
			r.fail(decodeError(err))
			return false
		case n < 0:
			out.Release()
			r.readDead.Store(true)
			r.fail(api.NewError(api.ErrCodeInternal, fmt.Sprintf("decoder returned negative count %d", n)))
			return false
		case n == 0:
			if out == nil {
				return false
			}
			if end {
				r.emitData(out, true)
				return false
			}
			r.carry = out
			return true
		case out == nil:
			return !end
		case n > out.Len():
			size := out.Len()
			out.Release()
			r.readDead.Store(true)
			r.fail(api.NewError(api.ErrCodeInternal,
				fmt.Sprintf("decoder consumed %d bytes of %d", n, size)))
			return false
		}

		rest := out.Split(n)
		last := end && rest.Len() == 0
		r.emitData(out, last)
		if rest.Len() == 0 {
			rest.Release()
			return !end
		}
		if r.readDead.Load() || r.detached.Load() || r.terminated.Load() {
			rest.Release()
			return false
		}
		buf = rest
	}
}

func (r *registration) decode(buf *pool.Buffer, end bool) (n int, out *pool.Buffer, err error) {
	defer func() {
		if p := recover(); p != nil {
			n, out = 0, nil
			err = api.NewError(api.ErrCodeInternal, fmt.Sprintf("decoder panic: %v", p))
		}
	}()
	r.metrics.DecodeCall(r.ep.kind())
	return r.dec.Decode(buf, end)
}

func decodeError(err error) error {
	var e *api.Error
	if errors.As(err, &e) {
		return err
	}
	return api.Wrap(api.ErrCodeInternal, err, "decode")
}
