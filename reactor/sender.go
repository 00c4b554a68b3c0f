// File: reactor/sender.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runners executed on an endpoint's write strand.

package reactor

import (
	"fmt"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/pool"
)

// Sender writes the remainder of a packet that could not be sent
// immediately. It owns the packet and releases it after Run.
type Sender struct {
	sock   *Socket
	packet pool.Packet
}

var _ api.Runner = (*Sender)(nil)

// NewSender binds pkt to s.
func NewSender(s *Socket, pkt pool.Packet) *Sender {
	return &Sender{sock: s, packet: pkt}
}

func (s *Sender) Name() string { return "sender" }

// Size returns the bytes still to send.
func (s *Sender) Size() int { return s.packet.Len() }

// Run blocks until the packet is written or the socket fails.
func (s *Sender) Run() error {
	defer s.packet.Release()
	return s.sock.Write(s.packet.Bytes())
}

// discard drops the packet without writing it.
func (s *Sender) discard() { s.packet.Release() }

// sendTask runs a Sender with queueing accounting around it.
type sendTask struct {
	io     *IOSocket
	reg    *socketReg
	sender *Sender
	size   int
}

func (t *sendTask) Run() {
	defer t.reg.release()
	if t.reg.closing.Load() {
		t.sender.discard()
		t.io.dequeue(t.reg, t.size)
		t.reg.fail(api.Wrap(api.ErrCodeAborted, api.ErrClosed, "send of %d bytes", t.size))
		return
	}
	before := t.reg.sock.Written()
	err := t.sender.Run()
	t.io.o.metrics.BytesWritten(kindSocket, int(t.reg.sock.Written()-before))
	left := t.io.dequeue(t.reg, t.size)
	if err != nil {
		t.io.failAsync(t.reg, err)
		return
	}
	if left == 0 {
		t.reg.emitFlush()
	}
}

func (t *sendTask) Abort(err error) {
	defer t.reg.release()
	t.sender.discard()
	t.io.dequeue(t.reg, t.size)
	t.io.failAsync(t.reg, api.Wrap(api.ErrCodeAborted, err, "send of %d bytes", t.size))
}

// runnerTask runs a caller supplied Runner and reports its outcome on res.
type runnerTask struct {
	reg    *registration
	runner api.Runner
	res    chan error
}

func (t *runnerTask) Run() {
	if t.reg.closing.Load() {
		t.Abort(api.ErrClosed)
		return
	}
	defer t.reg.release()
	err := t.call()
	if err != nil {
		t.reg.log.Debug("runner failed", "runner", t.runner.Name(), "error", err)
	}
	t.res <- err
}

func (t *runnerTask) call() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = api.NewError(api.ErrCodeInternal, fmt.Sprintf("runner %s panic: %v", t.runner.Name(), p))
		}
	}()
	return t.runner.Run()
}

func (t *runnerTask) Abort(err error) {
	defer t.reg.release()
	t.res <- api.Wrap(api.ErrCodeAborted, err, "runner %s", t.runner.Name())
}
