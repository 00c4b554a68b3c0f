// File: reactor/iosocket.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// IOSocket drives registered sockets: one reader goroutine per socket
// parked on the runtime netpoller, decoding on a per-socket strand, and
// ordered asynchronous writes on a second strand.

package reactor

import (
	"errors"
	"io"
	"sync"
	"time"

	"code.hybscloud.com/iox"
	"go.uber.org/multierr"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/internal/concurrency"
	"github.com/momentics/hioload-stream/pool"
)

// IOSocket is the socket reactor.
type IOSocket struct {
	cfg      Config
	o        options
	ioExec   *concurrency.Executor
	decExec  *concurrency.Executor
	ownsExec bool

	mu     sync.Mutex
	regs   map[*Socket]*socketReg
	closed bool
}

type socketReg struct {
	*registration
	sock   *Socket
	decode *concurrency.Strand
	write  *concurrency.Strand
	sendMu sync.Mutex    // one send decision at a time
	slots  chan struct{} // read chunks waiting for decode
}

// NewIOSocket builds a socket reactor. Without WithExecutors it creates
// and owns its executors.
func NewIOSocket(cfg Config, opts ...Option) (*IOSocket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, api.Wrap(api.ErrCodeInternal, err, "socket reactor config")
	}
	o := buildOptions(opts)
	ios := &IOSocket{
		cfg:     cfg,
		o:       o,
		ioExec:  o.ioExec,
		decExec: o.decExec,
		regs:    make(map[*Socket]*socketReg),
	}
	if ios.ioExec == nil {
		ios.ioExec = cfg.newExecutor("socket-io", cfg.IOWorkers)
		ios.decExec = ios.ioExec
		if cfg.DecodeWorkers > 0 {
			ios.decExec = cfg.newExecutor("socket-decode", cfg.DecodeWorkers)
		}
		ios.ownsExec = true
	}
	o.probes.Register("reactor.sockets", ios.probe)
	return ios, nil
}

// Register starts reading s and delivering events to reg.Handlers.
func (ios *IOSocket) Register(s *Socket, reg api.Registration) error {
	if !s.Connected() {
		return api.ErrClosed
	}
	ios.mu.Lock()
	defer ios.mu.Unlock()
	if ios.closed {
		return api.NewError(api.ErrCodeAborted, "socket reactor closed")
	}
	if _, ok := ios.regs[s]; ok {
		return api.NewError(api.ErrCodeInternal, "socket already registered").WithContext("endpoint", s.ID())
	}
	r := &socketReg{
		registration: newRegistration(s, reg, &ios.o),
		sock:         s,
		decode:       concurrency.NewStrand(ios.decExec),
		write:        concurrency.NewStrand(ios.ioExec),
		slots:        make(chan struct{}, ios.cfg.MaxPendingReads),
	}
	ios.regs[s] = r
	ios.o.metrics.EndpointAdded(kindSocket)

	// a previous Unregister may have left an expired deadline
	s.setReadDeadline(time.Time{})
	r.acquire()
	go ios.readLoop(r)
	r.log.Debug("socket registered", "peer", s.PeerAddress())
	return nil
}

// Unregister stops event delivery for s without closing it. It never
// blocks; the returned channel closes when no task references s anymore,
// after which an external decoder is no longer touched.
func (ios *IOSocket) Unregister(s *Socket) <-chan struct{} {
	ios.mu.Lock()
	r, ok := ios.regs[s]
	delete(ios.regs, s)
	ios.mu.Unlock()
	if !ok {
		done := make(chan struct{})
		close(done)
		return done
	}
	ios.o.metrics.EndpointRemoved(kindSocket)
	done := r.detach()
	s.setReadDeadline(time.Now())
	return done
}

// Registered reports whether s is registered.
func (ios *IOSocket) Registered(s *Socket) bool {
	return ios.lookup(s) != nil
}

// Sockets returns the registered sockets.
func (ios *IOSocket) Sockets() []*Socket {
	ios.mu.Lock()
	defer ios.mu.Unlock()
	out := make([]*Socket, 0, len(ios.regs))
	for s := range ios.regs {
		out = append(out, s)
	}
	return out
}

func (ios *IOSocket) lookup(s *Socket) *socketReg {
	ios.mu.Lock()
	defer ios.mu.Unlock()
	return ios.regs[s]
}

// Send writes pkt to s, taking ownership of it. When nothing is queued one
// non-blocking write is attempted with flags; whatever it leaves is queued
// behind earlier sends and flushed in order. A flush event fires when the
// queue drains. An immediate write failure is returned and closes s.
func (ios *IOSocket) Send(s *Socket, pkt pool.Packet, flags int) error {
	r := ios.lookup(s)
	if r == nil {
		pkt.Release()
		return api.NewError(api.ErrCodeInternal, "send on unregistered socket").WithContext("endpoint", s.ID())
	}
	if r.closing.Load() || !s.Connected() {
		pkt.Release()
		return api.ErrClosed
	}
	size := pkt.Len()
	if size == 0 {
		pkt.Release()
		return nil
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	sent := 0
	if s.Queueing() == 0 && !r.write.Busy() {
		n, err := s.tryWrite(pkt.Bytes(), flags)
		ios.o.metrics.BytesWritten(kindSocket, n)
		if err == nil {
			pkt.Release()
			return nil
		}
		if !iox.IsWouldBlock(err) {
			pkt.Release()
			ios.closeAsync(r, err)
			return err
		}
		sent = n
	}

	rest := pkt
	if sent > 0 {
		rest = pkt.Slice(sent, size)
		pkt.Release()
	}
	left := rest.Len()
	s.addQueueing(left)
	ios.o.metrics.Queueing(kindSocket, left)
	r.acquire()
	if err := r.write.Post(&sendTask{io: ios, reg: r, sender: NewSender(s, rest), size: left}); err != nil {
		return api.Wrap(api.ErrCodeAborted, err, "send")
	}
	return nil
}

// Queue runs runner on the write strand of s, after every earlier send
// and runner. The channel receives its result exactly once, or an
// ErrAborted when it never ran.
func (ios *IOSocket) Queue(s *Socket, runner api.Runner) <-chan error {
	res := make(chan error, 1)
	r := ios.lookup(s)
	if r == nil {
		res <- api.NewError(api.ErrCodeInternal, "queue on unregistered socket").WithContext("endpoint", s.ID())
		return res
	}
	if r.closing.Load() {
		res <- api.Wrap(api.ErrCodeAborted, api.ErrClosed, "runner %s", runner.Name())
		return res
	}
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	r.acquire()
	_ = r.write.Post(&runnerTask{reg: r.registration, runner: runner, res: res})
	return res
}

// dequeue accounts size bytes as no longer queued and returns what is left.
func (ios *IOSocket) dequeue(r *socketReg, size int) uint64 {
	left, underflow := r.sock.subQueueing(size)
	ios.o.metrics.Queueing(kindSocket, -size)
	if underflow {
		r.log.Error("queueing counter underflow", "size", size)
	}
	return left
}

// closeAsync closes r behind the data events already posted.
func (ios *IOSocket) closeAsync(r *socketReg, cause error) {
	ios.post(r, r.decode, func() { r.terminate(cause) }, func(error) { r.terminate(cause) })
}

// failAsync reports a write-path failure on the decode strand, so the
// error and close events follow the data events already posted.
func (ios *IOSocket) failAsync(r *socketReg, err error) {
	ios.post(r, r.decode, func() { r.fail(err) }, func(error) { r.fail(err) })
}

// post runs fn on strand st holding a reference on r. abort replaces fn
// when the executor is gone. It reports whether the task was accepted.
func (ios *IOSocket) post(r *socketReg, st *concurrency.Strand, fn func(), abort func(error)) bool {
	r.acquire()
	return st.Post(&endpointTask{reg: r.registration, run: fn, abort: abort}) == nil
}

func (ios *IOSocket) readLoop(r *socketReg) {
	defer r.release()
	chunk := ios.cfg.ChunkSize
	for {
		select {
		case r.slots <- struct{}{}:
		case <-r.quit:
			return
		}

		buf := ios.o.pool.Get(chunk)
		n, err := r.sock.Read(buf.Extend(chunk))
		buf.Truncate(n)
		ios.o.metrics.BytesRead(kindSocket, n)
		if n > 0 {
			if !ios.postChunk(r, buf, false) {
				return
			}
		} else {
			buf.Release()
			<-r.slots
		}

		if err == nil {
			continue
		}
		if r.stopped() {
			return
		}
		if errors.Is(err, io.EOF) {
			r.log.Debug("peer closed")
			select {
			case r.slots <- struct{}{}:
			case <-r.quit:
				return
			}
			if ios.postChunk(r, ios.o.pool.Get(0), true) {
				ios.post(r, r.decode, func() { r.terminate(nil) }, func(error) { r.terminate(nil) })
			}
			return
		}
		ios.post(r, r.decode, func() { r.fail(err) }, func(error) { r.fail(err) })
		return
	}
}

// postChunk hands buf to the decode strand. The caller holds a slot which
// the task gives back.
func (ios *IOSocket) postChunk(r *socketReg, buf *pool.Buffer, end bool) bool {
	return ios.post(r, r.decode,
		func() {
			defer func() { <-r.slots }()
			r.consume(buf, end)
		},
		func(err error) {
			<-r.slots
			buf.Release()
			r.fail(api.Wrap(api.ErrCodeAborted, err, "decode"))
		})
}

// Close closes every registered socket, emitting their close events, and
// shuts owned executors down. Queued work is aborted. Close waits for the
// close events, so it must not be called from an event handler.
func (ios *IOSocket) Close() error {
	ios.mu.Lock()
	if ios.closed {
		ios.mu.Unlock()
		return nil
	}
	ios.closed = true
	regs := ios.regs
	ios.regs = make(map[*Socket]*socketReg)
	ios.mu.Unlock()

	// Shut every socket first so blocked reads and writes return, then
	// emit the close events on the decode strands, behind pending data.
	type closing struct {
		r    *socketReg
		done chan struct{}
	}
	var err error
	pending := make([]closing, 0, len(regs))
	for _, r := range regs {
		err = multierr.Append(err, r.shut())
		c := closing{r: r, done: make(chan struct{})}
		finish := func() {
			r.terminate(nil)
			close(c.done)
		}
		ios.post(r, r.decode, finish, func(error) { finish() })
		pending = append(pending, c)
	}
	for _, c := range pending {
		<-c.done
		c.r.detach()
		ios.o.metrics.EndpointRemoved(kindSocket)
	}
	if ios.ownsExec {
		ios.ioExec.Close()
		if ios.decExec != ios.ioExec {
			ios.decExec.Close()
		}
	}
	ios.o.probes.Unregister("reactor.sockets")
	return err
}

func (ios *IOSocket) probe() any {
	socks := ios.Sockets()
	out := make([]api.Stats, 0, len(socks))
	for _, s := range socks {
		out = append(out, s.Stats())
	}
	return out
}

// endpointTask is a strand task bound to a registration reference.
type endpointTask struct {
	reg   *registration
	run   func()
	abort func(error)
}

func (t *endpointTask) Run() {
	defer t.reg.release()
	t.run()
}

func (t *endpointTask) Abort(err error) {
	defer t.reg.release()
	if t.abort != nil {
		t.abort(err)
	}
}
