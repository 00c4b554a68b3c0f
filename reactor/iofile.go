// File: reactor/iofile.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// IOFile runs load, read-decode and write requests of registered files on
// one strand per file, so a file's cursor is never used concurrently.

package reactor

import (
	"errors"
	"io"
	"sync"

	"go.uber.org/multierr"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/internal/concurrency"
	"github.com/momentics/hioload-stream/pool"
)

// IOFile is the file reactor.
type IOFile struct {
	cfg      Config
	o        options
	exec     *concurrency.Executor
	ownsExec bool

	mu     sync.Mutex
	regs   map[*File]*fileReg
	closed bool
}

type fileReg struct {
	*registration
	file   *File
	strand *concurrency.Strand
}

// NewIOFile builds a file reactor. File work is blocking, so it runs on
// the io executor given by WithExecutors, or on an owned one.
func NewIOFile(cfg Config, opts ...Option) (*IOFile, error) {
	if err := cfg.Validate(); err != nil {
		return nil, api.Wrap(api.ErrCodeInternal, err, "file reactor config")
	}
	o := buildOptions(opts)
	iof := &IOFile{
		cfg:  cfg,
		o:    o,
		exec: o.ioExec,
		regs: make(map[*File]*fileReg),
	}
	if iof.exec == nil {
		iof.exec = cfg.newExecutor("file-io", cfg.IOWorkers)
		iof.ownsExec = true
	}
	o.probes.Register("reactor.files", iof.probe)
	return iof, nil
}

// Register binds reg to f. The file is opened lazily by Load or by the
// first read or write.
func (iof *IOFile) Register(f *File, reg api.Registration) error {
	iof.mu.Lock()
	defer iof.mu.Unlock()
	if iof.closed {
		return api.NewError(api.ErrCodeAborted, "file reactor closed")
	}
	if _, ok := iof.regs[f]; ok {
		return api.NewError(api.ErrCodeInternal, "file already registered").WithContext("path", f.Path())
	}
	iof.regs[f] = &fileReg{
		registration: newRegistration(f, reg, &iof.o),
		file:         f,
		strand:       concurrency.NewStrand(iof.exec),
	}
	iof.o.metrics.EndpointAdded(kindFile)
	return nil
}

// Unregister stops event delivery for f without closing it. The returned
// channel closes once no queued request references f.
func (iof *IOFile) Unregister(f *File) <-chan struct{} {
	iof.mu.Lock()
	r, ok := iof.regs[f]
	delete(iof.regs, f)
	iof.mu.Unlock()
	if !ok {
		done := make(chan struct{})
		close(done)
		return done
	}
	iof.o.metrics.EndpointRemoved(kindFile)
	return r.detach()
}

// Files returns the registered files.
func (iof *IOFile) Files() []*File {
	iof.mu.Lock()
	defer iof.mu.Unlock()
	out := make([]*File, 0, len(iof.regs))
	for f := range iof.regs {
		out = append(out, f)
	}
	return out
}

func (iof *IOFile) lookup(f *File) (*fileReg, error) {
	iof.mu.Lock()
	r := iof.regs[f]
	iof.mu.Unlock()
	if r == nil {
		return nil, api.NewError(api.ErrCodeInternal, "file not registered").WithContext("path", f.Path())
	}
	if r.closing.Load() {
		return nil, api.ErrClosed
	}
	return r, nil
}

// Load opens f asynchronously. A failure is reported as an error event.
func (iof *IOFile) Load(f *File) error {
	r, err := iof.lookup(f)
	if err != nil {
		return err
	}
	iof.post(r, func() { iof.load(r) }, nil)
	return nil
}

// Read reads chunks of up to size bytes (ChunkSize when size <= 0) and
// feeds them to the decoder. Without a decoder one chunk is delivered per
// call. With one, reading continues while the decoder completes units or
// keeps bytes waiting for more, and pauses when it captures the data.
// End of file is delivered with end set, possibly on an empty buffer.
func (iof *IOFile) Read(f *File, size int) error {
	r, err := iof.lookup(f)
	if err != nil {
		return err
	}
	if size <= 0 {
		size = iof.cfg.ChunkSize
	}
	iof.postRead(r, size)
	return nil
}

// Write appends pkt at the cursor of f, taking ownership of it. A flush
// event fires when no write remains queued.
func (iof *IOFile) Write(f *File, pkt pool.Packet) error {
	r, err := iof.lookup(f)
	if err != nil {
		pkt.Release()
		return err
	}
	if !f.Mode().Writable() {
		pkt.Release()
		return api.NewError(api.ErrCodeInternal, "write on file opened for reading").WithContext("path", f.Path())
	}
	size := pkt.Len()
	f.addQueueing(size)
	iof.o.metrics.Queueing(kindFile, size)
	iof.post(r,
		func() { iof.write(r, pkt, size) },
		func(err error) {
			pkt.Release()
			iof.dequeue(r, size)
			r.fail(api.Wrap(api.ErrCodeAborted, err, "write of %d bytes", size))
		})
	return nil
}

func (iof *IOFile) post(r *fileReg, fn func(), abort func(error)) {
	if abort == nil {
		abort = func(err error) { r.emitError(api.Wrap(api.ErrCodeAborted, err, "file request")) }
	}
	r.acquire()
	_ = r.strand.Post(&endpointTask{reg: r.registration, run: fn, abort: abort})
}

func (iof *IOFile) postRead(r *fileReg, size int) {
	iof.post(r, func() { iof.read(r, size) }, nil)
}

func (iof *IOFile) load(r *fileReg) bool {
	if r.file.Loaded() {
		return true
	}
	if err := r.file.Load(); err != nil {
		r.emitError(err)
		return false
	}
	r.log.Debug("file loaded", "path", r.file.Path())
	return true
}

func (iof *IOFile) read(r *fileReg, size int) {
	if r.closing.Load() || r.detached.Load() || !iof.load(r) {
		return
	}
	buf := iof.o.pool.Get(size)
	n, err := r.file.Read(buf.Extend(size))
	buf.Truncate(n)
	iof.o.metrics.BytesRead(kindFile, n)
	end := false
	if err != nil {
		if !errors.Is(err, io.EOF) {
			buf.Release()
			r.fail(err)
			return
		}
		end = true
	}
	more := r.consume(buf, end)
	if more && !end && r.dec != nil {
		iof.postRead(r, size)
	}
}

func (iof *IOFile) write(r *fileReg, pkt pool.Packet, size int) {
	defer pkt.Release()
	if r.closing.Load() {
		iof.dequeue(r, size)
		r.fail(api.Wrap(api.ErrCodeAborted, api.ErrClosed, "write of %d bytes", size))
		return
	}
	if !iof.load(r) {
		iof.dequeue(r, size)
		return
	}
	err := r.file.Write(pkt.Bytes())
	if err == nil {
		iof.o.metrics.BytesWritten(kindFile, size)
	}
	left := iof.dequeue(r, size)
	if err != nil {
		r.fail(err)
		return
	}
	if left == 0 {
		r.emitFlush()
	}
}

func (iof *IOFile) dequeue(r *fileReg, size int) uint64 {
	left, underflow := r.file.subQueueing(size)
	iof.o.metrics.Queueing(kindFile, -size)
	if underflow {
		r.log.Error("queueing counter underflow", "size", size)
	}
	return left
}

// Close closes every registered file behind its queued requests, emitting
// the close events, and shuts an owned executor down. It must not be
// called from an event handler.
func (iof *IOFile) Close() error {
	iof.mu.Lock()
	if iof.closed {
		iof.mu.Unlock()
		return nil
	}
	iof.closed = true
	regs := iof.regs
	iof.regs = make(map[*File]*fileReg)
	iof.mu.Unlock()

	// close each file on its strand, behind the requests already queued
	type closing struct {
		r    *fileReg
		err  error
		done chan struct{}
	}
	pending := make([]*closing, 0, len(regs))
	for f, r := range regs {
		c := &closing{r: r, done: make(chan struct{})}
		finish := func() {
			c.err = f.Close()
			r.terminate(nil)
			close(c.done)
		}
		iof.post(r, finish, func(error) { finish() })
		pending = append(pending, c)
	}
	var err error
	for _, c := range pending {
		<-c.done
		err = multierr.Append(err, c.err)
		c.r.detach()
		iof.o.metrics.EndpointRemoved(kindFile)
	}
	if iof.ownsExec {
		iof.exec.Close()
	}
	iof.o.probes.Unregister("reactor.files")
	return err
}

func (iof *IOFile) probe() any {
	files := iof.Files()
	out := make([]api.Stats, 0, len(files))
	for _, f := range files {
		out = append(out, f.Stats())
	}
	return out
}
