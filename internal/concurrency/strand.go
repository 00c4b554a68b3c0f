// File: internal/concurrency/strand.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Strand serializes the tasks of one endpoint on a shared Executor.

package concurrency

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// strandBatch bounds how many tasks one drain runs before yielding the
// worker to other strands.
const strandBatch = 64

// Strand runs posted tasks one at a time, in post order. Only the poster
// that flips the in-flight marker submits a drain to the executor, so two
// tasks of the same strand never run concurrently while distinct strands
// proceed in parallel.
type Strand struct {
	exec     *Executor
	mu       sync.Mutex // guards q only, never held while a task runs
	q        *queue.Queue
	inflight atomic.Bool
}

// NewStrand binds a strand to exec.
func NewStrand(exec *Executor) *Strand {
	return &Strand{exec: exec, q: queue.New()}
}

// Post appends t. If the executor is closed every queued task, t
// included, is aborted with ErrExecutorClosed and that error is returned;
// the caller must not report it a second time.
func (s *Strand) Post(t Task) error {
	s.mu.Lock()
	s.q.Add(t)
	s.mu.Unlock()
	return s.schedule()
}

// Pending returns the number of tasks waiting in the strand.
func (s *Strand) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Length()
}

// Busy reports whether a drain is scheduled or running.
func (s *Strand) Busy() bool { return s.inflight.Load() }

func (s *Strand) schedule() error {
	if !s.inflight.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.exec.Submit(strandDrain{s}); err != nil {
		s.abortAll(err)
		return err
	}
	return nil
}

func (s *Strand) abortAll(err error) {
	for {
		s.mu.Lock()
		if s.q.Length() == 0 {
			s.inflight.Store(false)
			s.mu.Unlock()
			return
		}
		t := s.q.Remove().(Task)
		s.mu.Unlock()
		s.exec.abort(t, err)
	}
}

// strandDrain is the executor task running a batch of strand tasks.
type strandDrain struct{ s *Strand }

func (d strandDrain) Run() {
	s := d.s
	for i := 0; i < strandBatch; i++ {
		s.mu.Lock()
		if s.q.Length() == 0 {
			s.inflight.Store(false)
			s.mu.Unlock()
			return
		}
		t := s.q.Remove().(Task)
		s.mu.Unlock()
		s.exec.run(t)
	}
	// still holding the marker: hand the rest to a fresh drain
	if err := s.exec.Submit(d); err != nil {
		s.abortAll(err)
	}
}

func (d strandDrain) Abort(err error) { d.s.abortAll(err) }
