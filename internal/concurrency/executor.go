// File: internal/concurrency/executor.go
// Package concurrency implements a fixed-size task executor.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Executor dispatches tasks across worker goroutines from one FIFO queue.
// Tasks still queued when the executor closes are aborted, not dropped.

package concurrency

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-stream/internal/logger"
)

// Task is a unit of work. Abort replaces Run when the executor shuts down
// before the task reached a worker.
type Task interface {
	Run()
	Abort(err error)
}

// TaskFunc is a unit of work without abort handling.
type TaskFunc func()

// Run calls f.
func (f TaskFunc) Run() { f() }

// Abort does nothing.
func (TaskFunc) Abort(error) {}

// Executor manages a pool of worker goroutines.
type Executor struct {
	name       string
	mu         sync.Mutex
	cond       *sync.Cond
	pending    *queue.Queue // of Task
	closed     bool
	numWorkers int
	wg         sync.WaitGroup
	log        *slog.Logger
	cpus       []int // pin targets, nil when unpinned

	// statistics
	totalTasks     atomic.Int64
	completedTasks atomic.Int64
	abortedTasks   atomic.Int64
	panics         atomic.Int64
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithCPUPinning binds worker i to the i-th allowed CPU, wrapping around.
// Pinned threads exit together with their worker.
func WithCPUPinning() ExecutorOption {
	return func(e *Executor) { e.cpus = AllowedCPUs() }
}

// NewExecutor creates a new Executor with the given number of workers.
// If numWorkers <= 0, defaults to runtime.NumCPU().
func NewExecutor(name string, numWorkers int, opts ...ExecutorOption) *Executor {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	e := &Executor{
		name:       name,
		pending:    queue.New(),
		numWorkers: numWorkers,
		log:        logger.Logger("concurrency").With("executor", name),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cond = sync.NewCond(&e.mu)
	e.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go e.worker(i)
	}
	return e
}

// Submit enqueues a task for execution, returning ErrExecutorClosed if
// executor is closed. It never blocks on a busy pool.
func (e *Executor) Submit(task Task) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.pending.Add(task)
	e.totalTasks.Add(1)
	e.cond.Signal()
	e.mu.Unlock()
	return nil
}

// Go submits a plain function.
func (e *Executor) Go(fn func()) error {
	return e.Submit(TaskFunc(fn))
}

// NumWorkers returns the number of worker goroutines.
func (e *Executor) NumWorkers() int {
	return e.numWorkers
}

// Closed reports whether Close was called.
func (e *Executor) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close stops accepting tasks, aborts every queued task with
// ErrExecutorClosed and waits for running tasks to return. It must not be
// called from inside a task.
func (e *Executor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	var aborted []Task
	for e.pending.Length() > 0 {
		aborted = append(aborted, e.pending.Remove().(Task))
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	for _, t := range aborted {
		e.abortedTasks.Add(1)
		e.abort(t, ErrExecutorClosed)
	}
	e.wg.Wait()
	e.log.Debug("executor closed", "aborted", len(aborted))
}

// Stats returns basic executor metrics.
func (e *Executor) Stats() map[string]int64 {
	e.mu.Lock()
	pending := int64(e.pending.Length())
	e.mu.Unlock()
	return map[string]int64{
		"total_tasks":     e.totalTasks.Load(),
		"completed_tasks": e.completedTasks.Load(),
		"aborted_tasks":   e.abortedTasks.Load(),
		"pending_tasks":   pending,
		"panics":          e.panics.Load(),
		"num_workers":     int64(e.numWorkers),
		"pinned":          int64(len(e.cpus)),
	}
}

func (e *Executor) worker(id int) {
	defer e.wg.Done()
	if len(e.cpus) > 0 {
		cpu := e.cpus[id%len(e.cpus)]
		if err := PinCurrentThread(cpu); err != nil {
			e.log.Warn("worker not pinned", "worker", id, "cpu", cpu, "error", err)
		}
	}
	for {
		e.mu.Lock()
		for e.pending.Length() == 0 && !e.closed {
			e.cond.Wait()
		}
		if e.pending.Length() == 0 {
			e.mu.Unlock()
			return
		}
		task := e.pending.Remove().(Task)
		e.mu.Unlock()

		e.run(task)
		e.completedTasks.Add(1)
	}
}

// run executes the task, recovering from panics to keep the worker alive.
func (e *Executor) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error("task panic", "panic", fmt.Sprint(r))
		}
	}()
	task.Run()
}

func (e *Executor) abort(task Task, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.log.Error("task abort panic", "panic", fmt.Sprint(r))
		}
	}()
	task.Abort(err)
}
