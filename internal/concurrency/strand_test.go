package concurrency_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-stream/internal/concurrency"
)

func TestStrandPreservesOrder(t *testing.T) {
	e := concurrency.NewExecutor("test", 8)
	defer e.Close()
	s := concurrency.NewStrand(e)

	const total = 1000
	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(total)
	for i := 0; i < total; i++ {
		i := i
		require.NoError(t, s.Post(concurrency.TaskFunc(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		})))
	}
	wg.Wait()
	require.Len(t, got, total)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestStrandNeverReentrant(t *testing.T) {
	e := concurrency.NewExecutor("test", 8)
	defer e.Close()
	s := concurrency.NewStrand(e)

	var active, violations atomic.Int32
	var wg sync.WaitGroup
	const posters, per = 8, 200
	wg.Add(posters * per)
	for p := 0; p < posters; p++ {
		go func() {
			for i := 0; i < per; i++ {
				_ = s.Post(concurrency.TaskFunc(func() {
					if active.Add(1) != 1 {
						violations.Add(1)
					}
					time.Sleep(time.Microsecond)
					active.Add(-1)
					wg.Done()
				}))
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, violations.Load())
}

func TestStrandsDoNotBlockEachOther(t *testing.T) {
	e := concurrency.NewExecutor("test", 2)
	defer e.Close()
	a := concurrency.NewStrand(e)
	b := concurrency.NewStrand(e)

	release := make(chan struct{})
	require.NoError(t, a.Post(concurrency.TaskFunc(func() { <-release })))

	done := make(chan struct{})
	require.NoError(t, b.Post(concurrency.TaskFunc(func() { close(done) })))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("strand b blocked behind strand a")
	}
	close(release)
}

func TestStrandAbortsAfterClose(t *testing.T) {
	e := concurrency.NewExecutor("test", 1)
	s := concurrency.NewStrand(e)
	e.Close()

	task := &abortTask{run: func() { t.Error("must not run") }, aborted: make(chan error, 1)}
	err := s.Post(task)
	assert.ErrorIs(t, err, concurrency.ErrExecutorClosed)
	assert.ErrorIs(t, <-task.aborted, concurrency.ErrExecutorClosed)
	assert.False(t, s.Busy())
	assert.Zero(t, s.Pending())
}
