// ABOUTME: Bounded pool of goroutines for processing work scheduled by the dispatcher
// ABOUTME: Admission is non-blocking so a saturated pool never stalls a connection's read loop

package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrPoolFull is returned when every task slot is busy.
var ErrPoolFull = errors.New("task pool is full")

// ErrPoolClosed is returned after Close.
var ErrPoolClosed = errors.New("task pool is closed")

// TaskPool runs tasks on their own goroutines, at most size at a time.
type TaskPool struct {
	group    errgroup.Group
	inflight atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewTaskPool creates a pool with size concurrent slots.
func NewTaskPool(size int) *TaskPool {
	if size <= 0 {
		size = 256
	}
	p := &TaskPool{}
	p.group.SetLimit(size)
	return p
}

// Go starts task if a slot is free. onPanic runs on the task's goroutine if
// task panics; the pool itself keeps going.
func (p *TaskPool) Go(task func(), onPanic func(any)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.inflight.Add(1)
	ok := p.group.TryGo(func() error {
		defer p.inflight.Add(-1)
		defer func() {
			if r := recover(); r != nil && onPanic != nil {
				onPanic(r)
			}
		}()
		task()
		return nil
	})
	if !ok {
		p.inflight.Add(-1)
		return ErrPoolFull
	}
	return nil
}

// InFlight returns the number of running tasks.
func (p *TaskPool) InFlight() int {
	return int(p.inflight.Load())
}

// Close refuses new tasks and waits for running ones to finish.
func (p *TaskPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	_ = p.group.Wait()
}
