// File: reactor/reactor.go
// Author: clustersched
//
// Reactor is an event dispatcher with a work-anchor pattern: its worker
// loop (run) executes queued I/O tasks in submission order and returns
// once no task is pending and no work-anchor is held. Exactly one worker
// goroutine ever executes run for a given Reactor; every task's
// completion therefore observes a single, consistent thread of
// execution, matching the original io_service::run() contract.
package reactor

import (
	"log"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/clustersched/messaging/affinity"
)

// Task is one queued blocking operation: a length-prefix or payload read
// or write, run to completion on the reactor's worker goroutine.
type Task func()

// Reactor drains a FIFO queue of Tasks on a single worker goroutine.
type Reactor struct {
	tasks chan Task
	wake  chan struct{}
	done  chan struct{}

	pending int64 // atomic: tasks submitted but not yet completed
	anchors int64 // atomic: work-anchors currently held

	pinCPU    int
	pinCPUSet bool

	startOnce sync.Once
}

// New creates a Reactor with no worker running yet. Start (or the first
// call that needs one) spawns the single worker goroutine.
func New() *Reactor {
	return &Reactor{
		tasks: make(chan Task),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// PinTo pins the reactor's worker goroutine to the given logical CPU once
// it starts, via affinity.Pin. Call it before Start (or before the first
// Submit, which starts the worker implicitly); it has no effect once the
// worker is already running.
func (r *Reactor) PinTo(cpuID int) {
	r.pinCPU = cpuID
	r.pinCPUSet = true
}

// Start spawns the reactor's worker goroutine if it has not been spawned
// yet. Calling Start more than once joins the existing worker rather than
// spawning a second one, matching "spawn or join" from the channel's
// Establish contract.
func (r *Reactor) Start() {
	r.startOnce.Do(func() {
		go r.run()
	})
}

// run is the reactor's single worker goroutine. It returns, terminating
// the goroutine, exactly when no task is in flight and no work-anchor is
// held -- i.e. when the reactor has no reason left to stay alive.
func (r *Reactor) run() {
	defer close(r.done)
	if r.pinCPUSet {
		runtime.LockOSThread()
		if err := affinity.Pin(r.pinCPU); err != nil {
			log.Printf("reactor: pin to cpu %d failed: %v", r.pinCPU, err)
		}
	}
	for {
		select {
		case task := <-r.tasks:
			task()
			if atomic.AddInt64(&r.pending, -1) == 0 && atomic.LoadInt64(&r.anchors) == 0 {
				return
			}
		case <-r.wake:
			if atomic.LoadInt64(&r.pending) == 0 && atomic.LoadInt64(&r.anchors) == 0 {
				return
			}
		}
	}
}

// Submit queues a task for execution on the reactor's worker goroutine.
// It implicitly registers interest: the reactor will not exit for lack of
// work until this task (and any other queued or in-flight task) has run.
// Submit starts the worker if it is not already running.
func (r *Reactor) Submit(task Task) {
	r.Start()
	atomic.AddInt64(&r.pending, 1)
	r.tasks <- task
}

// Wait blocks until the reactor's worker goroutine has exited, i.e. until
// run's termination condition (no pending task, no held anchor) holds and
// has been observed. Useful for deterministic teardown in tests; ordinary
// callers do not need to call it, since the worker exits and the goroutine
// is reclaimed on its own.
func (r *Reactor) Wait() {
	<-r.done
}

// NewAnchor creates and returns a held work-anchor: while it exists and
// has not been released, the reactor will not exit for lack of work even
// if its task queue is empty. A Channel holds exactly one anchor for the
// lifetime of an established connection or a pending async operation.
func (r *Reactor) NewAnchor() *WorkAnchor {
	atomic.AddInt64(&r.anchors, 1)
	return &WorkAnchor{r: r}
}

// WorkAnchor is a token whose existence keeps an otherwise-idle Reactor
// from exiting. Release is idempotent.
type WorkAnchor struct {
	r        *Reactor
	released atomic.Bool
}

// Release drops the anchor. If this was the last held anchor and no task
// is in flight, the reactor's worker goroutine wakes and exits.
func (a *WorkAnchor) Release() {
	if a == nil || !a.released.CompareAndSwap(false, true) {
		return
	}
	if atomic.AddInt64(&a.r.anchors, -1) == 0 {
		select {
		case a.r.wake <- struct{}{}:
		default:
		}
	}
}
