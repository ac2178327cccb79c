package coro

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// totalRoots counts live root coroutines process-wide, one per thread
// context.
var totalRoots atomic.Int64

// RootCount returns the number of live root coroutines in the process.
func RootCount() int64 {
	return totalRoots.Load()
}

// destroyQueue holds coroutines whose destruction was requested from a
// thread that cannot perform it: killing a coroutine is a resume on its own
// thread, and a coroutine orphaned by thread exit still has resources to
// reap. The queue is the only cross-thread mutation point of the runtime
// besides the root counter.
var destroyQueue struct {
	mutex sync.Mutex
	list  []*Coroutine
}

// enqueueDestroy defers a coroutine's destruction and schedules a drain
// through the host, which runs it somewhere with full interpreter access.
func enqueueDestroy(c *Coroutine) {
	destroyQueue.mutex.Lock()
	destroyQueue.list = append(destroyQueue.list, c)
	destroyQueue.mutex.Unlock()
	currentHost().Schedule(DrainDestroyQueue)
}

// DrainDestroyQueue reaps queued coroutines whose threads have exited. It is
// scheduled through the host after every deferred-destruction request and is
// safe to call from any goroutine; entries owned by live threads are left
// for their own thread's next coroutine operation.
func DrainDestroyQueue() {
	destroyQueue.mutex.Lock()
	pending := destroyQueue.list
	destroyQueue.list = nil
	var keep []*Coroutine
	for _, c := range pending {
		if c.unresumable.Load() || c.IsDead() {
			finalizeLocked(c)
		} else {
			keep = append(keep, c)
		}
	}
	destroyQueue.list = append(destroyQueue.list, keep...)
	destroyQueue.mutex.Unlock()
}

// drainOwned delivers pending kills addressed to this thread. It runs at the
// start of every coroutine operation on the thread.
func (tc *threadContext) drainOwned() {
	if tc == nil || tc.draining || tc.exited.Load() {
		return
	}
	destroyQueue.mutex.Lock()
	pending := destroyQueue.list
	destroyQueue.list = nil
	var mine, keep []*Coroutine
	for _, c := range pending {
		switch {
		case c.unresumable.Load() || c.IsDead():
			finalizeLocked(c)
		case c.tc.Load() == tc:
			mine = append(mine, c)
		default:
			keep = append(keep, c)
		}
	}
	destroyQueue.list = append(destroyQueue.list, keep...)
	destroyQueue.mutex.Unlock()

	if len(mine) == 0 {
		return
	}
	tc.draining = true
	defer func() { tc.draining = false }()
	var requeue []*Coroutine
	for _, c := range mine {
		if c == tc.current {
			// The victim is running right now; nothing can be raised into
			// it from outside. Revisit at its next suspension point.
			requeue = append(requeue, c)
			continue
		}
		if c.IsActive() {
			// Resume just long enough to deliver the exit marker.
			_ = c.Kill()
		}
	}
	if len(requeue) > 0 {
		destroyQueue.mutex.Lock()
		destroyQueue.list = append(destroyQueue.list, requeue...)
		destroyQueue.mutex.Unlock()
	}
}

// finalizeUnresumable reaps a coroutine stranded by its thread's exit.
func finalizeUnresumable(c *Coroutine) {
	destroyQueue.mutex.Lock()
	finalizeLocked(c)
	destroyQueue.mutex.Unlock()
}

// finalizeLocked releases what remains of a coroutine that can no longer
// run, and unparks its backing goroutine so it can unwind. Callers hold
// destroyQueue.mutex, which makes the one-time channel close safe.
func finalizeLocked(c *Coroutine) {
	c.stack.release()
	c.exec = nil
	c.setState(Dead)
	if !c.released {
		c.released = true
		if c.kind == kindSpawned {
			close(c.resume)
		}
	}
}

// fatalf reports an unrecoverable runtime condition and aborts the process.
// It is reserved for states where the modeled native stack can no longer be
// trusted: a failed pivot, a corrupt suspension record, or a switch with no
// live coroutine left to receive control.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "coro: fatal: "+format+"\n", args...)
	os.Exit(2)
}
