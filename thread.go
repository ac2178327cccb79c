package coro

import (
	"sync/atomic"

	"github.com/loomworks/coro/internal/gls"
)

// threadContext is the per-thread half of the runtime: it owns the modeled
// native stack shared by one coroutine family, tracks which family member is
// currently running, and carries the thread's trace hook.
//
// A context is created lazily by the first coroutine operation on a thread
// and owned by that thread: apart from the exited flag, its fields are only
// touched by whichever family member is currently executing.
type threadContext struct {
	root    *Coroutine
	current *Coroutine

	arena stackArena

	// switches counts completed switches on this thread; it is stamped into
	// suspension records and checked on resume.
	switches uint64

	// origin and event describe the switch in flight, for the trace hook on
	// the arrival side.
	origin *Coroutine
	event  Event

	trace TraceFunc

	// live holds the attached coroutines with stack content, root included.
	live map[*Coroutine]struct{}

	exited atomic.Bool

	// draining breaks recursion between queue draining and the switches it
	// performs.
	draining bool
}

func newThreadContext() *threadContext {
	tc := &threadContext{live: make(map[*Coroutine]struct{})}
	root := newCoroutine(kindRoot, nil, nil)
	root.setState(Active)
	root.stack.stop = unboundedStop
	root.tc.Store(tc)
	tc.root = root
	tc.current = root
	tc.live[root] = struct{}{}
	totalRoots.Add(1)
	return tc
}

// bind associates the calling goroutine with a coroutine for the duration of
// its execution.
func bind(c *Coroutine) { gls.Context().Store(c) }

func unbind() { gls.Context().Clear() }

// Current returns the coroutine executing on the calling thread. The first
// call on a thread creates its context and root coroutine; the root
// represents the thread's original stack and is Active from birth.
func Current() *Coroutine {
	g := gls.Context()
	if c, ok := g.Load().(*Coroutine); ok {
		c.tc.Load().drainOwned()
		return c
	}
	tc := newThreadContext()
	g.Store(tc.root)
	tc.drainOwned()
	return tc.root
}

// Root returns the root coroutine of the calling thread, creating the thread
// context if needed.
func Root() *Coroutine {
	return Current().tc.Load().root
}

// ExitThread tears down the calling thread's coroutine family. It must be
// called from the root coroutine, with no spawned family member running.
//
// Coroutines still suspended at that point can never be resumed: no code can
// run on a stack that no longer exists. Their resumability is revoked here
// and their remaining resources are queued for deferred destruction under
// the global lock; their backing goroutines unwind without forwarding a
// result. Switching into them afterwards fails with ErrDeadThread.
//
// Go exposes no thread destructor, so the embedder calls this explicitly
// where a host runtime would hook thread exit.
func ExitThread() error {
	cur := Current()
	tc := cur.tc.Load()
	if tc.current != tc.root {
		return ErrNotRoot
	}
	tc.exited.Store(true)
	for c := range tc.live {
		if c == tc.root {
			continue
		}
		c.unresumable.Store(true)
		c.stack.release()
		c.exec = nil
		enqueueDestroy(c)
	}
	tc.live = nil
	root := tc.root
	root.stack.release()
	root.exec = nil
	root.setState(Dead)
	totalRoots.Add(-1)
	unbind()
	return nil
}

// detach removes a dead coroutine from its thread's bookkeeping.
func (tc *threadContext) detach(c *Coroutine) {
	if tc.live != nil {
		delete(tc.live, c)
	}
}
