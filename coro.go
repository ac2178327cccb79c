// Package coro implements cooperative, stack-switching coroutines that share
// a single thread of control per family, transferring it only through
// explicit switches.
//
// Every thread that uses the package gets a root coroutine representing its
// original stack, created lazily by the first coroutine operation. Spawned
// coroutines form a tree through their parent links, rooted at the thread's
// root coroutine: when a coroutine finishes, control and its final result
// fall back to the nearest live ancestor, and switching to a dead coroutine
// falls through to its ancestry the same way.
//
// Scheduling is strictly cooperative. A switch does not return until some
// coroutine switches back, and a coroutine that never yields cannot be
// interrupted from outside; killing is an exception delivered at the next
// switch into the victim. Once started, a coroutine is affine to the thread
// it first ran on.
//
// Coroutines are backed by goroutines parked on a handoff channel, so the
// host runtime's bookkeeping travels with each coroutine: the embedder
// supplies a Host to capture and restore interpreter state around every
// switch.
package coro

// Option configures a coroutine at creation.
type Option func(*Coroutine)

// WithParent sets the new coroutine's parent instead of the calling
// coroutine.
func WithParent(p *Coroutine) Option {
	return func(c *Coroutine) {
		if p != nil {
			c.parent = p
		}
	}
}

// New creates a coroutine that will execute entry when first switched into.
// The coroutine starts in the NotStarted state with no stack resources and
// the calling coroutine as its parent.
//
// entry may be nil and supplied later with SetEntry, but must be set by the
// time of the first switch-in.
func New(entry Func, opts ...Option) *Coroutine {
	c := newCoroutine(kindSpawned, entry, Current())
	for _, opt := range opts {
		opt(c)
	}
	return c
}
