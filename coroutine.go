package coro

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is a coroutine's lifecycle state.
type State int32

const (
	// NotStarted means the coroutine was created but never switched into.
	// It holds no stack bytes.
	NotStarted State = iota

	// Active means the coroutine has live or evacuated stack content. It is
	// either the current coroutine of its thread or suspended at a switch.
	Active

	// Dead is terminal: the entry point returned, raised, or the coroutine
	// was killed. A dead coroutine holds no stack bytes but may still be
	// referenced, for example as a former parent.
	Dead
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Active:
		return "active"
	case Dead:
		return "dead"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type kind uint8

const (
	// kindSpawned coroutines are user-created and run a supplied entry point.
	kindSpawned kind = iota

	// kindRoot coroutines represent a thread's original stack. One exists
	// per thread context; it is born Active and cannot be bootstrapped.
	kindRoot
)

// Func is a coroutine entry point. The args are the payload of the switch
// that started the coroutine. The returned value (or error) is forwarded to
// the nearest live ancestor when the coroutine finishes.
type Func func(args ...any) (any, error)

// switchArgs is the transient payload moved into a coroutine immediately
// before a switch and consumed immediately after arrival. A non-nil err
// encodes an exception-to-raise instead of a value delivery.
type switchArgs struct {
	values []any
	err    error
}

// result collapses the positional payload the way switch results are
// delivered: no values arrive as nil, a single value arrives as itself, and
// multiple values arrive as a slice.
func (a switchArgs) result() any {
	switch len(a.values) {
	case 0:
		return nil
	case 1:
		return a.values[0]
	default:
		return a.values
	}
}

var seqCounter atomic.Uint64

// Coroutine is a cooperatively scheduled unit of execution. Control moves
// between coroutines only through explicit switches; a suspended coroutine
// keeps its state until it is switched into again or dies.
//
// Once started, a coroutine is affine to the thread context it first ran on,
// and all of its mutable state except the fields noted below is touched only
// by that thread, one coroutine at a time. The lifecycle state and thread
// binding are atomic because Kill and switch preconditions may inspect them
// from other threads.
type Coroutine struct {
	id  uuid.UUID
	seq uint64

	kind  kind
	state atomic.Int32

	// entry is settable until the first switch-in, nil afterwards.
	entry Func

	// parent forms a tree rooted at the thread's root coroutine. Never nil
	// for a spawned coroutine until death, always nil for a root.
	parent *Coroutine

	// tc is the owning thread context, set when the coroutine first runs.
	tc atomic.Pointer[threadContext]

	// unresumable is set when the owning thread exits while the coroutine is
	// still suspended: it can never run again.
	unresumable atomic.Bool

	// released guards the one-time close of resume during deferred cleanup.
	released bool

	stack StackState
	exec  ExecState
	args  switchArgs

	// suspendSwitch is the thread's switch counter stamped into the
	// suspension record, checked back on resume.
	suspendSwitch uint64

	// resume parks and wakes the backing goroutine. The payload travels in
	// args; the channel only provides the handoff ordering.
	resume chan struct{}
}

func newCoroutine(k kind, entry Func, parent *Coroutine) *Coroutine {
	return &Coroutine{
		id:     uuid.New(),
		seq:    seqCounter.Add(1),
		kind:   k,
		entry:  entry,
		parent: parent,
		resume: make(chan struct{}),
	}
}

// ID returns the coroutine's identity, stable for the object's lifetime.
func (c *Coroutine) ID() uuid.UUID { return c.id }

// State returns the coroutine's lifecycle state.
func (c *Coroutine) State() State { return State(c.state.Load()) }

func (c *Coroutine) setState(s State) { c.state.Store(int32(s)) }

// IsStarted reports whether the coroutine was ever switched into.
func (c *Coroutine) IsStarted() bool { return c.State() != NotStarted }

// IsActive reports whether the coroutine has live or evacuated stack
// content: started and not yet dead.
func (c *Coroutine) IsActive() bool { return c.State() == Active }

// IsDead reports whether the coroutine finished or was killed.
func (c *Coroutine) IsDead() bool { return c.State() == Dead }

// IsRoot reports whether the coroutine represents a thread's original stack.
func (c *Coroutine) IsRoot() bool { return c.kind == kindRoot }

// Parent returns the coroutine's parent, or nil for a root coroutine.
func (c *Coroutine) Parent() *Coroutine { return c.parent }

// SetParent reparents the coroutine. The new parent must not be nil, must
// not be the coroutine itself or one of its descendants, and once the
// coroutine has started it must belong to the same thread.
func (c *Coroutine) SetParent(p *Coroutine) error {
	if p == nil {
		return ErrNilParent
	}
	if c.kind == kindRoot {
		return ErrRootParent
	}
	for a := p; a != nil; a = a.parent {
		if a == c {
			return ErrCyclicParent
		}
	}
	if c.IsStarted() {
		ptc, unresumable := lineageThread(p)
		if unresumable {
			return ErrDeadThread
		}
		if ptc != nil && ptc != c.tc.Load() {
			return ErrDifferentThread
		}
	}
	c.parent = p
	return nil
}

// SetEntry replaces the coroutine's entry point. It fails once the coroutine
// has started.
func (c *Coroutine) SetEntry(f Func) error {
	if c.IsStarted() {
		return ErrStarted
	}
	c.entry = f
	return nil
}

// resolve walks the coroutine and then its ancestors, skipping dead links,
// and returns the first coroutine that can receive control. Returns nil when
// the whole chain is dead.
func (c *Coroutine) resolve() *Coroutine {
	for t := c; t != nil; t = t.parent {
		if !t.IsDead() {
			return t
		}
	}
	return nil
}

// lineageThread finds the thread context the coroutine would run on by
// walking its ancestry for the first started coroutine. It also reports
// whether that coroutine can no longer be resumed because its thread exited.
func lineageThread(c *Coroutine) (*threadContext, bool) {
	for t := c; t != nil; t = t.parent {
		if t.unresumable.Load() {
			return nil, true
		}
		if tc := t.tc.Load(); tc != nil {
			return tc, tc.exited.Load()
		}
	}
	return nil, false
}

// Kill terminates the coroutine.
//
// A coroutine that never started becomes Dead immediately, with no stack
// resources ever allocated. An active coroutine on the caller's thread is
// resumed just long enough to deliver the Exit marker, so its entry point
// can run deferred cleanup; it is reparented to the caller for the delivery
// so that its death returns control here. An active coroutine on another
// thread cannot be
// resumed from here; it is queued for deferred destruction and revisited the
// next time its own thread performs a coroutine operation.
//
// Killing the calling coroutine returns the Exit marker as an error for the
// caller to propagate.
func (c *Coroutine) Kill() error {
	switch c.State() {
	case Dead:
		return nil
	case NotStarted:
		c.setState(Dead)
		c.entry = nil
		return nil
	}
	if c.unresumable.Load() {
		// The owning thread already exited; only resources remain.
		finalizeUnresumable(c)
		return nil
	}
	cur := Current()
	if c == cur {
		return &Exit{}
	}
	if c.tc.Load() != cur.tc.Load() {
		enqueueDestroy(c)
		return nil
	}
	// Reparent the victim to the killer so that its death returns control
	// here instead of resuming the original parent, unless that would create
	// a cycle (the killer being a descendant of the victim).
	old := c.parent
	reparent := true
	for a := cur; a != nil; a = a.parent {
		if a == c {
			reparent = false
			break
		}
	}
	if reparent {
		c.parent = cur
	}
	_, err := c.Throw(nil)
	if reparent && !c.IsDead() {
		// The victim caught the exit marker and lives on.
		c.parent = old
	}
	return err
}

// String renders the coroutine for diagnostics.
func (c *Coroutine) String() string {
	k := "coroutine"
	if c.kind == kindRoot {
		k = "root coroutine"
	}
	return fmt.Sprintf("%s %s (%s)", k, c.id, c.State())
}

// takeArgs consumes the pending switch payload.
func (c *Coroutine) takeArgs() switchArgs {
	args := c.args
	c.args = switchArgs{}
	return args
}
