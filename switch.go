package coro

import (
	"errors"
	"runtime/debug"
	"time"
)

// Switch transfers control to c, delivering values as its switch payload,
// and blocks until some coroutine switches back. The returned value is the
// payload of the switch that resumed the caller: no values arrive as nil, a
// single value as itself, several as a slice.
//
// If c is dead, control falls through to its nearest live ancestor; when
// that resolution reaches the caller itself, the call degenerates to
// returning its own payload. If c never started, the switch bootstraps it:
// its entry point runs with the payload as arguments, and its result (or
// error) is eventually forwarded to the nearest live ancestor.
//
// A coroutine is affine to the thread it first ran on; switching to a
// coroutine of another thread fails with ErrDifferentThread before any state
// is mutated.
func (c *Coroutine) Switch(values ...any) (any, error) {
	return c.transfer(switchArgs{values: values}, EventSwitch)
}

// Throw is Switch, except that err is raised at the target's suspension
// point instead of a value being delivered. A nil err throws the Exit
// marker. Throwing into a coroutine that never started kills it without
// running its entry point and propagates the error along its ancestry.
func (c *Coroutine) Throw(err error) (any, error) {
	if err == nil {
		err = &Exit{}
	}
	return c.transfer(switchArgs{err: err}, EventThrow)
}

func (c *Coroutine) transfer(args switchArgs, event Event) (any, error) {
	cur := Current()
	tc := cur.tc.Load()

	// Preconditions, checked before any stack mutation.
	ttc, deadThread := lineageThread(c)
	if deadThread {
		return nil, ErrDeadThread
	}
	if ttc != nil && ttc != tc {
		return nil, ErrDifferentThread
	}

	for {
		target := c.resolve()
		if target == nil {
			fatalf("switch to %s found no live coroutine in its ancestry", c)
		}
		if target == cur {
			// Resolution reached the caller: no switch takes place, the
			// payload comes straight back.
			if args.err != nil {
				return nil, args.err
			}
			return args.result(), nil
		}
		if !target.IsStarted() {
			if args.err != nil {
				// Killed before ever running: no entry point is invoked and
				// no stack region is claimed. The error continues along the
				// ancestry.
				target.setState(Dead)
				target.entry = nil
				continue
			}
			if target.entry == nil {
				return nil, ErrNoEntry
			}
			// Revalidate after resolving the entry point: anything that ran
			// in between may have bootstrapped the target already, in which
			// case this is a plain resume.
			if target.IsStarted() {
				continue
			}
			return tc.bootstrap(cur, target, args, event)
		}
		return tc.pivot(cur, target, args, event)
	}
}

// suspend captures the caller's execution state and writes its suspension
// record, materializing its region on the stack.
func (tc *threadContext) suspend(cur *Coroutine) {
	cur.exec = currentHost().CaptureExec()
	tc.switches++
	cur.suspendSwitch = tc.switches
	rec := suspensionRecord{
		Seq:      cur.seq,
		Switches: tc.switches,
		Paused:   time.Now().UnixNano(),
	}
	cur.stack.push(&tc.arena, &rec)
}

// pivot moves control from cur to a started target: it backs up every region
// the target is about to overwrite, puts the target's evacuated bytes back
// at their addresses, and hands the thread over. It returns when some
// coroutine switches back into cur.
func (tc *threadContext) pivot(cur, target *Coroutine, args switchArgs, event Event) (any, error) {
	tc.suspend(cur)
	target.stack.evacuate(&tc.arena, &cur.stack)
	target.stack.restore(&tc.arena, &cur.stack)
	target.args = args
	tc.origin, tc.event = cur, event
	target.resume <- struct{}{}
	return tc.park(cur)
}

// bootstrap performs the first switch into a NotStarted coroutine: its
// region is anchored at the caller's current stack extent, linked below the
// caller's, and its trampoline goroutine is launched. The handoff returns
// twice: once inside the trampoline, and once back here when the new
// coroutine suspends or finishes.
func (tc *threadContext) bootstrap(cur, target *Coroutine, args switchArgs, event Event) (any, error) {
	tc.suspend(cur)
	target.stack.stop = cur.stack.start
	target.stack.prev = &cur.stack
	target.tc.Store(tc)
	target.setState(Active)
	tc.live[target] = struct{}{}
	target.args = args
	tc.origin, tc.event = cur, event
	go target.run(tc)
	return tc.park(cur)
}

// park blocks until the coroutine is switched back into, then completes the
// arrival and consumes the delivered payload.
func (tc *threadContext) park(cur *Coroutine) (any, error) {
	<-cur.resume
	if cur.unresumable.Load() {
		// The thread exited while we were parked. Unwind without a result;
		// the trampoline swallows this.
		panic(unwindThread{})
	}
	tc.arrive(cur)
	args := cur.takeArgs()
	if args.err != nil {
		return nil, args.err
	}
	return args.result(), nil
}

// arrive completes a switch on the target's side: it validates and consumes
// the suspension record, restores the execution state, marks the coroutine
// current and fires the trace hook.
func (tc *threadContext) arrive(c *Coroutine) {
	rec, err := c.stack.pop(&tc.arena)
	if err != nil {
		fatalf("resuming %s: %v", c, err)
	}
	if rec.Seq != c.seq || rec.Switches != c.suspendSwitch {
		fatalf("resuming %s: suspension record does not match (seq %d, switch %d)", c, rec.Seq, rec.Switches)
	}
	tc.current = c
	currentHost().RestoreExec(c.exec)
	c.exec = nil
	tc.callTrace(c)
}

// run is the entry-point trampoline, executing on the coroutine's own
// goroutine.
func (c *Coroutine) run(tc *threadContext) {
	bind(c)
	defer unbind()

	var result any
	var err error
	returned := false

	defer func() {
		v := recover()
		if unwinding(v) {
			// Thread exit unparked us; resources are already reaped and
			// there is nobody to deliver to.
			return
		}
		if !returned && v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
		// !returned with v == nil is a goroutine exit through the entry
		// point, treated as a clean termination.
		var exit *Exit
		if errors.As(err, &exit) {
			// An uncaught exit marker is a clean exit; its value is the
			// coroutine's final result.
			if result = exit.Value; result == nil {
				result = exit
			}
			err = nil
		}
		c.finish(tc, result, err)
	}()

	tc.current = c
	currentHost().RestoreExec(nil)
	tc.callTrace(c)

	args := c.takeArgs()
	result, err = c.entry(args.values...)
	returned = true
}

// finish transitions a coroutine to Dead, releases its stack resources, and
// forwards its result or error to the nearest live ancestor, bootstrapping
// the ancestor when it never ran.
func (c *Coroutine) finish(tc *threadContext, result any, err error) {
	c.setState(Dead)
	c.entry = nil
	c.exec = nil
	c.stack.release()
	tc.detach(c)

	event := EventSwitch
	args := switchArgs{values: []any{result}}
	if err != nil {
		event = EventThrow
		args = switchArgs{err: err}
	}

	target := c.parent
	for {
		if target != nil {
			target = target.resolve()
		}
		if target == nil {
			// There is no thread to return control to.
			fatalf("%s finished with no live coroutine in its ancestry", c)
		}
		if target.IsStarted() {
			break
		}
		if args.err != nil || target.entry == nil {
			// An error arriving at an unstarted ancestor kills it before its
			// entry point can run, as does having no entry point; the
			// payload moves further up.
			target.setState(Dead)
			target.entry = nil
			target = target.parent
			continue
		}
		// The ancestor never ran: it takes over the dead coroutine's slot on
		// the modeled stack and bootstraps with the forwarded result as its
		// entry arguments.
		target.stack.stop = c.stack.stop
		target.stack.prev = c.stack.prev
		target.tc.Store(tc)
		target.setState(Active)
		tc.live[target] = struct{}{}
		target.args = args
		tc.origin, tc.event = c, event
		go target.run(tc)
		return
	}

	target.stack.evacuate(&tc.arena, c.stack.prev)
	target.stack.restore(&tc.arena, c.stack.prev)
	target.args = args
	tc.origin, tc.event = c, event
	target.resume <- struct{}{}
}
