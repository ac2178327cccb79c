package coro

import (
	"errors"
	"testing"
)

func TestLifecycleStates(t *testing.T) {
	a := New(func(args ...any) (any, error) {
		return Root().Switch()
	})

	if a.State() != NotStarted {
		t.Errorf("got %s, expected %s", a.State(), NotStarted)
	}
	if a.IsStarted() || a.IsActive() || a.IsDead() {
		t.Error("a fresh coroutine is neither started, active, nor dead")
	}

	if _, err := a.Switch(); err != nil {
		t.Fatal(err)
	}
	if a.State() != Active {
		t.Errorf("got %s, expected %s", a.State(), Active)
	}
	if !a.IsStarted() || !a.IsActive() {
		t.Error("a suspended coroutine is started and active")
	}

	if _, err := a.Switch(); err != nil {
		t.Fatal(err)
	}
	if a.State() != Dead {
		t.Errorf("got %s, expected %s", a.State(), Dead)
	}
	if !a.IsStarted() || !a.IsDead() || a.IsActive() {
		t.Error("a finished coroutine is started and dead")
	}
}

func TestStateString(t *testing.T) {
	for _, test := range []struct {
		state State
		want  string
	}{
		{NotStarted, "not-started"},
		{Active, "active"},
		{Dead, "dead"},
	} {
		if got := test.state.String(); got != test.want {
			t.Errorf("State(%d).String(): got %q, expected %q", test.state, got, test.want)
		}
	}
}

func TestDefaultParent(t *testing.T) {
	r := Current()
	a := New(nil)
	if a.Parent() != r {
		t.Error("default parent should be the creating coroutine")
	}

	var inner *Coroutine
	b := New(func(args ...any) (any, error) {
		inner = New(nil)
		return nil, nil
	})
	if _, err := b.Switch(); err != nil {
		t.Fatal(err)
	}
	if inner.Parent() != b {
		t.Error("a coroutine created inside b should have b as parent")
	}
}

func TestRootProperties(t *testing.T) {
	r := Root()
	if !r.IsRoot() {
		t.Error("Root() should report IsRoot")
	}
	if !r.IsActive() || !r.IsStarted() {
		t.Error("the root coroutine is born active")
	}
	if r.Parent() != nil {
		t.Error("the root coroutine has no parent")
	}
	if Current() != r {
		t.Error("outside any coroutine, Current() is the root")
	}
	if New(nil).IsRoot() {
		t.Error("spawned coroutines are not roots")
	}
}

func TestSetParent(t *testing.T) {
	r := Current()
	a := New(nil)
	b := New(nil, WithParent(a))
	c := New(nil, WithParent(b))

	if err := a.SetParent(b); !errors.Is(err, ErrCyclicParent) {
		t.Errorf("got %v, expected %v", err, ErrCyclicParent)
	}
	if err := a.SetParent(c); !errors.Is(err, ErrCyclicParent) {
		t.Errorf("got %v, expected %v", err, ErrCyclicParent)
	}
	if a.Parent() != r {
		t.Error("a failed reparent must leave the tree unchanged")
	}

	if err := a.SetParent(nil); !errors.Is(err, ErrNilParent) {
		t.Errorf("got %v, expected %v", err, ErrNilParent)
	}
	if err := r.SetParent(a); !errors.Is(err, ErrRootParent) {
		t.Errorf("got %v, expected %v", err, ErrRootParent)
	}

	d := New(nil)
	if err := c.SetParent(d); err != nil {
		t.Fatal(err)
	}
	if c.Parent() != d {
		t.Error("reparenting c onto d should stick")
	}
}

func TestSetEntryAfterStart(t *testing.T) {
	a := New(func(args ...any) (any, error) {
		return Root().Switch()
	})
	if _, err := a.Switch(); err != nil {
		t.Fatal(err)
	}
	err := a.SetEntry(func(args ...any) (any, error) { return nil, nil })
	if !errors.Is(err, ErrStarted) {
		t.Errorf("got %v, expected %v", err, ErrStarted)
	}
	if _, err := a.Switch(); err != nil {
		t.Fatal(err)
	}
}

func TestKillBeforeStart(t *testing.T) {
	a := New(func(args ...any) (any, error) {
		t.Error("entry point must not run")
		return nil, nil
	})
	if err := a.Kill(); err != nil {
		t.Fatal(err)
	}
	if !a.IsDead() {
		t.Error("a should be dead")
	}
	// Killing again is a no-op.
	if err := a.Kill(); err != nil {
		t.Fatal(err)
	}
}

func TestKillSuspended(t *testing.T) {
	a := New(func(args ...any) (any, error) {
		return Root().Switch()
	})
	if _, err := a.Switch(); err != nil {
		t.Fatal(err)
	}
	if err := a.Kill(); err != nil {
		t.Fatal(err)
	}
	if !a.IsDead() {
		t.Error("a should be dead after Kill")
	}
}

func TestKillFromSibling(t *testing.T) {
	r := Current()
	victim := New(func(args ...any) (any, error) {
		return r.Switch("parked")
	})
	if _, err := victim.Switch(); err != nil {
		t.Fatal(err)
	}

	// The killer is not the victim's parent: Kill must still return once the
	// victim is dead, and the victim's exit must not resume us in its place.
	killer := New(func(args ...any) (any, error) {
		if err := victim.Kill(); err != nil {
			return nil, err
		}
		if !victim.IsDead() {
			t.Error("victim should be dead when Kill returns")
		}
		return "killed", nil
	})
	v, err := killer.Switch()
	if err != nil {
		t.Fatal(err)
	}
	if v != "killed" {
		t.Errorf("got %v, expected killed", v)
	}
}

func TestKillRestoresParentWhenCaught(t *testing.T) {
	r := Current()
	var killer *Coroutine
	victim := New(func(args ...any) (any, error) {
		_, err := r.Switch("parked")
		var exit *Exit
		if errors.As(err, &exit) {
			// Refuse to die: hand control back to the killer.
			if _, err := killer.Switch("refused"); err != nil {
				return nil, err
			}
		}
		return "eventually", nil
	})
	if _, err := victim.Switch(); err != nil {
		t.Fatal(err)
	}

	killer = New(func(args ...any) (any, error) {
		if err := victim.Kill(); err != nil {
			return nil, err
		}
		if victim.IsDead() {
			t.Error("victim caught the exit marker and should be alive")
		}
		if victim.Parent() != r {
			t.Error("a surviving victim gets its original parent back")
		}
		return "done", nil
	})
	if v, err := killer.Switch(); err != nil || v != "done" {
		t.Fatalf("got (%v, %v), expected (done, nil)", v, err)
	}

	// The victim's eventual death resumes its restored parent: us.
	if v, err := victim.Switch(); err != nil || v != "eventually" {
		t.Errorf("got (%v, %v), expected (eventually, nil)", v, err)
	}
}

func TestKillSelf(t *testing.T) {
	a := New(func(args ...any) (any, error) {
		err := Current().Kill()
		// Killing yourself reports the exit marker instead of switching.
		var exit *Exit
		if !errors.As(err, &exit) {
			t.Errorf("got %v, expected an exit marker", err)
		}
		return "survived", nil
	})
	v, err := a.Switch()
	if err != nil {
		t.Fatal(err)
	}
	if v != "survived" {
		t.Errorf("got %v, expected survived", v)
	}
}

func TestCoroutineIdentity(t *testing.T) {
	a, b := New(nil), New(nil)
	if a.ID() == b.ID() {
		t.Error("coroutine IDs must be unique")
	}
	if a.String() == "" || a.String() == b.String() {
		t.Errorf("unexpected String(): %q vs %q", a, b)
	}
}
