package coro

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTraceEvents(t *testing.T) {
	r := Current()
	names := map[*Coroutine]string{r: "root"}

	var log []string
	prev := SetTrace(func(event Event, origin, target *Coroutine) {
		log = append(log, fmt.Sprintf("%s %s->%s", event, names[origin], names[target]))
	})
	defer SetTrace(prev)
	if prev != nil {
		t.Error("no hook should have been installed yet")
	}

	a := New(func(args ...any) (any, error) {
		return r.Switch("out")
	})
	names[a] = "a"

	if _, err := a.Switch(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Throw(nil); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"switch root->a",
		"switch a->root",
		"throw root->a",
		"switch a->root",
	}
	if diff := cmp.Diff(want, log); diff != "" {
		t.Error(diff)
	}
}

func TestTracePanicUninstallsHook(t *testing.T) {
	SetTrace(func(event Event, origin, target *Coroutine) {
		panic("bad hook")
	})

	// The hook fires on a's arrival, inside a's trampoline: the panic
	// escapes the entry point and comes back to us as a coroutine panic.
	a := New(func(args ...any) (any, error) {
		return nil, nil
	})
	_, err := a.Switch()
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Value != "bad hook" {
		t.Errorf("got %v, expected bad hook", pe.Value)
	}

	if SetTrace(nil) != nil {
		t.Error("a panicking hook should have been uninstalled")
	}
}
