package coro

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// recordingHost hands out increasing integers as execution states and logs
// every capture and restore.
type recordingHost struct {
	next int
	log  []string
}

func (h *recordingHost) CaptureExec() ExecState {
	h.next++
	h.log = append(h.log, fmt.Sprintf("capture %d", h.next))
	return h.next
}

func (h *recordingHost) RestoreExec(s ExecState) {
	h.log = append(h.log, fmt.Sprintf("restore %v", s))
}

func (h *recordingHost) Schedule(fn func()) { go fn() }

func TestSetHost(t *testing.T) {
	h := &recordingHost{}
	prev := SetHost(h)
	if prev == nil {
		t.Error("the default host should be non-nil")
	}
	if got := SetHost(nil); got != Host(h) {
		t.Error("SetHost should return the previously installed host")
	}
}

func TestHostCaptureRestorePairing(t *testing.T) {
	h := &recordingHost{}
	prev := SetHost(h)
	defer SetHost(prev)

	r := Current()
	a := New(func(args ...any) (any, error) {
		if _, err := r.Switch(); err != nil {
			return nil, err
		}
		return nil, nil
	})

	// Bootstrap a, let it switch back, then resume it to completion.
	if _, err := a.Switch(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Switch(); err != nil {
		t.Fatal(err)
	}

	// Every suspension captures, every arrival restores what its coroutine
	// captured last. A first arrival restores nil; a dying coroutine has
	// nothing to capture.
	want := []string{
		"capture 1",     // root suspends for the bootstrap
		"restore <nil>", // a arrives fresh
		"capture 2",     // a suspends switching back
		"restore 1",     // root arrives with its own state
		"capture 3",     // root suspends for the resume
		"restore 2",     // a arrives with its own state
		"restore 3",     // root arrives after a finished
	}
	if diff := cmp.Diff(want, h.log); diff != "" {
		t.Error(diff)
	}
}
