package coro

import "sync"

// ExecState is an opaque snapshot of the host runtime's per-thread execution
// bookkeeping: exception propagation state, recursion counters, interpreter
// frame pointers, ambient context variables, tracing flags. The coroutine
// runtime never inspects it; it only moves it between the host and the
// suspended coroutine at switch boundaries.
type ExecState any

// Host is the contract between the coroutine runtime and its embedder.
//
// CaptureExec and RestoreExec are invoked only at switch boundaries, always
// in pairs: the suspending coroutine captures, the arriving coroutine
// restores. A coroutine entered for the first time is restored with a nil
// state, which the host should treat as "fresh".
//
// Schedule runs fn at a later point where the host can safely perform
// arbitrary work; it is used to drain the cross-thread destruction queue.
type Host interface {
	CaptureExec() ExecState
	RestoreExec(ExecState)
	Schedule(fn func())
}

// NopHost is the default host: it keeps no execution state and schedules
// callbacks on their own goroutine.
type NopHost struct{}

func (NopHost) CaptureExec() ExecState { return nil }
func (NopHost) RestoreExec(ExecState)  {}
func (NopHost) Schedule(fn func())     { go fn() }

var hostState struct {
	mutex sync.RWMutex
	host  Host
}

// SetHost registers the process-wide host and returns the previous one.
// Passing nil restores the default no-op host.
func SetHost(h Host) Host {
	if h == nil {
		h = NopHost{}
	}
	hostState.mutex.Lock()
	prev := hostState.host
	hostState.host = h
	hostState.mutex.Unlock()
	if prev == nil {
		prev = NopHost{}
	}
	return prev
}

func currentHost() Host {
	hostState.mutex.RLock()
	h := hostState.host
	hostState.mutex.RUnlock()
	if h == nil {
		return NopHost{}
	}
	return h
}
