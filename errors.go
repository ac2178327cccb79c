package coro

import (
	"errors"
	"fmt"
)

// Usage errors are reported synchronously to the caller before any coroutine
// state is mutated, and are fully recoverable.
var (
	// ErrDifferentThread is returned when switching to a coroutine whose
	// family belongs to another thread. A coroutine is affine to the thread
	// it first ran on.
	ErrDifferentThread = errors.New("coro: cannot switch to a coroutine on a different thread")

	// ErrDeadThread is returned when switching to a coroutine whose owning
	// thread has exited.
	ErrDeadThread = errors.New("coro: cannot switch to a coroutine whose thread has exited")

	// ErrCyclicParent is returned by SetParent when the new parent is the
	// coroutine itself or one of its descendants.
	ErrCyclicParent = errors.New("coro: parent assignment would create a cycle")

	// ErrNilParent is returned by SetParent when the new parent is nil.
	ErrNilParent = errors.New("coro: parent must not be nil")

	// ErrRootParent is returned by SetParent on a root coroutine.
	ErrRootParent = errors.New("coro: the root coroutine cannot have a parent")

	// ErrStarted is returned by SetEntry once the coroutine has started.
	ErrStarted = errors.New("coro: coroutine has already started")

	// ErrNoEntry is returned when switching into a coroutine that was never
	// given an entry point.
	ErrNoEntry = errors.New("coro: coroutine has no entry point")

	// ErrNotRoot is returned by ExitThread when called from a spawned
	// coroutine.
	ErrNotRoot = errors.New("coro: thread teardown must run on the root coroutine")
)

// Exit is the cooperative termination marker. Throwing it (or throwing nil)
// into a coroutine raises it at the coroutine's suspension point; if the
// coroutine lets it propagate out of its entry point, the coroutine dies
// cleanly and Value is forwarded to the nearest live ancestor as an ordinary
// result rather than an error.
type Exit struct {
	Value any
}

func (e *Exit) Error() string {
	if e.Value == nil {
		return "coroutine exit"
	}
	return fmt.Sprintf("coroutine exit: %v", e.Value)
}

// PanicError wraps a panic that escaped a coroutine's entry point. It is
// delivered to the nearest live ancestor as the error result of its pending
// switch.
type PanicError struct {
	// Value is the value the coroutine panicked with.
	Value any

	// Stack is the formatted stack of the panicking goroutine, captured at
	// recovery.
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("coro: coroutine panicked: %v", e.Value)
}

// Unwrap exposes a wrapped error when the coroutine panicked with one.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
