package coro

// unwindThread is thrown into a coroutine that was parked when its owning
// thread exited. The trampoline recovers it and lets the backing goroutine
// terminate without forwarding a result: the coroutine's resources were
// already discarded and there is no live ancestor to deliver to.
type unwindThread struct{}

// unwinding reports whether a recovered value is the thread-exit signal.
func unwinding(v any) bool {
	_, ok := v.(unwindThread)
	return ok
}
