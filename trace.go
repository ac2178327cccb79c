package coro

// Event tags a completed control transfer for the trace hook.
type Event string

const (
	// EventSwitch is an ordinary value-carrying switch, including bootstrap.
	EventSwitch Event = "switch"

	// EventThrow is a switch delivering an exception.
	EventThrow Event = "throw"
)

// TraceFunc observes completed switches on one thread. It runs on the
// arrival side, after the target's execution state has been restored and
// before control returns to user code. A panic in the hook uninstalls it and
// propagates at the arrival point.
type TraceFunc func(event Event, origin, target *Coroutine)

// SetTrace installs the calling thread's trace hook and returns the previous
// one. A nil hook disables tracing.
func SetTrace(fn TraceFunc) TraceFunc {
	tc := Current().tc.Load()
	prev := tc.trace
	tc.trace = fn
	return prev
}

// callTrace invokes the hook for the switch that just completed.
func (tc *threadContext) callTrace(target *Coroutine) {
	fn := tc.trace
	if fn == nil {
		return
	}
	event, origin := tc.event, tc.origin
	if origin == nil {
		return
	}
	defer func() {
		if v := recover(); v != nil {
			tc.trace = nil
			panic(v)
		}
	}()
	fn(event, origin, target)
}
