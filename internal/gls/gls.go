// Package gls provides goroutine local storage for the coroutine runtime.
//
// Each goroutine participating in a coroutine family (the goroutine that owns
// the root coroutine, and the goroutine backing each spawned coroutine) has an
// entry binding it to runtime state. Entries are keyed by the address of the
// goroutine's runtime.g, obtained through the getg intrinsic.
package gls

import "sync"

// G is a reference to a goroutine, and provides a way to load, store and
// clear a value local to that goroutine.
type G uintptr

// Context returns the reference to the calling goroutine.
func Context() G {
	return G(getg())
}

// The storage is sharded to keep unrelated coroutine families from contending
// on a single lock. The shard is derived from the g pointer; g structs are
// heap objects of a few hundred bytes, so the bits past the allocator size
// class carry enough entropy.
const shards = 64

type shard struct {
	mutex sync.Mutex
	state map[G]any
}

var storage [shards]shard

func (g G) shard() *shard {
	return &storage[(g>>8)%shards]
}

// Load returns the value local to the goroutine, or nil if none was stored.
func (g G) Load() any {
	s := g.shard()
	s.mutex.Lock()
	v := s.state[g]
	s.mutex.Unlock()
	return v
}

// Store sets the value local to the goroutine.
func (g G) Store(v any) {
	s := g.shard()
	s.mutex.Lock()
	if s.state == nil {
		s.state = make(map[G]any)
	}
	s.state[g] = v
	s.mutex.Unlock()
}

// Clear removes the value local to the goroutine.
func (g G) Clear() {
	s := g.shard()
	s.mutex.Lock()
	delete(s.state, g)
	s.mutex.Unlock()
}
