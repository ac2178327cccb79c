package coro

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Coroutines of one family share a single modeled native stack owned by their
// thread context. Addresses are plain integers growing downward from arenaTop,
// and the backing bytes live in an owned buffer, so all of the evacuation and
// restoration logic below operates on indices rather than raw pointers.
const (
	// arenaTop is the highest address of the modeled stack.
	arenaTop = 1 << 20

	// unboundedStop marks a root coroutine's region as extending over the
	// rest of the native stack.
	unboundedStop = math.MaxInt
)

// stackArena is the modeled native stack of one thread. It backs the address
// range [base, arenaTop) and grows downward on demand.
type stackArena struct {
	base int
	data []byte
}

const arenaChunk = 16 * 1024

// reserve grows the arena until it backs the address lo.
func (a *stackArena) reserve(lo int) {
	if a.data == nil {
		a.base = arenaTop - arenaChunk
		a.data = make([]byte, arenaChunk)
	}
	for lo < a.base {
		grown := make([]byte, 2*len(a.data))
		copy(grown[len(grown)-len(a.data):], a.data)
		a.base = arenaTop - len(grown)
		a.data = grown
	}
}

// bytes returns the live stack bytes in [lo, hi).
func (a *stackArena) bytes(lo, hi int) []byte {
	a.reserve(lo)
	return a.data[lo-a.base : hi-a.base]
}

// StackState tracks the bounds of one coroutine's slice of the modeled native
// stack, and the portion of it currently evacuated to the heap because a
// sibling or descendant coroutine's region overlaps that address range.
type StackState struct {
	// start is the lowest address still live for this coroutine, or zero
	// while the coroutine is running or has never suspended.
	start int

	// stop is the address just above the coroutine's region. It is fixed at
	// first switch-in; root coroutines use the unboundedStop sentinel.
	stop int

	// heap holds the evacuated low end of the region: bytes [start,
	// start+len(heap)) are on the heap, the remainder up to stop is still
	// live on the stack.
	heap []byte

	// prev links to the nearest StackState whose region sits at or above
	// this one on the same native stack. The chain is independent of the
	// parent tree: it orders regions by address, not by lineage.
	prev *StackState
}

func (s *StackState) saved() int { return len(s.heap) }

// effectiveStop bounds the root sentinel to the top of the arena.
func (s *StackState) effectiveStop() int {
	if s.stop == unboundedStop {
		return arenaTop
	}
	return s.stop
}

// saveUpTo extends the heap copy so that it covers every byte of the region
// below limit. Bytes already saved are not copied again.
func (s *StackState) saveUpTo(a *stackArena, limit int) {
	if stop := s.effectiveStop(); limit > stop {
		limit = stop
	}
	want := limit - s.start
	if s.start == 0 || want <= len(s.heap) {
		return
	}
	lo := s.start + len(s.heap)
	s.heap = append(s.heap, a.bytes(lo, s.start+want)...)
}

// evacuate backs up to the heap every region that the impending switch into s
// is about to overwrite. It walks the chain from the suspending coroutine's
// state upward: regions strictly below s's stop are evacuated whole, and the
// region straddling the stop is evacuated up to it.
func (s *StackState) evacuate(a *stackArena, current *StackState) {
	owner := current
	for owner != nil && owner.stop < s.stop {
		owner.saveUpTo(a, owner.effectiveStop())
		owner = owner.prev
	}
	if owner != nil && owner != s {
		owner.saveUpTo(a, s.effectiveStop())
	}
}

// restore copies the evacuated bytes back onto the stack, frees the heap
// copy, and recomputes prev as the nearest region still at or above this
// one's stop, scanning from the suspending coroutine's state.
func (s *StackState) restore(a *stackArena, current *StackState) {
	if len(s.heap) > 0 {
		copy(a.bytes(s.start, s.start+len(s.heap)), s.heap)
		s.heap = nil
	}
	owner := current
	for owner != nil && owner.stop < s.stop {
		owner = owner.prev
	}
	if owner != s {
		s.prev = owner
	}
}

// release discards the stack resources. Called when the coroutine dies or
// when its thread exits with the coroutine still suspended. stop and prev are
// kept: suspended regions below may still reach older regions through this
// state, and a dead state with no live bytes is skipped by the chain walks.
func (s *StackState) release() {
	s.start = 0
	s.heap = nil
}

// suspensionRecord is the bookkeeping a coroutine leaves on the modeled stack
// when it parks. It is what the switch protocol physically moves between the
// stack and the heap, and its validation on resume is the integrity check for
// the whole evacuation machinery: a corrupt record means the native stack can
// no longer be trusted.
type suspensionRecord struct {
	// Seq is the suspending coroutine's sequence number.
	Seq uint64

	// Switches is the owning thread's switch counter at suspension.
	Switches uint64

	// Paused is the suspension time in nanoseconds since the Unix epoch.
	Paused int64
}

// MarshalAppend appends a serialized suspensionRecord to the provided buffer.
// The record is framed by its own length and closed with a checksum so that a
// partial or clobbered write is detected on resume.
func (r *suspensionRecord) MarshalAppend(b []byte) ([]byte, error) {
	n := len(b)
	b = binary.AppendUvarint(b, r.Seq)
	b = binary.AppendUvarint(b, r.Switches)
	b = binary.AppendVarint(b, r.Paused)
	var sum byte
	for _, c := range b[n:] {
		sum ^= c
	}
	return append(b, sum), nil
}

// Unmarshal deserializes a suspensionRecord from the provided buffer,
// returning the number of bytes that were read in order to reconstruct the
// record.
func (r *suspensionRecord) Unmarshal(b []byte) (int, error) {
	seq, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, fmt.Errorf("invalid suspension record sequence: %v", b)
	}
	switches, sn := binary.Uvarint(b[n:])
	if sn <= 0 {
		return 0, fmt.Errorf("invalid suspension record switch count: %v", b)
	}
	n += sn
	paused, pn := binary.Varint(b[n:])
	if pn <= 0 {
		return 0, fmt.Errorf("invalid suspension record timestamp: %v", b)
	}
	n += pn
	if n >= len(b) {
		return 0, fmt.Errorf("truncated suspension record: %v", b)
	}
	var sum byte
	for _, c := range b[:n] {
		sum ^= c
	}
	if b[n] != sum {
		return 0, fmt.Errorf("suspension record checksum mismatch: got %#x, expected %#x", b[n], sum)
	}
	n++

	r.Seq = seq
	r.Switches = switches
	r.Paused = paused
	return n, nil
}

// push writes the record at the top of the coroutine's region and marks the
// region live from the record's first byte.
func (s *StackState) push(a *stackArena, r *suspensionRecord) {
	b, _ := r.MarshalAppend(nil)
	stop := s.effectiveStop()
	s.start = stop - len(b)
	copy(a.bytes(s.start, stop), b)
}

// pop reads back and validates the record left by push, then marks the
// region free: a running coroutine owns everything below its stop and has no
// materialized record.
func (s *StackState) pop(a *stackArena) (suspensionRecord, error) {
	var r suspensionRecord
	if s.start == 0 {
		return r, fmt.Errorf("no suspension record")
	}
	b := a.bytes(s.start, s.effectiveStop())
	n, err := r.Unmarshal(b)
	if err != nil {
		return r, err
	}
	if n != len(b) {
		return r, fmt.Errorf("suspension record size mismatch: got %d bytes, expected %d", n, len(b))
	}
	s.start = 0
	return r, nil
}
