package stext

import (
	"fmt"
)

// Handle is an opaque reference to an object owned by a Context. The zero
// Handle is never valid.
type Handle uint64

func newHandle(gen, slot uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(slot+1))
}

func (h Handle) split() (gen, slot uint32, ok bool) {
	low := uint32(h)
	if low == 0 {
		return 0, 0, false
	}
	return uint32(h >> 32), low - 1, true
}

func (h Handle) String() string {
	gen, slot, ok := h.split()
	if !ok {
		return "handle(nil)"
	}
	return fmt.Sprintf("handle(%d@%d)", slot, gen)
}

type arenaSlot[T any] struct {
	gen  uint32
	live bool
	size int64
	val  T
}

// arena stores values of one kind behind generation-checked handles. Freed
// slots are reused with a bumped generation so stale handles never resolve.
// It is not safe for concurrent use; Context serialises access.
type arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

func (a *arena[T]) insert(v T, size int64) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, arenaSlot[T]{gen: 1})
		idx = uint32(len(a.slots) - 1)
	}

	s := &a.slots[idx]
	s.live = true
	s.size = size
	s.val = v
	a.live++

	return newHandle(s.gen, idx)
}

func (a *arena[T]) lookup(h Handle) (*arenaSlot[T], bool) {
	gen, idx, ok := h.split()
	if !ok || int(idx) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[idx]
	if !s.live || s.gen != gen {
		return nil, false
	}
	return s, true
}

func (a *arena[T]) get(h Handle) (T, bool) {
	s, ok := a.lookup(h)
	if !ok {
		var zero T
		return zero, false
	}
	return s.val, true
}

// remove releases the slot behind h and returns its value and charged size.
func (a *arena[T]) remove(h Handle) (T, int64, bool) {
	var zero T
	s, ok := a.lookup(h)
	if !ok {
		return zero, 0, false
	}

	v, size := s.val, s.size
	s.val = zero
	s.live = false
	s.size = 0
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	_, idx, _ := h.split()
	a.free = append(a.free, idx)
	a.live--

	return v, size, true
}

// drain removes every live value, calling fn for each.
func (a *arena[T]) drain(fn func(T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.live {
			continue
		}
		if fn != nil {
			fn(s.val)
		}
		var zero T
		s.val = zero
		s.live = false
	}
	a.slots = nil
	a.free = nil
	a.live = 0
}

func (a *arena[T]) len() int {
	return a.live
}
