// Package handles implements generation-checked handle tables. A handle packs a
// slot index with the generation the slot had when the value was inserted, so a
// handle kept after its value was removed is detected instead of aliasing
// whatever reuses the slot.
package handles

import "sync"

// Handle is index<<32 | generation. Generations start at 1, so 0 is never issued.
type Handle uint64

func pack(index, gen uint32) Handle { return Handle(uint64(index)<<32 | uint64(gen)) }

// Index returns the slot index encoded in h.
func (h Handle) Index() uint32 { return uint32(uint64(h) >> 32) }

// Generation returns the slot generation encoded in h.
func (h Handle) Generation() uint32 { return uint32(h) }

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// Table stores values of type T addressed by Handle. It is safe for concurrent use.
type Table[T any] struct {
	mu    sync.RWMutex
	slots []slot[T]
	free  []uint32
	live  int
}

// Insert stores v and returns its handle.
func (t *Table[T]) Insert(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{})
	}
	s := &t.slots[idx]
	s.gen++
	if s.gen == 0 { // wrapped
		s.gen = 1
	}
	s.live = true
	s.val = v
	t.live++
	return pack(idx, s.gen)
}

// Get returns the value for h. ok is false for unknown or released handles.
func (t *Table[T]) Get(h Handle) (v T, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.lookup(h)
	if s == nil {
		return v, false
	}
	return s.val, true
}

// Remove invalidates h and returns the value it referred to.
func (t *Table[T]) Remove(h Handle) (v T, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.lookup(h)
	if s == nil {
		return v, false
	}
	v = s.val
	var zero T
	s.val = zero
	s.live = false
	t.free = append(t.free, h.Index())
	t.live--
	return v, true
}

// RemoveIf removes h only when keep returns false for its value. The check and
// the removal happen under one lock. ok reports whether h was live; removed
// reports whether it was removed.
func (t *Table[T]) RemoveIf(h Handle, keep func(T) bool) (v T, ok, removed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.lookup(h)
	if s == nil {
		return v, false, false
	}
	if keep(s.val) {
		return s.val, true, false
	}
	v = s.val
	var zero T
	s.val = zero
	s.live = false
	t.free = append(t.free, h.Index())
	t.live--
	return v, true, true
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

// Each calls fn for every live value until fn returns false.
// fn must not call back into t.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.slots {
		s := &t.slots[i]
		if !s.live {
			continue
		}
		if !fn(pack(uint32(i), s.gen), s.val) {
			return
		}
	}
}

func (t *Table[T]) lookup(h Handle) *slot[T] {
	if h == 0 {
		return nil
	}
	idx := h.Index()
	if int(idx) >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if !s.live || s.gen != h.Generation() {
		return nil
	}
	return s
}
