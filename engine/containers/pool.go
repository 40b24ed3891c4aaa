package containers

import "fmt"

const (
	occupiedMask   uint32 = 0x80000000
	generationMask uint32 = 0x7FFFFFFF

	// noIndex terminates the freelist and marks invalid handles.
	noIndex uint32 = 0xFFFFFFFF
)

// Handle is a weak, generation-checked reference into a Pool. A handle never
// owns the value it points at; once the slot is removed, every dereference of
// the old handle fails loudly, even if the slot has been reused since.
type Handle[T any] struct {
	index      uint32
	generation uint32
}

// InvalidHandle returns the canonical invalid handle for T.
func InvalidHandle[T any]() Handle[T] {
	return Handle[T]{index: noIndex, generation: noIndex}
}

func (h Handle[T]) IsValid() bool {
	return h.index != noIndex
}

func (h Handle[T]) Index() uint32 {
	return h.index
}

func (h Handle[T]) Generation() uint32 {
	return h.generation
}

func (h Handle[T]) String() string {
	if !h.IsValid() {
		return "Handle(invalid)"
	}
	return fmt.Sprintf("Handle(%d:%d)", h.index, h.generation)
}

// The occupied bit and the generation share one uint32: bit 31 is occupancy,
// bits 0..30 the generation. Generations wrap at 2^31; a handle kept alive
// across a full wrap of its slot could alias, which is accepted.
type slot[T any] struct {
	flags    uint32
	nextFree uint32 // meaningful only while the slot is empty
	value    T
}

func (s *slot[T]) occupied() bool {
	return s.flags&occupiedMask != 0
}

func (s *slot[T]) setOccupied(occupied bool) {
	if occupied {
		s.flags |= occupiedMask
	} else {
		s.flags &= ^occupiedMask
	}
}

func (s *slot[T]) generation() uint32 {
	return s.flags & generationMask
}

func (s *slot[T]) setGeneration(generation uint32) {
	s.flags = (s.flags & occupiedMask) | (generation & generationMask)
}

// Pool is a freelist-backed arena with O(1) add and remove. Values are only
// reachable through handles; slot indices are stable across growth so every
// live handle survives reallocation.
type Pool[T any] struct {
	slots        []slot[T]
	freelistHead uint32
	size         uint32
}

func NewPool[T any]() *Pool[T] {
	return &Pool[T]{freelistHead: noIndex}
}

func NewPoolWithCapacity[T any](capacity uint32) *Pool[T] {
	p := &Pool[T]{freelistHead: noIndex}
	if capacity > 0 {
		p.slots = make([]slot[T], capacity)
		p.initFreelist(0)
		p.freelistHead = 0
	}
	return p
}

func (p *Pool[T]) initFreelist(oldCapacity int) {
	newCapacity := len(p.slots)
	for i := oldCapacity; i < newCapacity; i++ {
		p.slots[i].nextFree = uint32(i + 1)
	}
	p.slots[newCapacity-1].nextFree = noIndex
}

// Add stores value in a free slot and returns its handle, growing the slot
// array (doubling, or to at least one slot) when the freelist is exhausted.
func (p *Pool[T]) Add(value T) Handle[T] {
	if p.freelistHead == noIndex {
		oldCapacity := len(p.slots)
		newCapacity := 2 * oldCapacity
		if newCapacity == 0 {
			newCapacity = 1
		}
		grown := make([]slot[T], newCapacity)
		copy(grown, p.slots)
		p.slots = grown
		p.initFreelist(oldCapacity)
		p.freelistHead = uint32(oldCapacity)
	}

	index := p.freelistHead
	s := &p.slots[index]
	if s.occupied() {
		panic(fmt.Sprintf("pool freelist corrupted: slot %d already occupied", index))
	}

	p.freelistHead = s.nextFree
	s.value = value
	s.setOccupied(true)
	p.size++

	return Handle[T]{index: index, generation: s.generation()}
}

func (p *Pool[T]) check(handle Handle[T]) *slot[T] {
	if handle.index >= uint32(len(p.slots)) {
		panic(fmt.Sprintf("pool access out of range: %s, capacity %d", handle, len(p.slots)))
	}
	s := &p.slots[handle.index]
	if !s.occupied() || handle.generation != s.generation() {
		panic(fmt.Sprintf("stale handle dereference: %s, slot generation %d", handle, s.generation()))
	}
	return s
}

// Get returns a pointer to the value behind handle. A stale or invalid handle
// is a use-after-free bug in the caller and panics; there is no recovery path.
func (p *Pool[T]) Get(handle Handle[T]) *T {
	return &p.check(handle).value
}

// Remove frees the slot behind handle. The slot's generation is bumped so
// every handle issued before this call turns stale.
func (p *Pool[T]) Remove(handle Handle[T]) {
	s := p.check(handle)

	s.setOccupied(false)
	s.setGeneration(handle.generation + 1)

	var zero T
	s.value = zero
	s.nextFree = p.freelistHead
	p.freelistHead = handle.index
	p.size--
}

// Has reports whether handle still refers to a live value.
func (p *Pool[T]) Has(handle Handle[T]) bool {
	if !handle.IsValid() || handle.index >= uint32(len(p.slots)) {
		return false
	}
	s := &p.slots[handle.index]
	return s.occupied() && handle.generation == s.generation()
}

func (p *Pool[T]) Len() int {
	return int(p.size)
}

// Range calls fn for every occupied slot in index order until fn returns
// false. No ordering is guaranteed beyond slot index order.
func (p *Pool[T]) Range(fn func(handle Handle[T], value *T) bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.occupied() {
			continue
		}
		h := Handle[T]{index: uint32(i), generation: s.generation()}
		if !fn(h, &s.value) {
			return
		}
	}
}

// Clear removes every value at once, invalidating all outstanding handles.
// Slot generations are bumped so old handles cannot alias future values.
func (p *Pool[T]) Clear() {
	if len(p.slots) == 0 {
		return
	}
	var zero T
	for i := range p.slots {
		s := &p.slots[i]
		if s.occupied() {
			s.setOccupied(false)
			s.setGeneration(s.generation() + 1)
			s.value = zero
		}
	}
	p.initFreelist(0)
	p.freelistHead = 0
	p.size = 0
}
