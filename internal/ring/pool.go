package ring

import (
	"errors"
	"fmt"
	"slices"
)

// ErrPoolFull is returned by Add when every slot is taken.
var ErrPoolFull = errors.New("ring pool is full")

// Pool is a fixed capacity slot map. Slots are stable for the lifetime of
// a ring and reused after removal; unique ids are never reused.
type Pool struct {
	active  []bool
	uid     []int
	free    []int // Add pops the most recently freed slot
	lastUID int

	ids   []int
	dirty bool
}

// NewPool creates an empty pool with the given capacity.
func NewPool(capacity int) *Pool {
	p := &Pool{
		active: make([]bool, capacity),
		uid:    make([]int, capacity),
		ids:    make([]int, 0, capacity),
	}
	p.resetFree()
	return p
}

func (p *Pool) resetFree() {
	p.free = p.free[:0]
	for slot := len(p.active) - 1; slot >= 0; slot-- {
		if !p.active[slot] {
			p.free = append(p.free, slot)
		}
	}
	p.dirty = true
}

// Cap is the number of slots.
func (p *Pool) Cap() int { return len(p.active) }

// Len is the number of active rings.
func (p *Pool) Len() int { return len(p.active) - len(p.free) }

// Active reports whether slot holds a live ring.
func (p *Pool) Active(slot int) bool { return p.active[slot] }

// UID returns the unique id of the ring in slot.
func (p *Pool) UID(slot int) int { return p.uid[slot] }

// Add activates a free slot under a fresh unique id.
func (p *Pool) Add() (int, error) {
	if len(p.free) == 0 {
		return -1, ErrPoolFull
	}
	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.lastUID++
	p.uid[slot] = p.lastUID
	p.active[slot] = true
	p.dirty = true
	return slot, nil
}

// Remove frees slot. Removing an inactive slot is a no-op.
func (p *Pool) Remove(slot int) {
	if !p.active[slot] {
		return
	}
	p.active[slot] = false
	p.free = append(p.free, slot)
	p.dirty = true
}

// IDs returns the ascending list of active slots. The slice is shared and
// only valid until the pool changes.
func (p *Pool) IDs() []int {
	if p.dirty {
		p.ids = p.ids[:0]
		for slot, on := range p.active {
			if on {
				p.ids = append(p.ids, slot)
			}
		}
		p.dirty = false
	}
	return p.ids
}

// restore replaces the whole population: slots[i] becomes active under
// uids[i]. The next fresh id is one past the largest restored one.
func (p *Pool) restore(slots, uids []int) error {
	if len(slots) != len(uids) {
		return fmt.Errorf("ring: %d slots but %d uids", len(slots), len(uids))
	}
	seen := make(map[int]bool, len(slots))
	for _, slot := range slots {
		if slot < 0 || slot >= len(p.active) {
			return fmt.Errorf("ring: slot %d out of range [0, %d)", slot, len(p.active))
		}
		if seen[slot] {
			return fmt.Errorf("ring: slot %d restored twice", slot)
		}
		seen[slot] = true
	}

	clear(p.active)
	for i, slot := range slots {
		p.active[slot] = true
		p.uid[slot] = uids[i]
	}
	p.lastUID = 0
	if len(uids) > 0 {
		p.lastUID = slices.Max(uids)
	}
	p.resetFree()
	return nil
}
