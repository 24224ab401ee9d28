package ring

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"
)

// Checkpoint is the persistent state of a ring population: entry i is the
// ring in slot Slots[i].
type Checkpoint struct {
	Pos   [][]r2.Vec `msgpack:"pos"`
	Angle []float64  `msgpack:"angle"`
	UIDs  []int      `msgpack:"uids"`
	Slots []int      `msgpack:"slots"`
}

// Len is the number of rings in the checkpoint.
func (c *Checkpoint) Len() int { return len(c.Slots) }

// Snapshot copies the current population.
func (s *Solver) Snapshot() *Checkpoint {
	ids := s.pool.IDs()
	c := &Checkpoint{
		Pos:   make([][]r2.Vec, len(ids)),
		Angle: make([]float64, len(ids)),
		UIDs:  make([]int, len(ids)),
		Slots: slices.Clone(ids),
	}
	for i, slot := range ids {
		c.Pos[i] = slices.Clone(s.ring(s.pos, slot))
		c.Angle[i] = s.angle[slot]
		c.UIDs[i] = s.pool.UID(slot)
	}
	return c
}

// Load replaces the population with the checkpoint. Rings restart at rest;
// the next created ring gets one past the largest unique id loaded. The
// solver is left untouched when the checkpoint does not fit.
func (s *Solver) Load(c *Checkpoint) error {
	if len(c.Pos) != len(c.Slots) || len(c.Angle) != len(c.Slots) || len(c.UIDs) != len(c.Slots) {
		return fmt.Errorf("ring: checkpoint has %d positions, %d angles, %d uids and %d slots",
			len(c.Pos), len(c.Angle), len(c.UIDs), len(c.Slots))
	}
	for i, p := range c.Pos {
		if len(p) != s.n {
			return fmt.Errorf("ring: checkpoint ring %d has %d vertices, want %d", i, len(p), s.n)
		}
	}
	if err := s.pool.restore(c.Slots, c.UIDs); err != nil {
		return err
	}

	clear(s.vel)
	clear(s.forces)
	for i, slot := range c.Slots {
		copy(s.ring(s.pos, slot), c.Pos[i])
		s.angle[slot] = c.Angle[i]
	}
	ids := s.pool.IDs()
	s.checker.Reset()
	s.grid.Rebuild(s.vertices(ids))
	s.measureAll(ids)
	return nil
}
