// Package invasion detects ring vertices lying inside another ring and
// produces the forces that push them back out.
package invasion

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/config"
	"ringsim/internal/geom"
	"ringsim/internal/grid"
)

// Rings is the view of the ring population the checker reads.
type Rings interface {
	// IDs returns the active ring slots.
	IDs() []int
	// Centroid returns the center of mass of a ring, inside the domain.
	Centroid(ring int) r2.Vec
	// Polygon returns the unwrapped vertex chain of a ring.
	Polygon(ring int) []r2.Vec
}

// Record is one vertex of Ring found inside ring Invaded.
type Record struct {
	Ring    int
	Vertex  int
	Invaded int
	Elapsed int // steps since resolution, resolved records only
}

type key struct{ ring, vertex, invaded int }

func (r Record) key() key { return key{r.Ring, r.Vertex, r.Invaded} }

// Checker owns a grid over ring centroids and the invasion records.
type Checker struct {
	cfg   config.Invasion
	k     float64
	space geom.Space
	grid  *grid.Grid[int]

	counter  int
	active   []Record
	resolved []Record
	seen     map[key]bool
}

// New creates a checker over the given domain. k is the magnitude of the
// corrective force.
func New(cfg config.Invasion, k float64, space geom.Space, length, height float64, center r2.Vec) (*Checker, error) {
	c := &Checker{cfg: cfg, k: k, space: space, seen: make(map[key]bool)}
	if cfg.Disable {
		return c, nil
	}
	g, err := grid.New[int](cfg.Cols, cfg.Rows, length, height, center, 1)
	if err != nil {
		return nil, fmt.Errorf("invasion: %w", err)
	}
	c.grid = g
	return c, nil
}

// Enabled reports whether the checker does anything.
func (c *Checker) Enabled() bool { return !c.cfg.Disable }

// Active returns the unresolved invasions.
func (c *Checker) Active() []Record { return c.active }

// Resolved returns the invasions still in their cooldown.
func (c *Checker) Resolved() []Record { return c.resolved }

// Reset drops every record, e.g. after the population was replaced.
func (c *Checker) Reset() {
	c.active = c.active[:0]
	c.resolved = c.resolved[:0]
	c.counter = 0
}

// Forget drops every record involving ring.
func (c *Checker) Forget(ring int) {
	drop := func(rs []Record) []Record {
		kept := rs[:0]
		for _, r := range rs {
			if r.Ring != ring && r.Invaded != ring {
				kept = append(kept, r)
			}
		}
		return kept
	}
	c.active = drop(c.active)
	c.resolved = drop(c.resolved)
}

// Update redetects the invasions once every UpdateFreq calls. Records
// that were active and are not found again stay active so that Forces
// can resolve them.
func (c *Checker) Update(rings Rings) {
	if c.cfg.Disable {
		return
	}
	if c.counter%c.cfg.UpdateFreq != 0 {
		c.counter++
		return
	}
	c.counter = 1

	c.grid.Rebuild(func(yield func(int, r2.Vec) bool) {
		for _, id := range rings.IDs() {
			if !yield(id, rings.Centroid(id)) {
				return
			}
		}
	})

	prev := c.active
	c.active = make([]Record, 0, len(prev))
	clear(c.seen)
	c.grid.ForEachPair(func(a, b int) {
		c.check(rings, a, b)
		c.check(rings, b, a)
	})
	for _, r := range prev {
		if !c.seen[r.key()] {
			c.active = append(c.active, r)
			c.seen[r.key()] = true
		}
	}

	// a detected vertex leaves the cooldown list
	kept := c.resolved[:0]
	for _, r := range c.resolved {
		if !c.seen[r.key()] {
			kept = append(kept, r)
		}
	}
	c.resolved = kept
}

// check records every vertex of ring inside other.
func (c *Checker) check(rings Rings, ring, other int) {
	poly := rings.Polygon(other)
	for v, p := range rings.Polygon(ring) {
		if c.inside(poly, p) {
			r := Record{Ring: ring, Vertex: v, Invaded: other}
			if !c.seen[r.key()] {
				c.seen[r.key()] = true
				c.active = append(c.active, r)
			}
		}
	}
}

// inside tests p against poly using the periodic image of p closest to
// the polygon.
func (c *Checker) inside(poly []r2.Vec, p r2.Vec) bool {
	p = r2.Add(poly[0], c.space.Diff(r2.Sub(p, poly[0])))
	return geom.Contains(poly, p)
}

// Forces emits the corrective force of every active and cooling down
// invasion through add. Active records whose vertex is out resolve here;
// resolved records push for StepsAfterResolved steps, the resolution
// step included, and are then dropped. A cooldown of S therefore gives
// exactly S pushes after resolution, not S+1.
func (c *Checker) Forces(rings Rings, add func(ring, vertex int, f r2.Vec)) {
	if c.cfg.Disable {
		return
	}
	still := c.active[:0]
	for _, r := range c.active {
		if c.inside(rings.Polygon(r.Invaded), rings.Polygon(r.Ring)[r.Vertex]) {
			add(r.Ring, r.Vertex, c.force(rings, r))
			still = append(still, r)
			continue
		}
		r.Elapsed = 0
		c.resolved = append(c.resolved, r)
	}
	c.active = still

	kept := c.resolved[:0]
	for _, r := range c.resolved {
		if r.Elapsed >= c.cfg.StepsAfterResolved {
			continue
		}
		add(r.Ring, r.Vertex, c.force(rings, r))
		r.Elapsed++
		kept = append(kept, r)
	}
	c.resolved = kept
}

// force is k along the normal of the chord joining the vertex neighbors.
func (c *Checker) force(rings Rings, r Record) r2.Vec {
	poly := rings.Polygon(r.Ring)
	n := len(poly)
	prev := poly[(r.Vertex-1+n)%n]
	next := poly[(r.Vertex+1)%n]
	normal := r2.Vec{X: -(next.Y - prev.Y), Y: next.X - prev.X}
	norm := r2.Norm(normal)
	if norm == 0 {
		return r2.Vec{}
	}
	return r2.Scale(c.k/norm, normal)
}
