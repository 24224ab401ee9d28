package ring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/config"
)

// shape is a ring shape potential. apply adds its force to every vertex of
// the ring in slot, reading the geometry left by measure.
type shape interface {
	apply(s *Solver, slot int, c *Debug)
}

func newShape(cfg config.Ring) (shape, error) {
	switch cfg.AreaPotential {
	case config.Format:
		return formatShape{k: cfg.KFormat, p0: cfg.P0Format}, nil
	case config.TargetPerimeter:
		return targetPerimeter{k: cfg.KArea, target: cfg.P0 * math.Sqrt(cfg.Area0)}, nil
	case config.TargetArea:
		return targetArea{k: cfg.KArea, area0: cfg.Area0}, nil
	case config.TargetAreaAndFormat:
		return combined{
			targetArea{k: cfg.KArea, area0: cfg.Area0},
			formatShape{k: cfg.KFormat, p0: cfg.P0Format},
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown area potential %d", config.ErrInvalid, cfg.AreaPotential)
}

// targetArea pulls the area towards area0 through the discrete area
// gradient.
type targetArea struct {
	k, area0 float64
}

func (t targetArea) apply(s *Solver, slot int, _ *Debug) {
	pos := s.ring(s.pos, slot)
	forces := s.ring(s.forces, slot)
	k := t.k * (s.area[slot] - t.area0)
	for i := range pos {
		prev := pos[(i-1+s.n)%s.n]
		next := pos[(i+1)%s.n]
		d := s.space.Diff(r2.Sub(next, prev))
		forces[i] = r2.Add(forces[i], r2.Vec{X: -k * d.Y / 2, Y: k * d.X / 2})
	}
}

// targetPerimeter pulls the perimeter towards p0*sqrt(area0).
type targetPerimeter struct {
	k, target float64
}

func (t targetPerimeter) apply(s *Solver, slot int, c *Debug) {
	diff := s.ring(s.diff, slot)
	forces := s.ring(s.forces, slot)
	k := t.k * (s.perim[slot] - t.target)
	for i := range diff {
		before := diff[(i-1+s.n)%s.n]
		d1, d2 := r2.Norm(diff[i]), r2.Norm(before)
		if d1 == 0 || d2 == 0 {
			c.AreaOverlap++
			continue
		}
		grad := r2.Add(r2.Scale(-1/d1, diff[i]), r2.Scale(1/d2, before))
		forces[i] = r2.Sub(forces[i], r2.Scale(k, grad))
	}
}

// formatShape penalizes the gap between the area and (P/p0)^2, the area
// of a ring of shape index p0 and the current perimeter.
type formatShape struct {
	k, p0 float64
}

func (f formatShape) apply(s *Solver, slot int, c *Debug) {
	cont := s.ring(s.cont, slot)
	forces := s.ring(s.forces, slot)
	perim := s.perim[slot]
	ratio := perim / f.p0
	delta := s.area[slot] - ratio*ratio
	scale := 2 * perim / (f.p0 * f.p0)
	for i, p := range cont {
		v1 := cont[(i-1+s.n)%s.n]
		v2 := cont[(i+1)%s.n]
		e1, e2 := r2.Sub(v1, p), r2.Sub(v2, p)
		d1, d2 := r2.Norm(e1), r2.Norm(e2)
		if d1 == 0 || d2 == 0 {
			c.AreaOverlap++
			continue
		}
		a0 := r2.Scale(scale, r2.Add(r2.Scale(1/d1, e1), r2.Scale(1/d2, e2)))
		grad := r2.Vec{
			X: (v2.Y-v1.Y)/2 + a0.X,
			Y: -(v2.X-v1.X)/2 + a0.Y,
		}
		forces[i] = r2.Sub(forces[i], r2.Scale(f.k*delta, grad))
	}
}

// combined applies every potential in order.
type combined []shape

func (cs combined) apply(s *Solver, slot int, c *Debug) {
	for _, sh := range cs {
		sh.apply(s, slot, c)
	}
}
