package ring

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// euler advances every ring of ids by one explicit Euler step and clears
// the force accumulator. Positions are wrapped back into the domain when
// wrap is set.
func (s *Solver) euler(ids []int, wrap bool) {
	trans := math.Sqrt(2*s.cfg.TransDiff) / math.Sqrt(s.dt)
	rot := math.Sqrt(2*s.cfg.RotDiff) / math.Sqrt(s.dt)
	step := s.NumSteps

	s.workers.Range(len(ids), func(w, from, to int) {
		c := &s.counts[w]
		for _, slot := range ids[from:to] {
			prop := r2.Vec{X: math.Cos(s.angle[slot]), Y: math.Sin(s.angle[slot])}
			pos := s.ring(s.pos, slot)
			vel := s.ring(s.vel, slot)
			forces := s.ring(s.forces, slot)

			var sum r2.Vec
			for v := range pos {
				noise := r2.Vec{X: s.draw.Uniform(slot, 2*v), Y: s.draw.Uniform(slot, 2*v+1)}
				u := r2.Add(r2.Scale(s.cfg.Vo, prop), r2.Scale(s.cfg.Mobility, forces[v]))
				u = r2.Add(u, r2.Scale(trans, noise))
				if s.flow != nil {
					u = s.clampWalls(pos[v], u)
				}
				if r2.Norm(u) > highVelocity {
					c.HighVel = true
				}
				vel[v] = u
				sum = r2.Add(sum, u)

				p := r2.Add(pos[v], r2.Scale(s.dt, u))
				if wrap {
					p = s.space.Wrap(p)
				}
				if isNaN(p) {
					s.report(&NaNError{Step: step, Slot: slot, UID: s.pool.UID(slot), Vertex: v})
				}
				pos[v] = p
				forces[v] = r2.Vec{}
			}

			mean := r2.Scale(1/float64(s.n), sum)
			speed := r2.Norm(mean)
			if speed == 0 {
				c.ZeroSpeed++
				continue
			}
			cross := r2.Cross(prop, r2.Scale(1/speed, mean))
			cross = math.Max(-1, math.Min(1, cross))
			turn := math.Asin(cross)/s.cfg.RelaxTime + rot*s.draw.Uniform(slot, 2*s.n)
			s.angle[slot] += turn * s.dt
		}
	})
}

// clampWalls zeroes the velocity components that would carry a vertex
// through the channel walls or back through the inlet.
func (s *Solver) clampWalls(p, u r2.Vec) r2.Vec {
	if p.Y > s.flow.top && u.Y > 0 {
		u.Y = 0
	} else if p.Y < s.flow.bottom && u.Y < 0 {
		u.Y = 0
	}
	if p.X < s.flow.left && u.X < 0 {
		u.X = 0
	}
	return u
}
