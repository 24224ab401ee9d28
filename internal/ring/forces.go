package ring

import (
	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/config"
)

// volForce is the excluded volume and adhesion force on a vertex at p from
// a vertex at q, and whether the two sit at exactly the same point.
func (s *Solver) volForce(p, q r2.Vec) (r2.Vec, bool) {
	d := s.space.Diff(r2.Sub(p, q))
	dist := r2.Norm(d)
	if dist == 0 {
		return r2.Vec{X: s.cfg.RepForce}, true
	}
	if dist > s.cfg.MaxDist {
		return r2.Vec{}, false
	}
	var scalar float64
	if dist > s.cfg.Diameter {
		scalar = s.cfg.AdhForce * (s.cfg.Diameter - dist) / (s.cfg.MaxDist - s.cfg.Diameter)
	} else {
		scalar = s.cfg.RepForce * (s.cfg.Diameter - dist) / s.cfg.Diameter
	}
	return r2.Scale(scalar/dist, d), false
}

// springForce is the force of the spring joining p to other, acting on p.
func (s *Solver) springForce(k float64, p, other r2.Vec) (r2.Vec, bool) {
	d := s.space.Diff(r2.Sub(other, p))
	dist := r2.Norm(d)
	if dist == 0 {
		return r2.Vec{}, true
	}
	return r2.Scale(k*(dist-s.cfg.SpringR)/dist, d), false
}

// stiffness of spring k, the one joining vertex k to vertex k+1, of the
// ring in slot.
func (s *Solver) stiffness(slot, k int) float64 {
	if s.springK != nil && slot < s.affected {
		return s.springK[k]
	}
	return s.cfg.SpringK
}

// springTable lays out the invagination stiffness: the bottom springs, then
// the side springs at the default stiffness, then the upper springs.
func springTable(n int, springK float64, inv config.InvaginationConf) []float64 {
	t := make([]float64, n)
	for i := range t {
		t[i] = springK
	}
	for k := 0; k < min(inv.Length, n); k++ {
		t[k] = inv.BottomK
	}
	for k := max(inv.Length+inv.Height-2, 0); k < n-inv.Height+2 && k < n; k++ {
		t[k] = inv.UpperK
	}
	return t
}

// pairPass accumulates the excluded volume forces of every vertex pair in
// adjacent grid cells, applying each pair to both vertices.
func (s *Solver) pairPass() {
	s.workers.Range(s.grid.NumCells(), func(w, from, to int) {
		acc := s.parts.Worker(w)
		c := &s.counts[w]
		s.grid.VisitCells(from, to, func(a, b int) {
			f, overlap := s.volForce(s.pos[a], s.pos[b])
			if overlap {
				c.ExcludedVolOverlap++
			}
			acc[a] = r2.Add(acc[a], f)
			acc[b] = r2.Sub(acc[b], f)
		})
	})
	s.parts.Merge(s.workers, s.forces)
}

// normalPass is the brute force pass: each vertex collects the excluded
// volume of every other vertex and the pull of both its springs, then the
// shape potential is added ring by ring.
func (s *Solver) normalPass(ids []int) {
	s.workers.Range(len(ids), func(w, from, to int) {
		c := &s.counts[w]
		for _, slot := range ids[from:to] {
			pos := s.ring(s.pos, slot)
			forces := s.ring(s.forces, slot)
			for v, p := range pos {
				i := slot*s.n + v
				var f r2.Vec
				for _, other := range ids {
					for j := other * s.n; j < (other+1)*s.n; j++ {
						if j == i {
							continue
						}
						fv, overlap := s.volForce(p, s.pos[j])
						if overlap {
							c.ExcludedVolOverlap++
						}
						f = r2.Add(f, fv)
					}
				}

				left := (v - 1 + s.n) % s.n
				right := (v + 1) % s.n
				fl, overL := s.springForce(s.stiffness(slot, left), p, pos[left])
				fr, overR := s.springForce(s.stiffness(slot, v), p, pos[right])
				if overL {
					c.SpringOverlap++
				}
				if overR {
					c.SpringOverlap++
				}
				forces[v] = r2.Add(forces[v], r2.Add(f, r2.Add(fl, fr)))
			}
			s.shape.apply(s, slot, c)
		}
	})
}

// ringPass adds the forces local to each ring: springs, the shape
// potential and, in the open flow, the drive and the obstacle.
func (s *Solver) ringPass(ids []int) {
	s.workers.Range(len(ids), func(w, from, to int) {
		c := &s.counts[w]
		for _, slot := range ids[from:to] {
			pos := s.ring(s.pos, slot)
			forces := s.ring(s.forces, slot)
			for k := range pos {
				next := (k + 1) % s.n
				f, overlap := s.springForce(s.stiffness(slot, k), pos[k], pos[next])
				if overlap {
					c.SpringOverlap++
				}
				forces[k] = r2.Add(forces[k], f)
				forces[next] = r2.Sub(forces[next], f)
			}
			if s.flow != nil {
				s.flowForces(pos, forces)
			}
			s.shape.apply(s, slot, c)
		}
	})
}

// flowForces pushes the vertices still in the creation strip downstream and
// repels every vertex inside the obstacle.
func (s *Solver) flowForces(pos, forces []r2.Vec) {
	obstacle := r2.Vec{X: s.stk.ObstacleX, Y: s.stk.ObstacleY}
	for v, p := range pos {
		if p.X < s.flow.maxCreateBorder {
			forces[v].X += s.stk.FluxForce
		}
		r := r2.Sub(p, obstacle)
		if dist := r2.Norm(r); dist < s.stk.ObstacleR && dist > 0 {
			forces[v] = r2.Add(forces[v], r2.Scale(s.stk.ObsForce/dist, r))
		}
	}
}

// invasionPass folds the invasion corrections into the accumulator.
func (s *Solver) invasionPass() {
	s.checker.Forces(s, func(slot, vertex int, f r2.Vec) {
		i := slot*s.n + vertex
		s.forces[i] = r2.Add(s.forces[i], f)
	})
}
