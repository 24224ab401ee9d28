package ring

import (
	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/geom"
)

// measureAll refreshes the edge differences, the continuous chain, the
// perimeter, the area and the centroid of every ring in ids.
func (s *Solver) measureAll(ids []int) {
	s.workers.Range(len(ids), func(_, from, to int) {
		for _, slot := range ids[from:to] {
			s.measure(slot)
		}
	})
}

func (s *Solver) measure(slot int) {
	pos := s.ring(s.pos, slot)
	diff := s.ring(s.diff, slot)
	cont := s.ring(s.cont, slot)

	var perim float64
	for i := range pos {
		d := s.space.Diff(r2.Sub(pos[(i+1)%s.n], pos[i]))
		diff[i] = d
		perim += r2.Norm(d)
	}

	cont[0] = pos[0]
	for i := 0; i < s.n-1; i++ {
		cont[i+1] = r2.Add(cont[i], diff[i])
	}

	var c r2.Vec
	for _, p := range cont {
		c = r2.Add(c, p)
	}
	s.centroid[slot] = s.space.Wrap(r2.Scale(1/float64(s.n), c))
	s.perim[slot] = perim
	s.area[slot] = geom.Area(cont)
}
