package ring

import (
	"fmt"
	"log"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/config"
	"ringsim/internal/grid"
)

// flow is the inlet and outlet bookkeeping of the open flow regime. The
// inlet strip is split into horizontal bands, one per candidate ring; a
// candidate spawns whenever the grid cells of its band hold no vertex.
type flow struct {
	createBorder    float64
	removeBorder    float64
	maxCreateBorder float64
	left, top       float64 // channel walls
	bottom          float64

	templates [][]r2.Vec // vertex positions of each candidate
	cells     [][]int    // grid cells overlapping each candidate band
	spawn     []bool

	warned bool
}

func newFlow(conf *config.Config, g *grid.Grid[int], n int) *flow {
	length, height := conf.Space.Length, conf.Space.Height
	left := conf.Space.CenterX - length/2
	top := conf.Space.CenterY + height/2
	bottom := conf.Space.CenterY - height/2

	f := &flow{
		createBorder: left + conf.Stokes.CreateLength,
		removeBorder: conf.Space.CenterX + length/2 - conf.Stokes.RemoveLength,
		left:         left,
		top:          top,
		bottom:       bottom,
	}
	f.maxCreateBorder = f.createBorder

	var begin []int
	for cell := range g.NumCells() {
		lo, hi := g.Bounds(cell)
		if lo.X < f.createBorder {
			begin = append(begin, cell)
			f.maxCreateBorder = math.Max(f.maxCreateBorder, hi.X)
		}
	}

	radius := Radius(n, conf.Ring.Diameter)
	pad := 0.75 * conf.Ring.Diameter
	count := int(height / (2 * (pad + radius)))
	centers := make([]float64, count)
	for k := range centers {
		centers[k] = top - (pad+radius)*float64(1+2*k)
		step := 2 * math.Pi / float64(n)
		tpl := make([]r2.Vec, n)
		for i := range tpl {
			a := float64(i) * step
			tpl[i] = r2.Vec{
				X: radius*math.Cos(a) + left + 1.1*radius,
				Y: radius*math.Sin(a) + centers[k],
			}
		}
		f.templates = append(f.templates, tpl)
	}

	start := top
	for k := range centers {
		end := bottom
		if k+1 < len(centers) {
			end = (centers[k] + centers[k+1]) / 2
		}
		var band []int
		for _, cell := range begin {
			lo, hi := g.Bounds(cell)
			if lo.Y < start && hi.Y > end {
				band = append(band, cell)
			}
		}
		f.cells = append(f.cells, band)
		start = end
	}
	f.spawn = make([]bool, len(centers))

	log.Printf("ring: open flow with %d inlet cells and %d candidate rings", len(begin), len(centers))
	return f
}

// Radius is the circumradius of a regular n-gon of side diameter.
func Radius(n int, diameter float64) float64 {
	return diameter / math.Sqrt(2*(1-math.Cos(2*math.Pi/float64(n))))
}

// Candidates is the number of inlet positions, zero outside the open flow.
func (s *Solver) Candidates() int {
	if s.flow == nil {
		return 0
	}
	return len(s.flow.templates)
}

// createRings spawns a ring on every free inlet band. Occupancy is decided
// for all bands before any ring is added.
func (s *Solver) createRings() {
	f := s.flow
	for k, cells := range f.cells {
		f.spawn[k] = !s.occupied(cells)
	}
	for k, spawn := range f.spawn {
		if !spawn {
			continue
		}
		if _, err := s.addRing(f.templates[k], 0); err != nil {
			s.Debug.CreationSkipped++
			if !f.warned {
				log.Printf("ring: skipping creation: %v", err)
				f.warned = true
			}
			continue
		}
		f.warned = false
		s.Debug.Created++
	}
}

func (s *Solver) occupied(cells []int) bool {
	for _, cell := range cells {
		if len(s.grid.Members(cell)) > 0 {
			return true
		}
	}
	return false
}

// addRing activates a ring at rest with the given vertices and heading
// and registers its vertices in the grid.
func (s *Solver) addRing(pos []r2.Vec, angle float64) (int, error) {
	slot, err := s.pool.Add()
	if err != nil {
		return -1, err
	}
	copy(s.ring(s.pos, slot), pos)
	clear(s.ring(s.vel, slot))
	clear(s.ring(s.forces, slot))
	s.angle[slot] = angle
	s.measure(slot)
	for v, p := range s.ring(s.pos, slot) {
		s.grid.Insert(p, slot*s.n+v)
	}
	return slot, nil
}

// removeRings frees every ring of ids whose centroid passed the outlet.
func (s *Solver) removeRings(ids []int) {
	removed := 0
	for _, slot := range ids {
		if s.centroid[slot].X > s.flow.removeBorder {
			s.removeRing(slot)
			removed++
		}
	}
	if removed > 0 {
		s.dropInactive()
		s.Debug.Removed += removed
	}
}

func (s *Solver) removeRing(slot int) {
	s.pool.Remove(slot)
	s.checker.Forget(slot)
}

// dropInactive removes the vertices of freed slots from the grid, so a
// reused slot is never listed twice.
func (s *Solver) dropInactive() {
	s.grid.DeleteFunc(func(v int) bool { return !s.pool.Active(v / s.n) })
}

// Add inserts a ring at the given vertices. It fails with ErrPoolFull when
// no slot is free.
func (s *Solver) Add(pos []r2.Vec, angle float64) (int, error) {
	if len(pos) != s.n {
		return -1, fmt.Errorf("ring: got %d vertices, want %d", len(pos), s.n)
	}
	return s.addRing(pos, angle)
}

// Remove deactivates the ring in slot.
func (s *Solver) Remove(slot int) {
	if !s.pool.Active(slot) {
		return
	}
	s.removeRing(slot)
	s.dropInactive()
}
