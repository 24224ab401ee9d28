// Package ring evolves a population of deformable rings: closed chains of
// active vertices held together by springs and a shape potential.
package ring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/config"
	"ringsim/internal/geom"
	"ringsim/internal/grid"
	"ringsim/internal/invasion"
	"ringsim/internal/rng"
	"ringsim/internal/workers"
)

const (
	highVelocity = 1e6
	errBuffer    = 64
)

// Debug holds the counters of the last step.
type Debug struct {
	SpringOverlap      int // bonded vertices at zero distance
	ExcludedVolOverlap int // vertex pairs at zero distance
	AreaOverlap        int // degenerate edges met by the format potential
	ZeroSpeed          int // rings whose mean velocity vanished
	HighVel            bool
	Created            int
	CreationSkipped    int // creations dropped because the pool was full
	Removed            int
	Invasions          int // unresolved invasion records
}

func (d *Debug) add(o Debug) {
	d.SpringOverlap += o.SpringOverlap
	d.ExcludedVolOverlap += o.ExcludedVolOverlap
	d.AreaOverlap += o.AreaOverlap
	d.ZeroSpeed += o.ZeroSpeed
	d.HighVel = d.HighVel || o.HighVel
}

// NaNError reports a vertex whose position became NaN.
type NaNError struct {
	Step   int
	Slot   int
	UID    int
	Vertex int
}

func (e *NaNError) Error() string {
	return fmt.Sprintf("ring: NaN position at step %d (slot %d, uid %d, vertex %d)", e.Step, e.Slot, e.UID, e.Vertex)
}

// Solver owns the ring pool and advances it one step at a time. Per vertex
// state lives in flat arrays indexed by slot*NumParticles+vertex.
type Solver struct {
	cfg   config.Ring
	stk   config.Stokes
	n     int
	dt    float64
	space geom.Space
	mode  config.Boundary

	pool *Pool

	pos    []r2.Vec
	vel    []r2.Vec
	forces []r2.Vec
	diff   []r2.Vec
	cont   []r2.Vec

	angle    []float64
	centroid []r2.Vec
	area     []float64
	perim    []float64

	grid    *grid.Grid[int]
	draw    *rng.Draw
	workers *workers.Pool
	parts   *workers.Partials
	counts  []Debug

	shape    shape
	springK  []float64 // per spring stiffness of the affected rings
	affected int

	checker *invasion.Checker
	flow    *flow
	step    func()
	errs    chan error

	Debug    Debug
	SimTime  float64
	NumSteps int
}

// New creates a solver holding the given rings. pos[i] is the vertex chain
// of ring i, in counter clockwise order; angles may be nil, in which case
// headings are drawn at random. In the open flow regime the pool is sized
// for num_max_rings and may start empty.
func New(pos [][]r2.Vec, angles []float64, conf *config.Config) (*Solver, error) {
	if conf.Solver.Integration != config.Euler {
		return nil, fmt.Errorf("%w: integration %s is not implemented", config.ErrInvalid, conf.Solver.Integration)
	}
	if angles != nil && len(angles) != len(pos) {
		return nil, fmt.Errorf("ring: %d rings but %d angles", len(pos), len(angles))
	}
	n := conf.Ring.NumParticles
	for i, p := range pos {
		if len(p) != n {
			return nil, fmt.Errorf("ring: ring %d has %d vertices, want %d", i, len(p), n)
		}
	}

	capacity := len(pos)
	if conf.Solver.Boundary == config.OpenFlow {
		capacity = max(capacity, conf.Stokes.NumMaxRings)
	}
	center := r2.Vec{X: conf.Space.CenterX, Y: conf.Space.CenterY}
	var space geom.Space = geom.Periodic{Length: conf.Space.Length, Height: conf.Space.Height, Center: center}
	if conf.Solver.Boundary == config.OpenFlow {
		space = geom.Open{}
	}

	g, err := grid.New[int](conf.Grid.Cols, conf.Grid.Rows, conf.Space.Length, conf.Space.Height, center, conf.Grid.UpdateFreq)
	if err != nil {
		return nil, fmt.Errorf("ring: %w", err)
	}
	checker, err := invasion.New(conf.Invasion, conf.Ring.KInvasion.Value, space, conf.Space.Length, conf.Space.Height, center)
	if err != nil {
		return nil, fmt.Errorf("ring: %w", err)
	}
	sh, err := newShape(conf.Ring)
	if err != nil {
		return nil, err
	}

	wp := workers.New(conf.Solver.Workers)
	total := capacity * n
	s := &Solver{
		cfg:      conf.Ring,
		stk:      conf.Stokes,
		n:        n,
		dt:       conf.Solver.Dt,
		space:    space,
		mode:     conf.Solver.Boundary,
		pool:     NewPool(capacity),
		pos:      make([]r2.Vec, total),
		vel:      make([]r2.Vec, total),
		forces:   make([]r2.Vec, total),
		diff:     make([]r2.Vec, total),
		cont:     make([]r2.Vec, total),
		angle:    make([]float64, capacity),
		centroid: make([]r2.Vec, capacity),
		area:     make([]float64, capacity),
		perim:    make([]float64, capacity),
		grid:     g,
		draw:     rng.New(conf.Solver.Seed, capacity, 2*n+1),
		workers:  wp,
		parts:    workers.NewPartials(wp.Size(), total),
		counts:   make([]Debug, wp.Size()),
		shape:    sh,
		checker:  checker,
		errs:     make(chan error, errBuffer),
	}

	for i, p := range pos {
		slot, err := s.pool.Add()
		if err != nil {
			return nil, fmt.Errorf("ring: %w", err)
		}
		copy(s.ring(s.pos, slot), p)
		if angles != nil {
			s.angle[slot] = angles[i]
		} else {
			s.angle[slot] = s.draw.Angle()
		}
	}

	switch conf.Solver.Boundary {
	case config.Periodic:
		s.step = s.stepWindowed
		if !conf.Solver.UseGrid {
			s.step = s.stepNormal
		}
	case config.Invagination:
		s.springK = springTable(n, conf.Ring.SpringK, conf.Invagination)
		s.affected = conf.Invagination.NumAffected
		s.step = s.stepWindowed
	case config.OpenFlow:
		s.flow = newFlow(conf, g, n)
		s.step = s.stepFlow
	default:
		return nil, fmt.Errorf("%w: unknown boundary %d", config.ErrInvalid, conf.Solver.Boundary)
	}

	ids := s.pool.IDs()
	s.grid.Rebuild(s.vertices(ids))
	s.measureAll(ids)
	return s, nil
}

// Step advances the population by one time step.
func (s *Solver) Step() { s.step() }

// Mode is the boundary regime the solver was built for.
func (s *Solver) Mode() config.Boundary { return s.mode }

// Errors delivers non fatal numerical failures. Errors are dropped when
// the channel is not drained.
func (s *Solver) Errors() <-chan error { return s.errs }

func (s *Solver) report(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

// NumParticles is the number of vertices per ring.
func (s *Solver) NumParticles() int { return s.n }

// Cap is the pool capacity.
func (s *Solver) Cap() int { return s.pool.Cap() }

// Len is the number of active rings.
func (s *Solver) Len() int { return s.pool.Len() }

// IDs returns the ascending active slots.
func (s *Solver) IDs() []int { return s.pool.IDs() }

// UID returns the unique id of the ring in slot.
func (s *Solver) UID(slot int) int { return s.pool.UID(slot) }

// Pos returns the vertex positions of the ring in slot.
func (s *Solver) Pos(slot int) []r2.Vec { return s.ring(s.pos, slot) }

// Vel returns the vertex velocities of the ring in slot.
func (s *Solver) Vel(slot int) []r2.Vec { return s.ring(s.vel, slot) }

// Polygon returns the unwrapped vertex chain of the ring in slot.
func (s *Solver) Polygon(slot int) []r2.Vec { return s.ring(s.cont, slot) }

// Angle is the propulsion heading of the ring in slot.
func (s *Solver) Angle(slot int) float64 { return s.angle[slot] }

// Centroid is the center of mass of the ring in slot, inside the domain.
func (s *Solver) Centroid(slot int) r2.Vec { return s.centroid[slot] }

// Area is the signed area of the ring in slot as last measured.
func (s *Solver) Area(slot int) float64 { return s.area[slot] }

// Perimeter is the perimeter of the ring in slot as last measured.
func (s *Solver) Perimeter(slot int) float64 { return s.perim[slot] }

// Invasions returns the unresolved and the cooling down invasion records.
func (s *Solver) Invasions() (active, resolved []invasion.Record) {
	return s.checker.Active(), s.checker.Resolved()
}

func (s *Solver) ring(flat []r2.Vec, slot int) []r2.Vec {
	return flat[slot*s.n : (slot+1)*s.n : (slot+1)*s.n]
}

// vertices yields the flat index and position of every vertex of ids.
func (s *Solver) vertices(ids []int) func(yield func(int, r2.Vec) bool) {
	return func(yield func(int, r2.Vec) bool) {
		for _, slot := range ids {
			for v := slot * s.n; v < (slot+1)*s.n; v++ {
				if !yield(v, s.pos[v]) {
					return
				}
			}
		}
	}
}

func (s *Solver) begin() {
	s.draw.Refresh()
	s.Debug = Debug{}
	clear(s.counts)
}

func (s *Solver) finish() {
	for _, c := range s.counts {
		s.Debug.add(c)
	}
	s.Debug.Invasions = len(s.checker.Active())
	s.SimTime += s.dt
	s.NumSteps++
}

// stepNormal visits every ordered vertex pair of the active rings.
func (s *Solver) stepNormal() {
	s.begin()
	ids := s.pool.IDs()
	s.measureAll(ids)
	s.normalPass(ids)
	s.euler(ids, true)
	s.finish()
}

// stepWindowed is the grid accelerated periodic step, shared with the
// invagination regime.
func (s *Solver) stepWindowed() {
	s.begin()
	ids := s.pool.IDs()
	s.grid.Tick(s.vertices(ids))
	s.measureAll(ids)
	s.checker.Update(s)
	s.pairPass()
	s.ringPass(ids)
	s.invasionPass()
	s.euler(ids, true)
	s.finish()
}

// stepFlow creates rings at the inlet, advances everything without
// wrapping and removes the rings past the outlet.
func (s *Solver) stepFlow() {
	s.begin()
	s.createRings()
	ids := s.pool.IDs()
	s.grid.Tick(s.vertices(ids))
	s.measureAll(ids)
	s.checker.Update(s)
	s.pairPass()
	s.ringPass(ids)
	s.invasionPass()
	s.euler(ids, false)
	s.measureAll(ids)
	s.removeRings(ids)
	s.pool.IDs()
	s.finish()
}

func isNaN(p r2.Vec) bool { return math.IsNaN(p.X) || math.IsNaN(p.Y) }
