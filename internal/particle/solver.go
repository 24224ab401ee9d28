// Package particle evolves self-propelled point particles on a square
// periodic domain.
package particle

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/config"
	"ringsim/internal/geom"
	"ringsim/internal/grid"
	"ringsim/internal/rng"
	"ringsim/internal/workers"
)

// superposed is the distance under which two particles count as stacked.
const superposed = 1e-6

// Debug holds the counters of the last step.
type Debug struct {
	Superposition int // pairs at numerically zero distance
	ZeroSpeed     int // particles whose velocity vanished
}

// Solver owns the particle population. Pos, Vel and Angle are readable
// between steps; they must not be written while Step runs.
type Solver struct {
	cfg   config.Particle
	size  float64
	dt    float64
	space geom.Periodic

	Pos   []r2.Vec
	Vel   []r2.Vec
	Prop  []r2.Vec // propulsion unit vectors
	Angle []float64

	forces []r2.Vec
	grid   *grid.Grid[int]
	draw   *rng.Draw
	pool   *workers.Pool
	parts  *workers.Partials

	overlaps []int
	zero     []int

	Debug    Debug
	SimTime  float64
	NumSteps int
}

// New creates a solver from initial positions and velocities. Headings are
// drawn uniformly.
func New(pos, vel []r2.Vec, conf *config.Config) (*Solver, error) {
	if len(pos) != len(vel) {
		return nil, fmt.Errorf("particle: %d positions but %d velocities", len(pos), len(vel))
	}
	if conf.Space.Length != conf.Space.Height {
		return nil, fmt.Errorf("%w: particle domain must be square", config.ErrInvalid)
	}
	size := conf.Space.Length
	g, err := grid.New[int](conf.Grid.Cols, conf.Grid.Rows, size, size, r2.Vec{}, conf.Grid.UpdateFreq)
	if err != nil {
		return nil, fmt.Errorf("particle: %w", err)
	}
	n := len(pos)
	pool := workers.New(conf.Solver.Workers)
	s := &Solver{
		cfg:      conf.Particle,
		size:     size,
		dt:       conf.Solver.Dt,
		space:    geom.Periodic{Length: size, Height: size},
		Pos:      append([]r2.Vec(nil), pos...),
		Vel:      append([]r2.Vec(nil), vel...),
		Prop:     make([]r2.Vec, n),
		Angle:    make([]float64, n),
		forces:   make([]r2.Vec, n),
		grid:     g,
		draw:     rng.New(conf.Solver.Seed, n, 1),
		pool:     pool,
		parts:    workers.NewPartials(pool.Size(), n),
		overlaps: make([]int, pool.Size()),
		zero:     make([]int, pool.Size()),
	}
	for i := range s.Angle {
		s.Angle[i] = s.draw.Angle()
		s.Prop[i] = r2.Vec{X: math.Cos(s.Angle[i]), Y: math.Sin(s.Angle[i])}
	}
	return s, nil
}

// Len is the number of particles.
func (s *Solver) Len() int { return len(s.Pos) }

// Step advances one time step using the grid for neighbor search.
func (s *Solver) Step() {
	s.begin()
	s.grid.Tick(func(yield func(int, r2.Vec) bool) {
		for i, p := range s.Pos {
			if !yield(i, p) {
				return
			}
		}
	})
	s.pool.Range(s.grid.NumCells(), func(w, from, to int) {
		acc := s.parts.Worker(w)
		s.grid.VisitCells(from, to, func(a, b int) {
			if s.pairForce(a, b, acc) {
				s.overlaps[w]++
			}
		})
	})
	s.parts.Merge(s.pool, s.forces)
	s.integrate()
}

// StepNormal advances one time step visiting every pair. It is the
// reference the grid accelerated Step must agree with.
func (s *Solver) StepNormal() {
	s.begin()
	for i := 0; i < len(s.Pos)-1; i++ {
		for j := i + 1; j < len(s.Pos); j++ {
			if s.pairForce(i, j, s.forces) {
				s.overlaps[0]++
			}
		}
	}
	s.integrate()
}

func (s *Solver) begin() {
	s.draw.Refresh()
	clear(s.overlaps)
	clear(s.zero)
}

// pairForce adds the soft attraction/repulsion between i and j to acc and
// reports whether the pair was superposed.
func (s *Solver) pairForce(i, j int, acc []r2.Vec) bool {
	d, dist := geom.Dist(s.space, s.Pos[i], s.Pos[j])
	if dist > s.cfg.MaxR {
		return false
	}
	if dist < superposed {
		acc[i].X += s.cfg.MaxRepulsiveForce
		acc[j].X -= s.cfg.MaxRepulsiveForce
		return true
	}
	var scalar float64
	if dist < s.cfg.REq {
		scalar = s.cfg.MaxRepulsiveForce * (dist - s.cfg.REq) / s.cfg.REq
	} else {
		scalar = s.cfg.MaxAttractiveForce * (dist - s.cfg.REq) / (s.cfg.MaxR - s.cfg.REq)
	}
	f := r2.Scale(scalar/dist, d)
	acc[i] = r2.Add(acc[i], f)
	acc[j] = r2.Sub(acc[j], f)
	return false
}

func (s *Solver) integrate() {
	noiseScale := s.cfg.Nabla / (2 * math.Sqrt(s.dt))
	s.pool.Range(len(s.Pos), func(w, from, to int) {
		for i := from; i < to; i++ {
			v := r2.Add(r2.Scale(s.cfg.Vo, s.Prop[i]), r2.Scale(s.cfg.Mobility, s.forces[i]))
			s.Vel[i] = v

			var align float64
			if speed := r2.Norm(v); speed == 0 {
				s.zero[w]++
			} else {
				cross := geom.Clamp(r2.Cross(s.Prop[i], v)/speed, -1, 1)
				align = math.Asin(cross) / s.cfg.RelaxationTime
			}
			s.Angle[i] += (align + noiseScale*s.draw.Uniform(i, 0)) * s.dt

			s.Pos[i] = geom.Snap(r2.Add(s.Pos[i], r2.Scale(s.dt, v)), s.size)
			s.Prop[i] = r2.Vec{X: math.Cos(s.Angle[i]), Y: math.Sin(s.Angle[i])}
			s.forces[i] = r2.Vec{}
		}
	})

	s.Debug = Debug{}
	for w := range s.overlaps {
		s.Debug.Superposition += s.overlaps[w]
		s.Debug.ZeroSpeed += s.zero[w]
	}
	s.SimTime += s.dt
	s.NumSteps++
}
