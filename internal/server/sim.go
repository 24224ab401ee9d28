package server

import (
	"ringsim/internal/config"
	"ringsim/internal/particle"
	"ringsim/internal/ring"
	"ringsim/internal/rng"
	"ringsim/internal/store"
)

// Sim is a solver driven by the Runner
type Sim interface {
	Step()
	Frame() *Frame
	Stat() store.StepStat
	Active() int
	Errors() <-chan error // nil when the solver never reports
}

// checkpointer is implemented by sims that can be saved and restored
type checkpointer interface {
	Snapshot() *ring.Checkpoint
	Restore(step int, simTime float64, cp *ring.Checkpoint) error
}

// RingSim adapts a ring solver
type RingSim struct {
	*ring.Solver
}

// NewRingSim wraps s
func NewRingSim(s *ring.Solver) *RingSim { return &RingSim{Solver: s} }

func (r *RingSim) Active() int { return r.Len() }

func (r *RingSim) Frame() *Frame {
	ids := r.IDs()
	f := &Frame{
		Step:    r.NumSteps,
		SimTime: r.SimTime,
		Rings:   make([]RingState, len(ids)),
		Debug:   r.frameDebug(),
	}
	for i, slot := range ids {
		poly := r.Polygon(slot)
		rs := RingState{
			UID:   r.UID(slot),
			X:     make([]float32, len(poly)),
			Y:     make([]float32, len(poly)),
			CX:    float32(r.Centroid(slot).X),
			CY:    float32(r.Centroid(slot).Y),
			Angle: float32(r.Angle(slot)),
			Area:  float32(r.Area(slot)),
		}
		for v, p := range poly {
			rs.X[v] = float32(p.X)
			rs.Y[v] = float32(p.Y)
		}
		f.Rings[i] = rs
	}
	return f
}

func (r *RingSim) frameDebug() FrameDebug {
	d := r.Debug
	return FrameDebug{
		Overlaps:  d.SpringOverlap + d.ExcludedVolOverlap + d.AreaOverlap,
		Invasions: d.Invasions,
		ZeroSpeed: d.ZeroSpeed,
		HighVel:   d.HighVel,
	}
}

func (r *RingSim) Stat() store.StepStat {
	d := r.frameDebug()
	return store.StepStat{
		Step:      r.NumSteps,
		SimTime:   r.SimTime,
		Active:    r.Len(),
		Overlaps:  d.Overlaps,
		Invasions: d.Invasions,
		ZeroSpeed: d.ZeroSpeed,
		Created:   r.Debug.Created,
		Removed:   r.Debug.Removed,
	}
}

// Restore loads cp and resumes the step counter and clock of the save
func (r *RingSim) Restore(step int, simTime float64, cp *ring.Checkpoint) error {
	if err := r.Load(cp); err != nil {
		return err
	}
	r.NumSteps = step
	r.SimTime = simTime
	return nil
}

// ParticleSim adapts a particle solver
type ParticleSim struct {
	*particle.Solver
}

// NewParticleSim wraps s
func NewParticleSim(s *particle.Solver) *ParticleSim { return &ParticleSim{Solver: s} }

func (p *ParticleSim) Active() int { return p.Len() }

func (p *ParticleSim) Errors() <-chan error { return nil }

func (p *ParticleSim) Frame() *Frame {
	f := &Frame{
		Step:      p.NumSteps,
		SimTime:   p.SimTime,
		Particles: make([]ParticleState, len(p.Pos)),
		Debug:     FrameDebug{Overlaps: p.Debug.Superposition, ZeroSpeed: p.Debug.ZeroSpeed},
	}
	for i, pos := range p.Pos {
		f.Particles[i] = ParticleState{
			X:     float32(pos.X),
			Y:     float32(pos.Y),
			Angle: float32(p.Angle[i]),
		}
	}
	return f
}

func (p *ParticleSim) Stat() store.StepStat {
	return store.StepStat{
		Step:      p.NumSteps,
		SimTime:   p.SimTime,
		Active:    p.Len(),
		Overlaps:  p.Debug.Superposition,
		ZeroSpeed: p.Debug.ZeroSpeed,
	}
}

// NewSim builds the solver selected by conf with its initial population
func NewSim(conf *config.Config) (Sim, error) {
	if conf.Solver.System == config.SystemParticle {
		pos, vel := particle.Random(conf.Particle.Num, conf.Space.Length, conf.Solver.Seed)
		s, err := particle.New(pos, vel, conf)
		if err != nil {
			return nil, err
		}
		return NewParticleSim(s), nil
	}

	pos, err := ring.Lattice(conf, conf.Ring.NumRings)
	if err != nil {
		return nil, err
	}
	d := rng.New(conf.Solver.Seed, 0, 1)
	angles := make([]float64, len(pos))
	for i := range angles {
		angles[i] = d.Angle()
	}
	s, err := ring.New(pos, angles, conf)
	if err != nil {
		return nil, err
	}
	return NewRingSim(s), nil
}
