package ring

import (
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/config"
)

func flowConfig() *config.Config {
	conf := testConfig()
	conf.Solver.Boundary = config.OpenFlow
	conf.Space.Length = 20
	conf.Space.Height = 10
	conf.Grid.Cols = 10
	conf.Grid.Rows = 5
	conf.Ring.RotDiff = 0
	conf.Stokes.ObstacleX = 100
	conf.Stokes.ObstacleR = 1
	conf.Stokes.NumMaxRings = 10
	return conf
}

func TestFlowCreatesRingOnEveryFreeBand(t *testing.T) {
	conf := flowConfig()
	s := newSolver(t, nil, nil, conf)
	if s.Candidates() != 2 {
		t.Fatalf("candidates = %d, want 2", s.Candidates())
	}

	s.Step()
	if s.Debug.Created != 2 || s.Len() != 2 {
		t.Fatalf("created %d, %d active; want 2 and 2", s.Debug.Created, s.Len())
	}
	for _, slot := range s.IDs() {
		if c := s.Centroid(slot); c.X > -5 {
			t.Errorf("ring %d created away from the inlet: %v", slot, c)
		}
	}
	if s.UID(0) != 1 || s.UID(1) != 2 {
		t.Errorf("uids = %d %d, want 1 2", s.UID(0), s.UID(1))
	}

	s.Step()
	if s.Debug.Created != 0 || s.Len() != 2 {
		t.Errorf("bands still occupied but created %d (%d active)", s.Debug.Created, s.Len())
	}
}

func TestFlowCreationWithFullPoolIsSkipped(t *testing.T) {
	conf := flowConfig()
	conf.Stokes.NumMaxRings = 1
	if err := conf.Validate(); err != nil {
		t.Fatal(err)
	}
	s := newSolver(t, [][]r2.Vec{Regular(conf.Ring, r2.Vec{})}, []float64{0}, conf)

	s.Step()
	if s.Debug.Created != 0 {
		t.Errorf("created %d rings with a full pool", s.Debug.Created)
	}
	if s.Debug.CreationSkipped != 2 {
		t.Errorf("skipped %d creations, want 2", s.Debug.CreationSkipped)
	}
	if s.Len() != 1 {
		t.Errorf("active = %d, want 1", s.Len())
	}
}

func TestFlowRemovesRingsPastOutlet(t *testing.T) {
	conf := flowConfig()
	if err := conf.Validate(); err != nil {
		t.Fatal(err)
	}
	s := newSolver(t, [][]r2.Vec{Regular(conf.Ring, r2.Vec{X: 8})}, []float64{0}, conf)
	gone := s.UID(0)

	s.Step()
	if s.Debug.Removed != 1 {
		t.Fatalf("removed %d rings, want 1", s.Debug.Removed)
	}
	if s.Len() != 2 {
		t.Errorf("active = %d, want the 2 new rings", s.Len())
	}
	for _, slot := range s.IDs() {
		if s.UID(slot) == gone {
			t.Errorf("removed ring %d still active in slot %d", gone, slot)
		}
		if s.UID(slot) <= gone {
			t.Errorf("slot %d got uid %d, not newer than %d", slot, s.UID(slot), gone)
		}
	}
}

func TestFlowWallsStopOutwardVelocity(t *testing.T) {
	conf := flowConfig()
	conf.Ring.Vo = 3
	if err := conf.Validate(); err != nil {
		t.Fatal(err)
	}
	s := newSolver(t, nil, nil, conf)
	got := s.clampWalls(r2.Vec{X: 0, Y: 6}, r2.Vec{X: 1, Y: 2})
	if got != (r2.Vec{X: 1}) {
		t.Errorf("top wall: velocity %v, want {1 0}", got)
	}
	got = s.clampWalls(r2.Vec{X: -11, Y: -6}, r2.Vec{X: -1, Y: -2})
	if got != (r2.Vec{}) {
		t.Errorf("bottom left corner: velocity %v, want zero", got)
	}
	got = s.clampWalls(r2.Vec{X: 0, Y: 0}, r2.Vec{X: -1, Y: 2})
	if got != (r2.Vec{X: -1, Y: 2}) {
		t.Errorf("inside: velocity changed to %v", got)
	}
}

func TestReusedSlotHasNoStaleGridEntries(t *testing.T) {
	conf := flowConfig()
	conf.Grid.UpdateFreq = 5
	if err := conf.Validate(); err != nil {
		t.Fatal(err)
	}
	s := newSolver(t, [][]r2.Vec{Regular(conf.Ring, r2.Vec{})}, []float64{0}, conf)
	s.Step()

	slot := s.IDs()[0]
	pos := append([]r2.Vec(nil), s.Pos(slot)...)
	s.Remove(slot)
	got, err := s.Add(pos, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != slot {
		t.Fatalf("add reused slot %d, want %d", got, slot)
	}

	first := got * s.NumParticles()
	listed := 0
	for c := 0; c < s.grid.NumCells(); c++ {
		for _, v := range s.grid.Members(c) {
			if v == first {
				listed++
			}
		}
	}
	if listed != 1 {
		t.Errorf("vertex %d listed %d times in the grid, want 1", first, listed)
	}

	s.Step()
	if s.Debug.ExcludedVolOverlap != 0 {
		t.Errorf("overlaps = %d, want 0", s.Debug.ExcludedVolOverlap)
	}
}
