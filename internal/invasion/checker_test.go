package invasion

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/config"
	"ringsim/internal/geom"
)

// fakeRings is a static population of polygons.
type fakeRings struct {
	polys [][]r2.Vec
}

func (f *fakeRings) IDs() []int {
	ids := make([]int, len(f.polys))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func (f *fakeRings) Centroid(ring int) r2.Vec {
	var c r2.Vec
	for _, p := range f.polys[ring] {
		c = r2.Add(c, p)
	}
	return r2.Scale(1/float64(len(f.polys[ring])), c)
}

func (f *fakeRings) Polygon(ring int) []r2.Vec { return f.polys[ring] }

func testChecker(t *testing.T, steps int) *Checker {
	t.Helper()
	cfg := config.Invasion{Cols: 5, Rows: 5, UpdateFreq: 1, StepsAfterResolved: steps}
	c, err := New(cfg, 2.5, geom.Periodic{Length: 20, Height: 20}, 20, 20, r2.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

type applied struct {
	ring, vertex int
	f            r2.Vec
}

func collect(c *Checker, rings Rings) []applied {
	var out []applied
	c.Forces(rings, func(ring, vertex int, f r2.Vec) {
		out = append(out, applied{ring, vertex, f})
	})
	return out
}

func TestDetectsVertexInsideOtherRing(t *testing.T) {
	a := geom.RegularPolygon(8, 1, r2.Vec{}, 0)
	b := geom.RegularPolygon(8, 1, r2.Vec{X: 1.9}, 0)
	rings := &fakeRings{polys: [][]r2.Vec{a, b}}

	c := testChecker(t, 2)
	c.Update(rings)

	var hitA, hitB bool
	for _, r := range c.Active() {
		if r.Ring == 0 && r.Vertex == 0 && r.Invaded == 1 {
			hitA = true
		}
		if r.Ring == 1 && r.Vertex == 4 && r.Invaded == 0 {
			hitB = true
		}
	}
	if !hitA || !hitB {
		t.Fatalf("expected both tips detected, got %+v", c.Active())
	}

	forces := collect(c, rings)
	if len(forces) != len(c.Active()) {
		t.Errorf("expected one force per active record, got %d for %d", len(forces), len(c.Active()))
	}
	for _, f := range forces {
		if math.Abs(r2.Norm(f.f)-2.5) > 1e-12 {
			t.Errorf("force magnitude = %g, want 2.5", r2.Norm(f.f))
		}
		if f.ring == 0 && f.vertex == 0 && f.f.X >= 0 {
			t.Errorf("tip of ring 0 should be pushed back towards -x, got %v", f.f)
		}
	}
}

func TestNoInvasionForSeparatedRings(t *testing.T) {
	rings := &fakeRings{polys: [][]r2.Vec{
		geom.RegularPolygon(8, 1, r2.Vec{}, 0),
		geom.RegularPolygon(8, 1, r2.Vec{X: 2.5}, 0),
	}}
	c := testChecker(t, 2)
	c.Update(rings)
	if len(c.Active()) != 0 {
		t.Errorf("expected no invasion, got %+v", c.Active())
	}
}

func TestDetectsAcrossPeriodicBorder(t *testing.T) {
	rings := &fakeRings{polys: [][]r2.Vec{
		geom.RegularPolygon(8, 1, r2.Vec{X: 9.5}, 0),
		geom.RegularPolygon(8, 1, r2.Vec{X: -8.6}, 0),
	}}
	c := testChecker(t, 2)
	c.Update(rings)
	found := false
	for _, r := range c.Active() {
		if r.Ring == 0 && r.Vertex == 0 && r.Invaded == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected invasion through the border, got %+v", c.Active())
	}
}

func TestResolvedInvasionKeepsPushingForCooldown(t *testing.T) {
	const cooldown = 3
	a := geom.RegularPolygon(8, 1, r2.Vec{}, 0)
	b := geom.RegularPolygon(8, 1, r2.Vec{X: 1.9}, 0)
	rings := &fakeRings{polys: [][]r2.Vec{a, b}}

	c := testChecker(t, cooldown)
	c.Update(rings)
	if got := collect(c, rings); len(got) == 0 {
		t.Fatal("expected forces while invading")
	}

	// separate the rings: every record resolves
	rings.polys[1] = geom.RegularPolygon(8, 1, r2.Vec{X: 5}, 0)
	steps := 0
	for i := 0; i < 10; i++ {
		c.Update(rings)
		got := collect(c, rings)
		if len(got) == 0 {
			break
		}
		steps++
	}
	if steps != cooldown {
		t.Errorf("forces lasted %d steps after resolution, want %d", steps, cooldown)
	}
	if len(c.Active()) != 0 || len(c.Resolved()) != 0 {
		t.Errorf("records left after cooldown: %d active, %d resolved", len(c.Active()), len(c.Resolved()))
	}
}

func TestZeroCooldownStopsImmediately(t *testing.T) {
	rings := &fakeRings{polys: [][]r2.Vec{
		geom.RegularPolygon(8, 1, r2.Vec{}, 0),
		geom.RegularPolygon(8, 1, r2.Vec{X: 1.9}, 0),
	}}
	c := testChecker(t, 0)
	c.Update(rings)
	collect(c, rings)

	rings.polys[1] = geom.RegularPolygon(8, 1, r2.Vec{X: 5}, 0)
	c.Update(rings)
	if got := collect(c, rings); len(got) != 0 {
		t.Errorf("expected no force after resolution, got %d", len(got))
	}
}

func TestForgetDropsRecords(t *testing.T) {
	rings := &fakeRings{polys: [][]r2.Vec{
		geom.RegularPolygon(8, 1, r2.Vec{}, 0),
		geom.RegularPolygon(8, 1, r2.Vec{X: 1.9}, 0),
	}}
	c := testChecker(t, 2)
	c.Update(rings)
	c.Forget(1)
	if len(c.Active()) != 0 {
		t.Errorf("expected no records after Forget, got %+v", c.Active())
	}
}

func TestDisabledCheckerDoesNothing(t *testing.T) {
	c, err := New(config.Invasion{Disable: true}, 1, geom.Open{}, 10, 10, r2.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	rings := &fakeRings{polys: [][]r2.Vec{
		geom.RegularPolygon(8, 1, r2.Vec{}, 0),
		geom.RegularPolygon(8, 1, r2.Vec{X: 1.5}, 0),
	}}
	c.Update(rings)
	if c.Enabled() || len(c.Active()) != 0 || len(collect(c, rings)) != 0 {
		t.Error("disabled checker should not record or push")
	}
}
