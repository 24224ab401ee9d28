package geom

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestPeriodicDiffMinimumImage(t *testing.T) {
	s := Periodic{Length: 10, Height: 6}
	d := s.Diff(r2.Vec{X: 9, Y: -4})
	if d.X != -1 || d.Y != 2 {
		t.Errorf("Diff = %v, want {-1 2}", d)
	}
	d = s.Diff(r2.Vec{X: 4, Y: 2})
	if d.X != 4 || d.Y != 2 {
		t.Errorf("short displacement changed: %v", d)
	}
}

func TestPeriodicWrapShifts(t *testing.T) {
	s := Periodic{Length: 10, Height: 10}
	p := s.Wrap(r2.Vec{X: 5.5, Y: -6})
	if math.Abs(p.X+4.5) > 1e-12 || math.Abs(p.Y-4) > 1e-12 {
		t.Errorf("Wrap = %v, want {-4.5 4}", p)
	}
}

func TestOpenKeepsEverything(t *testing.T) {
	var s Space = Open{}
	if d := s.Diff(r2.Vec{X: 100, Y: -100}); d.X != 100 || d.Y != -100 {
		t.Errorf("open Diff changed displacement: %v", d)
	}
	if s.Periodic() {
		t.Error("open space should not be periodic")
	}
}

func TestSnapTeleports(t *testing.T) {
	p := Snap(r2.Vec{X: 5.1, Y: -5.1}, 10)
	if p.X != -5 || p.Y != 5 {
		t.Errorf("Snap = %v, want {-5 5}", p)
	}
}

func TestAreaUnitSquare(t *testing.T) {
	sq := []r2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	if a := Area(sq); math.Abs(a-1) > 1e-12 {
		t.Errorf("ccw area = %g, want 1", a)
	}
	rev := []r2.Vec{sq[3], sq[2], sq[1], sq[0]}
	if a := Area(rev); math.Abs(a+1) > 1e-12 {
		t.Errorf("cw area = %g, want -1", a)
	}
}

func TestAreaRegularPolygon(t *testing.T) {
	n, r := 6, 2.0
	want := 0.5 * float64(n) * r * r * math.Sin(2*math.Pi/float64(n))
	if a := Area(RegularPolygon(n, r, r2.Vec{X: 3, Y: -1}, 0.3)); math.Abs(a-want) > 1e-12 {
		t.Errorf("hexagon area = %g, want %g", a, want)
	}
}

func TestContains(t *testing.T) {
	tri := []r2.Vec{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 0, Y: 4}}
	if !Contains(tri, r2.Vec{X: 1, Y: 1}) {
		t.Error("expected (1,1) inside triangle")
	}
	if Contains(tri, r2.Vec{X: 3, Y: 3}) {
		t.Error("expected (3,3) outside triangle")
	}
	if Contains(tri, r2.Vec{X: -1, Y: 1}) {
		t.Error("expected (-1,1) outside triangle")
	}
}

func TestClamp(t *testing.T) {
	if Clamp(1.5, -1, 1) != 1 || Clamp(-2, -1, 1) != -1 || Clamp(0.25, -1, 1) != 0.25 {
		t.Error("Clamp out of range")
	}
}
