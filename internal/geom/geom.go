// Package geom holds the domain metrics and the polygon helpers shared by
// the solvers.
package geom

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Space turns raw displacements into the ones the dynamics sees and keeps
// positions inside the domain.
type Space interface {
	// Diff corrects the raw displacement d = b - a.
	Diff(d r2.Vec) r2.Vec
	// Wrap brings p back into the domain, if the domain wraps at all.
	Wrap(p r2.Vec) r2.Vec
	// Periodic reports whether displacements wrap around the borders.
	Periodic() bool
}

// Periodic is a rectangular torus of the given size centered at Center.
type Periodic struct {
	Length float64
	Height float64
	Center r2.Vec
}

// Diff applies the minimum image convention.
func (s Periodic) Diff(d r2.Vec) r2.Vec {
	if math.Abs(d.X) > s.Length/2 {
		d.X -= math.Copysign(s.Length, d.X)
	}
	if math.Abs(d.Y) > s.Height/2 {
		d.Y -= math.Copysign(s.Height, d.Y)
	}
	return d
}

// Wrap shifts p by one domain size when it left through a border.
func (s Periodic) Wrap(p r2.Vec) r2.Vec {
	rel := r2.Sub(p, s.Center)
	if rel.X > s.Length/2 {
		p.X -= s.Length
	} else if rel.X < -s.Length/2 {
		p.X += s.Length
	}
	if rel.Y > s.Height/2 {
		p.Y -= s.Height
	} else if rel.Y < -s.Height/2 {
		p.Y += s.Height
	}
	return p
}

func (Periodic) Periodic() bool { return true }

// Open is the plain euclidean plane.
type Open struct{}

func (Open) Diff(d r2.Vec) r2.Vec { return d }
func (Open) Wrap(p r2.Vec) r2.Vec { return p }
func (Open) Periodic() bool       { return false }

// Dist returns the corrected displacement from a to b and its norm.
func Dist(s Space, a, b r2.Vec) (r2.Vec, float64) {
	d := s.Diff(r2.Sub(b, a))
	return d, r2.Norm(d)
}

// Snap teleports a coordinate that left [-size/2, size/2] to the opposite
// border instead of continuing past it.
func Snap(p r2.Vec, size float64) r2.Vec {
	half := size / 2
	if p.X > half {
		p.X = -half
	} else if p.X < -half {
		p.X = half
	}
	if p.Y > half {
		p.Y = -half
	} else if p.Y < -half {
		p.Y = half
	}
	return p
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Area is the signed shoelace area of a closed polygon, positive for
// counter clockwise vertex order.
func Area(poly []r2.Vec) float64 {
	var a float64
	n := len(poly)
	for i := range poly {
		a += r2.Cross(poly[i], poly[(i+1)%n])
	}
	return a / 2
}

// Contains is the ray crossing point in polygon test.
func Contains(poly []r2.Vec, p r2.Vec) bool {
	inside := false
	n := len(poly)
	for i := range poly {
		v1 := poly[i]
		v2 := poly[(i+1)%n]
		if (v2.Y > p.Y) != (v1.Y > p.Y) &&
			p.X < (v1.X-v2.X)*(p.Y-v2.Y)/(v1.Y-v2.Y)+v2.X {
			inside = !inside
		}
	}
	return inside
}

// RegularPolygon returns n vertices on a circle of radius r around c,
// starting at angle phase, in counter clockwise order.
func RegularPolygon(n int, r float64, c r2.Vec, phase float64) []r2.Vec {
	pts := make([]r2.Vec, n)
	step := 2 * math.Pi / float64(n)
	for i := range pts {
		a := phase + float64(i)*step
		pts[i] = r2.Vec{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)}
	}
	return pts
}
