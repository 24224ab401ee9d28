package ring

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/config"
	"ringsim/internal/geom"
)

// RestRadius is the circumradius of the regular polygon whose area is
// the target area of cfg.
func RestRadius(cfg config.Ring) float64 {
	n := float64(cfg.NumParticles)
	return math.Sqrt(2 * cfg.Area0 / (n * math.Sin(2*math.Pi/n)))
}

// Regular returns one ring at its rest area around center.
func Regular(cfg config.Ring, center r2.Vec) []r2.Vec {
	return geom.RegularPolygon(cfg.NumParticles, RestRadius(cfg), center, 0)
}

// Lattice places num rings at their rest area on a square lattice
// centered in the domain, with one diameter of clearance between rings.
func Lattice(conf *config.Config, num int) ([][]r2.Vec, error) {
	if num == 0 {
		return nil, nil
	}
	radius := RestRadius(conf.Ring)
	if conf.Ring.AreaPotential == config.Format {
		// no area target: size the ring by its springs at rest
		radius = conf.Ring.SpringR / (2 * math.Sin(math.Pi/float64(conf.Ring.NumParticles)))
	}
	spacing := 2*radius + conf.Ring.Diameter
	cols := int(math.Ceil(math.Sqrt(float64(num))))
	rows := (num + cols - 1) / cols
	if float64(cols)*spacing > conf.Space.Length || float64(rows)*spacing > conf.Space.Height {
		return nil, fmt.Errorf("ring: %d rings of radius %.3g do not fit in %gx%g",
			num, radius, conf.Space.Length, conf.Space.Height)
	}

	origin := r2.Vec{
		X: conf.Space.CenterX - float64(cols-1)*spacing/2,
		Y: conf.Space.CenterY - float64(rows-1)*spacing/2,
	}
	rings := make([][]r2.Vec, 0, num)
	for i := 0; i < num; i++ {
		c := r2.Add(origin, r2.Vec{X: float64(i%cols) * spacing, Y: float64(i/cols) * spacing})
		rings = append(rings, geom.RegularPolygon(conf.Ring.NumParticles, radius, c, 0))
	}
	return rings, nil
}
