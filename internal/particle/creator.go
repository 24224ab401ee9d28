package particle

import (
	"gonum.org/v1/gonum/spatial/r2"

	"ringsim/internal/rng"
)

// Random places n particles uniformly on the square of the given size,
// at rest.
func Random(n int, size float64, seed int64) (pos, vel []r2.Vec) {
	d := rng.New(seed, 0, 1)
	pos = make([]r2.Vec, n)
	vel = make([]r2.Vec, n)
	for i := range pos {
		pos[i] = r2.Vec{X: (d.Float64() - 0.5) * size, Y: (d.Float64() - 0.5) * size}
	}
	return pos, vel
}
