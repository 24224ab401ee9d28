// Package rng provides the per-step random draw cache used by the solvers.
package rng

import (
	"math"
	"time"

	"golang.org/x/exp/rand"
)

// TimeSeed requests a seed derived from the wall clock.
const TimeSeed = -1

// Draw caches Slots uniform numbers in [-1, 1) per entity. The cache is
// redrawn once per step by Refresh, so every read inside a step is
// reproducible and safe from concurrent goroutines.
type Draw struct {
	rnd   *rand.Rand
	slots int
	cache []float64
}

// New creates a Draw for n entities with the given number of slots each.
func New(seed int64, n, slots int) *Draw {
	if seed == TimeSeed {
		seed = time.Now().UnixNano()
	}
	return &Draw{
		rnd:   rand.New(rand.NewSource(uint64(seed))),
		slots: slots,
		cache: make([]float64, n*slots),
	}
}

// Refresh redraws every cached number.
func (d *Draw) Refresh() {
	for i := range d.cache {
		d.cache[i] = 2*d.rnd.Float64() - 1
	}
}

// Uniform returns the cached number for (entity, slot).
func (d *Draw) Uniform(entity, slot int) float64 {
	return d.cache[entity*d.slots+slot]
}

// Angle draws a fresh angle in [0, 2π), outside the cache.
func (d *Draw) Angle() float64 {
	return 2 * math.Pi * d.rnd.Float64()
}

// Float64 draws a fresh number in [0, 1), outside the cache.
func (d *Draw) Float64() float64 {
	return d.rnd.Float64()
}

// Len is the number of entities covered by the cache.
func (d *Draw) Len() int { return len(d.cache) / d.slots }
