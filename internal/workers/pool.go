// Package workers runs the embarrassingly parallel phases of a step.
package workers

import (
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r2"
)

// Pool splits index ranges across a fixed number of workers. Every call
// blocks until all chunks are done, so phases never overlap.
type Pool struct {
	size int
}

// New creates a pool of n workers; n <= 0 uses one worker per CPU.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{size: n}
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.size }

// Range calls fn(worker, from, to) over [0, total) split into at most Size
// contiguous chunks and waits for all of them.
func (p *Pool) Range(total int, fn func(worker, from, to int)) {
	if total <= 0 {
		return
	}
	chunks := min(p.size, total)
	if chunks == 1 {
		fn(0, 0, total)
		return
	}
	per := (total + chunks - 1) / chunks
	var g errgroup.Group
	for w := 0; w < chunks; w++ {
		from := w * per
		to := min(from+per, total)
		if from >= to {
			break
		}
		g.Go(func() error {
			fn(w, from, to)
			return nil
		})
	}
	g.Wait()
}

// Partials holds one force accumulator per worker so that third-law writes
// never race. Merge folds them into the shared accumulator after the phase.
type Partials struct {
	buf [][]r2.Vec
}

// NewPartials allocates workers accumulators of n vectors.
func NewPartials(workers, n int) *Partials {
	p := &Partials{buf: make([][]r2.Vec, workers)}
	for i := range p.buf {
		p.buf[i] = make([]r2.Vec, n)
	}
	return p
}

// Worker returns the accumulator owned by worker w.
func (p *Partials) Worker(w int) []r2.Vec { return p.buf[w] }

// Merge adds every accumulator into dst and zeroes them, splitting the
// index range over pool.
func (p *Partials) Merge(pool *Pool, dst []r2.Vec) {
	pool.Range(len(dst), func(_, from, to int) {
		for _, b := range p.buf {
			for i := from; i < to; i++ {
				if b[i] != (r2.Vec{}) {
					dst[i] = r2.Add(dst[i], b[i])
					b[i] = r2.Vec{}
				}
			}
		}
	})
}
