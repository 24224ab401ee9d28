// Package grid is the uniform cell partition used for neighbor search.
package grid

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"
)

// ErrShape is returned for grids with fewer than 3 columns or rows. With
// fewer cells a neighbor would wrap onto the cell itself.
var ErrShape = errors.New("grid needs at least 3 columns and 3 rows")

// Grid partitions a rectangular domain into Cols x Rows cells. Cell
// (row, col) has index row*Cols+col; row 0 is the bottom strip and column 0
// the left one.
type Grid[T any] struct {
	cols, rows       int
	length, height   float64
	center           r2.Vec
	colSize, rowSize float64

	cells     [][]T
	neighbors [][4]int

	freq    int
	counter int
}

// New creates an empty grid over the domain of the given size centered at
// center. The grid is rebuilt by Tick once every updateFreq calls.
func New[T any](cols, rows int, length, height float64, center r2.Vec, updateFreq int) (*Grid[T], error) {
	if cols < 3 || rows < 3 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrShape, cols, rows)
	}
	if updateFreq < 1 {
		updateFreq = 1
	}
	g := &Grid[T]{
		cols:    cols,
		rows:    rows,
		length:  length,
		height:  height,
		center:  center,
		colSize: length / float64(cols),
		rowSize: height / float64(rows),
		cells:   make([][]T, cols*rows),
		freq:    updateFreq,
	}
	g.neighbors = make([][4]int, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			down := (r + 1) % rows
			g.neighbors[r*cols+c] = [4]int{
				r*cols + (c+1)%cols,         // east
				down*cols + c,               // south
				down*cols + (c+1)%cols,      // south-east
				down*cols + (c-1+cols)%cols, // south-west
			}
		}
	}
	return g, nil
}

// Clear empties all cells, keeping their allocated capacity.
func (g *Grid[T]) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// CellOf returns the index of the cell holding p. Positions outside the
// domain are clamped into the border cells.
func (g *Grid[T]) CellOf(p r2.Vec) int {
	c := int((p.X - g.center.X + g.length/2) / g.colSize)
	r := int((p.Y - g.center.Y + g.height/2) / g.rowSize)
	if c < 0 {
		c = 0
	} else if c >= g.cols {
		c = g.cols - 1
	}
	if r < 0 {
		r = 0
	} else if r >= g.rows {
		r = g.rows - 1
	}
	return r*g.cols + c
}

// Insert adds an occupant at p.
func (g *Grid[T]) Insert(p r2.Vec, v T) {
	idx := g.CellOf(p)
	g.cells[idx] = append(g.cells[idx], v)
}

// Rebuild clears the grid and inserts every occupant.
func (g *Grid[T]) Rebuild(occupants iter.Seq2[T, r2.Vec]) {
	g.Clear()
	for v, p := range occupants {
		g.Insert(p, v)
	}
}

// Tick rebuilds the grid when the update counter is due and reports
// whether it did.
func (g *Grid[T]) Tick(occupants iter.Seq2[T, r2.Vec]) bool {
	if g.counter%g.freq == 0 {
		g.Rebuild(occupants)
		g.counter = 1
		return true
	}
	g.counter++
	return false
}

// NumCells is Cols*Rows.
func (g *Grid[T]) NumCells() int { return len(g.cells) }

// DeleteFunc removes every occupant for which del returns true.
func (g *Grid[T]) DeleteFunc(del func(T) bool) {
	for i, members := range g.cells {
		g.cells[i] = slices.DeleteFunc(members, del)
	}
}

// Members returns the occupants of a cell. The slice is only valid until the
// next rebuild.
func (g *Grid[T]) Members(cell int) []T { return g.cells[cell] }

// Neighbors returns the east, south, south-east and south-west cells.
func (g *Grid[T]) Neighbors(cell int) [4]int { return g.neighbors[cell] }

// Bounds returns the lower left and upper right corners of a cell.
func (g *Grid[T]) Bounds(cell int) (lo, hi r2.Vec) {
	r, c := cell/g.cols, cell%g.cols
	lo = r2.Vec{
		X: g.center.X - g.length/2 + float64(c)*g.colSize,
		Y: g.center.Y - g.height/2 + float64(r)*g.rowSize,
	}
	hi = r2.Vec{X: lo.X + g.colSize, Y: lo.Y + g.rowSize}
	return lo, hi
}

// VisitCells calls fn for every pair owned by the cells in [from, to): the
// pairs inside each cell and the pairs between the cell and its 4
// neighbors. Disjoint ranges visit disjoint pairs.
func (g *Grid[T]) VisitCells(from, to int, fn func(a, b T)) {
	for cell := from; cell < to; cell++ {
		members := g.cells[cell]
		for i, a := range members {
			for _, b := range members[i+1:] {
				fn(a, b)
			}
			for _, n := range g.neighbors[cell] {
				for _, b := range g.cells[n] {
					fn(a, b)
				}
			}
		}
	}
}

// ForEachPair visits every unordered pair of occupants in the same or in
// adjacent cells exactly once.
func (g *Grid[T]) ForEachPair(fn func(a, b T)) {
	g.VisitCells(0, len(g.cells), fn)
}
