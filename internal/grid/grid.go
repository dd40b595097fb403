// Package grid provides the dense 2D grid, terrain classification and the
// distance fields the layout planner ranks cells with.
// Coordinates are gruid points: X grows rightwards, Y grows downwards.
package grid

import (
	"errors"
	"fmt"

	"codeberg.org/anaseto/gruid"
)

// ErrInvariant marks a violated planning invariant. A run that hits one must
// not produce output.
var ErrInvariant = errors.New("invariant violation")

// Grid is a dense W×H array addressed by (x, y).
// Reads outside the grid return Outside; writes outside the grid are dropped.
type Grid[T any] struct {
	W, H    int
	Outside T

	cells []T
}

// New creates a W×H grid filled with the zero value of T.
func New[T any](w, h int, outside T) *Grid[T] {
	if w <= 0 || h <= 0 {
		panic(fmt.Sprintf("grid: invalid size %dx%d", w, h))
	}
	return &Grid[T]{W: w, H: h, Outside: outside, cells: make([]T, w*h)}
}

// InBounds reports whether p addresses a cell of the grid.
func (g *Grid[T]) InBounds(p gruid.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.W && p.Y < g.H
}

// At returns the value at p, or Outside when p is out of bounds.
func (g *Grid[T]) At(p gruid.Point) T {
	if !g.InBounds(p) {
		return g.Outside
	}
	return g.cells[p.Y*g.W+p.X]
}

// Set writes v at p. Out-of-bounds writes are ignored.
func (g *Grid[T]) Set(p gruid.Point, v T) {
	if !g.InBounds(p) {
		return
	}
	g.cells[p.Y*g.W+p.X] = v
}

// Fill sets every cell to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.cells {
		g.cells[i] = v
	}
}

// Clone returns an independent copy of the grid.
func (g *Grid[T]) Clone() *Grid[T] {
	c := &Grid[T]{W: g.W, H: g.H, Outside: g.Outside, cells: make([]T, len(g.cells))}
	copy(c.cells, g.cells)
	return c
}

// Size returns the grid dimensions as a point.
func (g *Grid[T]) Size() gruid.Point {
	return gruid.Point{X: g.W, Y: g.H}
}

// Range returns the full extent of the grid.
func (g *Grid[T]) Range() gruid.Range {
	return gruid.Range{Max: g.Size()}
}

// Each calls fn for every cell in row-major order.
func (g *Grid[T]) Each(fn func(p gruid.Point, v T)) {
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			fn(gruid.Point{X: x, Y: y}, g.cells[y*g.W+x])
		}
	}
}

// Points returns every cell for which keep returns true, row-major.
func (g *Grid[T]) Points(keep func(p gruid.Point, v T) bool) []gruid.Point {
	var out []gruid.Point
	g.Each(func(p gruid.Point, v T) {
		if keep(p, v) {
			out = append(out, p)
		}
	})
	return out
}

// mustMatch panics when two grids disagree on size. A mismatched field is a
// programming error, not a recoverable condition.
func mustMatch(a, b gruid.Point) {
	if a != b {
		panic(fmt.Sprintf("grid: size mismatch %v vs %v", a, b))
	}
}

// InRect reports whether p lies in rg (Max exclusive).
func InRect(rg gruid.Range, p gruid.Point) bool {
	return p.X >= rg.Min.X && p.Y >= rg.Min.Y && p.X < rg.Max.X && p.Y < rg.Max.Y
}

// Square returns the cells within Chebyshev radius r of p, p included.
func Square(p gruid.Point, r int) []gruid.Point {
	out := make([]gruid.Point, 0, (2*r+1)*(2*r+1))
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			out = append(out, gruid.Point{X: p.X + dx, Y: p.Y + dy})
		}
	}
	return out
}

// Adjacent returns the 8 neighbours of p in a fixed order.
func Adjacent(p gruid.Point) [8]gruid.Point {
	return [8]gruid.Point{
		{X: p.X, Y: p.Y - 1},
		{X: p.X + 1, Y: p.Y - 1},
		{X: p.X + 1, Y: p.Y},
		{X: p.X + 1, Y: p.Y + 1},
		{X: p.X, Y: p.Y + 1},
		{X: p.X - 1, Y: p.Y + 1},
		{X: p.X - 1, Y: p.Y},
		{X: p.X - 1, Y: p.Y - 1},
	}
}
