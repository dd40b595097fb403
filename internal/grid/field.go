package grid

import (
	"fmt"
	"math"
	"sort"

	"codeberg.org/anaseto/gruid"
	"codeberg.org/anaseto/gruid/paths"
)

// Unreached is the field sentinel for cells no source could reach, or that
// are blocked. It dominates field composition.
const Unreached = -1

// floodPather adapts a passability predicate to the paths.Pather interface.
type floodPather struct {
	nb   paths.Neighbors
	rg   gruid.Range
	keep func(gruid.Point) bool
}

func (fp *floodPather) Neighbors(p gruid.Point) []gruid.Point {
	return fp.nb.All(p, func(q gruid.Point) bool {
		return InRect(fp.rg, q) && fp.keep(q)
	})
}

// FloodFill runs a multi-source breadth-first search over 8-connected cells.
// Every cell reached through passable cells gets its hop count to the nearest
// source written into g; sources get 0. Cells never reached keep the value g
// already holds, so callers pick their own sentinel. maxDist <= 0 means
// unbounded. It returns the number of cells written.
func FloodFill(g *Grid[int], sources []gruid.Point, passable func(gruid.Point) bool, maxDist int) int {
	if len(sources) == 0 {
		return 0
	}
	if maxDist <= 0 {
		maxDist = g.W * g.H
	}
	rg := g.Range()
	pr := paths.NewPathRange(rg)
	nodes := pr.BreadthFirstMap(&floodPather{rg: rg, keep: passable}, sources, maxDist)
	written := make(map[gruid.Point]struct{}, len(nodes)+len(sources))
	for _, node := range nodes {
		if !g.InBounds(node.P) {
			continue
		}
		g.Set(node.P, node.Cost)
		written[node.P] = struct{}{}
	}
	for _, s := range sources {
		if g.InBounds(s) {
			g.Set(s, 0)
			written[s] = struct{}{}
		}
	}
	return len(written)
}

// DistanceField returns a fresh field holding the hop distance from sources
// over non-blocked terrain. Blocked and unreachable cells are Unreached.
func DistanceField(terrain *Grid[Terrain], sources []gruid.Point, maxDist int) *Grid[int] {
	f := New(terrain.W, terrain.H, Unreached)
	f.Fill(Unreached)
	FloodFill(f, sources, func(p gruid.Point) bool { return !terrain.At(p).Blocked() }, maxDist)
	return f
}

// DistanceTransform gives every open cell its Chebyshev distance to the
// nearest blocked cell, counting the area outside the grid as blocked.
// Blocked cells are 0.
func DistanceTransform(terrain *Grid[Terrain]) *Grid[int] {
	dt := New(terrain.W, terrain.H, 0)
	dt.Fill(Unreached)
	walls := terrain.Points(func(_ gruid.Point, t Terrain) bool { return t.Blocked() })
	FloodFill(dt, walls, func(p gruid.Point) bool { return !terrain.At(p).Blocked() }, 0)
	dt.Each(func(p gruid.Point, v int) {
		if terrain.At(p).Blocked() {
			dt.Set(p, 0)
			return
		}
		edge := min(p.X+1, p.Y+1, terrain.W-p.X, terrain.H-p.Y)
		if v == Unreached || edge < v {
			dt.Set(p, edge)
		}
	})
	return dt
}

// WeightedField pairs a non-negative field with its contribution weight.
// Negative weights invert the preference of the field.
type WeightedField struct {
	Field  *Grid[int]
	Weight float64
}

// ComposeFields sums value*weight over every pair cell by cell and rescales
// the sums linearly into [lo, hi]. A cell that is Unreached in any field is
// Unreached in the result. All fields must share one size; a mismatch panics.
func ComposeFields(pairs []WeightedField, lo, hi int) (*Grid[int], error) {
	if len(pairs) == 0 {
		panic("grid: ComposeFields needs at least one field")
	}
	if hi < lo {
		return nil, fmt.Errorf("compose: range [%d,%d] inverted: %w", lo, hi, ErrInvariant)
	}
	size := pairs[0].Field.Size()
	for i, p := range pairs {
		mustMatch(size, p.Field.Size())
		if math.IsNaN(p.Weight) || math.IsInf(p.Weight, 0) {
			return nil, fmt.Errorf("compose: field %d weight %v: %w", i, p.Weight, ErrInvariant)
		}
	}

	sums := make([]float64, size.X*size.Y)
	blocked := make([]bool, len(sums))
	minV, maxV := math.Inf(1), math.Inf(-1)
	for y := 0; y < size.Y; y++ {
		for x := 0; x < size.X; x++ {
			pt := gruid.Point{X: x, Y: y}
			i := y*size.X + x
			var s float64
			for fi, p := range pairs {
				v := p.Field.At(pt)
				if v == Unreached {
					blocked[i] = true
					break
				}
				if v < 0 {
					return nil, fmt.Errorf("compose: field %d negative score %d at %v: %w", fi, v, pt, ErrInvariant)
				}
				s += float64(v) * p.Weight
			}
			if blocked[i] {
				continue
			}
			sums[i] = s
			minV = math.Min(minV, s)
			maxV = math.Max(maxV, s)
		}
	}

	out := New(size.X, size.Y, Unreached)
	span := maxV - minV
	for i, s := range sums {
		pt := gruid.Point{X: i % size.X, Y: i / size.X}
		switch {
		case blocked[i]:
			out.Set(pt, Unreached)
		case span <= 0:
			out.Set(pt, lo)
		default:
			out.Set(pt, lo+int(math.Round((s-minV)*float64(hi-lo)/span)))
		}
	}
	return out, nil
}

// Rank returns the cells of rect that carry a score and pass keep, ordered by
// ascending score. Ties keep row-major order.
func Rank(score *Grid[int], rect gruid.Range, keep func(gruid.Point) bool) []gruid.Point {
	var out []gruid.Point
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			p := gruid.Point{X: x, Y: y}
			if !score.InBounds(p) || score.At(p) == Unreached {
				continue
			}
			if keep != nil && !keep(p) {
				continue
			}
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return score.At(out[i]) < score.At(out[j])
	})
	return out
}
