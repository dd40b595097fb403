package perimeter

import (
	"codeberg.org/anaseto/gruid"
	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
)

// edgeGap keeps the source ring this far from the map edge so a cut always
// exists between the ring and the border.
const edgeGap = 2

// ProtectedRegion returns the plan cells that must sit inside the wall.
func ProtectedRegion(plan *grid.Grid[entity.Type]) []gruid.Point {
	return plan.Points(func(_ gruid.Point, t entity.Type) bool { return t.Protected() })
}

// SourceRing grows the protected cells outward over open terrain by ring
// steps. The result is the source side of the cut.
func SourceRing(terrain *grid.Grid[grid.Terrain], protected []gruid.Point, ring int) mapset.Set[gruid.Point] {
	set := mapset.New[gruid.Point]()
	if len(protected) == 0 {
		return set
	}
	dist := grid.New(terrain.W, terrain.H, grid.Unreached)
	dist.Fill(grid.Unreached)
	if ring > 0 {
		grid.FloodFill(dist, protected, func(p gruid.Point) bool { return !terrain.At(p).Blocked() }, ring)
	} else {
		for _, p := range protected {
			dist.Set(p, 0)
		}
	}
	inner := gruid.Range{
		Min: gruid.Point{X: edgeGap, Y: edgeGap},
		Max: gruid.Point{X: terrain.W - edgeGap, Y: terrain.H - edgeGap},
	}
	dist.Each(func(p gruid.Point, d int) {
		if d != grid.Unreached && grid.InRect(inner, p) && !terrain.At(p).Blocked() {
			set.Put(p)
		}
	})
	return set
}

// EdgeSinks returns every open cell on the map border.
func EdgeSinks(terrain *grid.Grid[grid.Terrain]) mapset.Set[gruid.Point] {
	set := mapset.New[gruid.Point]()
	terrain.Each(func(p gruid.Point, t grid.Terrain) {
		if t.Blocked() {
			return
		}
		if p.X == 0 || p.Y == 0 || p.X == terrain.W-1 || p.Y == terrain.H-1 {
			set.Put(p)
		}
	})
	return set
}

// Solve computes the perimeter grid for a finished plan. A plan with nothing
// to protect gets an empty perimeter.
func Solve(terrain *grid.Grid[grid.Terrain], plan *grid.Grid[entity.Type], ring int) (*grid.Grid[bool], error) {
	out := grid.New(terrain.W, terrain.H, false)
	sources := SourceRing(terrain, ProtectedRegion(plan), ring)
	if sources.Size() == 0 {
		return out, nil
	}
	cut, err := MinCut(terrain, sources, EdgeSinks(terrain))
	if err != nil {
		return nil, err
	}
	for _, p := range cut {
		if !terrain.At(p).Blocked() {
			out.Set(p, true)
		}
	}
	return out, nil
}
