// Package road is the weighted shortest-path primitive every road-planning
// step goes through. Callers describe the ground with a cost grid in the
// usual cost-matrix convention: 0 defers to terrain, Impassable blocks, and
// anything else is the explicit cost of entering the cell.
package road

import (
	"codeberg.org/anaseto/gruid"
	"codeberg.org/anaseto/gruid/paths"
	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/outpost/internal/grid"
)

// Impassable marks a cell the search never enters unless it is a goal.
const Impassable uint8 = 255

// Options tune one search.
type Options struct {
	PlainCost      int
	RestrictedCost int
	MaxCost        int  // search budget in path cost; <= 0 means unbounded
	Diagonal       bool // 8-way movement
}

// Result is the outcome of a search. Path excludes the start and ends on the
// reached goal, or on the explored cell closest to a goal when Incomplete.
type Result struct {
	Path       []gruid.Point
	Cost       int
	Incomplete bool
}

// NewCosts returns an all-default cost grid. Reads outside it are Impassable.
func NewCosts(w, h int) *grid.Grid[uint8] {
	return grid.New(w, h, Impassable)
}

type searcher struct {
	nb      paths.Neighbors
	rg      gruid.Range
	terrain *grid.Grid[grid.Terrain]
	costs   *grid.Grid[uint8]
	goals   mapset.Set[gruid.Point]
	start   gruid.Point
	opt     Options
}

// enter returns the cost of stepping onto q, 0 when q is impassable.
func (s *searcher) enter(q gruid.Point) int {
	if !grid.InRect(s.rg, q) || s.terrain.At(q).Blocked() {
		return 0
	}
	switch c := s.costs.At(q); c {
	case Impassable:
		return 0
	case 0:
		if s.terrain.At(q) == grid.TerrainRestricted {
			return s.opt.RestrictedCost
		}
		return s.opt.PlainCost
	default:
		return int(c)
	}
}

func (s *searcher) passable(q gruid.Point) bool {
	if !grid.InRect(s.rg, q) {
		return false
	}
	return s.goals.Has(q) || s.enter(q) > 0
}

// expandable reports whether the search may continue out of p. Impassable
// goals are reachable but never walked through.
func (s *searcher) expandable(p gruid.Point) bool {
	return p == s.start || s.enter(p) > 0
}

func (s *searcher) Neighbors(p gruid.Point) []gruid.Point {
	if !s.expandable(p) {
		return nil
	}
	if s.opt.Diagonal {
		return s.nb.All(p, s.passable)
	}
	return s.nb.Cardinal(p, s.passable)
}

func (s *searcher) Cost(_, q gruid.Point) int {
	if c := s.enter(q); c > 0 {
		return c
	}
	return 1
}

func (s *searcher) estimate(p gruid.Point, goals []gruid.Point) int {
	best := -1
	for _, g := range goals {
		d := paths.DistanceManhattan(p, g)
		if s.opt.Diagonal {
			d = paths.DistanceChebyshev(p, g)
		}
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

// ShortestPath searches from start to the nearest of goals over terrain and
// costs. When no goal is reachable within the budget the path to the explored
// cell nearest a goal is returned with Incomplete set.
func ShortestPath(terrain *grid.Grid[grid.Terrain], start gruid.Point, goals []gruid.Point, costs *grid.Grid[uint8], opt Options) Result {
	if opt.PlainCost < 1 {
		opt.PlainCost = 1
	}
	if opt.RestrictedCost < 1 {
		opt.RestrictedCost = opt.PlainCost
	}
	maxCost := opt.MaxCost
	if maxCost <= 0 {
		maxCost = terrain.W * terrain.H * int(Impassable)
	}

	s := &searcher{
		rg:      terrain.Range(),
		terrain: terrain,
		costs:   costs,
		goals:   mapset.New[gruid.Point](),
		start:   start,
		opt:     opt,
	}
	for _, g := range goals {
		s.goals.Put(g)
	}
	if len(goals) == 0 {
		return Result{Incomplete: true}
	}
	if s.goals.Has(start) {
		return Result{}
	}

	pr := paths.NewPathRange(s.rg)
	nodes := pr.DijkstraMap(s, []gruid.Point{start}, maxCost)
	dist := make(map[gruid.Point]int, len(nodes)+1)
	for _, n := range nodes {
		dist[n.P] = n.Cost
	}
	dist[start] = 0

	target, found := start, false
	for _, g := range goals {
		d, ok := dist[g]
		if !ok {
			continue
		}
		if !found || d < dist[target] {
			target, found = g, true
		}
	}
	if !found {
		// Fall back to the explored cell closest to any goal.
		bestEst := s.estimate(start, goals)
		for _, n := range nodes {
			if !s.expandable(n.P) {
				continue
			}
			e := s.estimate(n.P, goals)
			if e < bestEst || (e == bestEst && n.Cost < dist[target]) {
				target, bestEst = n.P, e
			}
		}
	}

	path := s.backtrack(dist, target)
	return Result{Path: path, Cost: dist[target], Incomplete: !found}
}

// backtrack walks from target down the cost field to the start.
func (s *searcher) backtrack(dist map[gruid.Point]int, target gruid.Point) []gruid.Point {
	var rev []gruid.Point
	cur := target
	for cur != s.start {
		rev = append(rev, cur)
		next, ok := cur, false
		for _, n := range grid.Adjacent(cur) {
			if !s.opt.Diagonal && n.X != cur.X && n.Y != cur.Y {
				continue
			}
			d, seen := dist[n]
			if !seen || !s.expandable(n) {
				continue
			}
			if d+s.Cost(n, cur) == dist[cur] {
				next, ok = n, true
				break
			}
		}
		if !ok {
			// The cost field is inconsistent; keep what we have.
			break
		}
		cur = next
	}
	path := make([]gruid.Point, len(rev))
	for i, p := range rev {
		path[len(rev)-1-i] = p
	}
	return path
}
