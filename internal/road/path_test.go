package road

import (
	"testing"

	"codeberg.org/anaseto/gruid"
	"codeberg.org/anaseto/gruid/paths"

	"github.com/talgya/outpost/internal/grid"
)

func terrainOf(t *testing.T, rows ...string) *grid.Grid[grid.Terrain] {
	t.Helper()
	g, err := grid.ParseTerrain(rows)
	if err != nil {
		t.Fatalf("ParseTerrain: %v", err)
	}
	return g
}

func open10(t *testing.T) *grid.Grid[grid.Terrain] {
	rows := make([]string, 10)
	for i := range rows {
		rows[i] = ".........."
	}
	return terrainOf(t, rows...)
}

func TestShortestPathManhattanOptimal(t *testing.T) {
	terrain := open10(t)
	start, goal := gruid.Point{X: 0, Y: 0}, gruid.Point{X: 5, Y: 5}
	res := ShortestPath(terrain, start, []gruid.Point{goal}, NewCosts(10, 10), Options{PlainCost: 1})
	if res.Incomplete {
		t.Fatalf("unexpected incomplete path")
	}
	if len(res.Path) != paths.DistanceManhattan(start, goal) {
		t.Fatalf("path length %d want %d", len(res.Path), paths.DistanceManhattan(start, goal))
	}
	if res.Path[len(res.Path)-1] != goal {
		t.Fatalf("path ends at %v", res.Path[len(res.Path)-1])
	}
	prev := start
	for _, p := range res.Path {
		if paths.DistanceManhattan(prev, p) != 1 {
			t.Fatalf("non-adjacent step %v -> %v", prev, p)
		}
		if paths.DistanceManhattan(p, goal) >= paths.DistanceManhattan(prev, goal) {
			t.Fatalf("step %v -> %v does not progress", prev, p)
		}
		prev = p
	}
}

func TestShortestPathDiagonal(t *testing.T) {
	terrain := open10(t)
	res := ShortestPath(terrain, gruid.Point{}, []gruid.Point{{X: 5, Y: 5}}, NewCosts(10, 10), Options{PlainCost: 1, Diagonal: true})
	if res.Incomplete || len(res.Path) != 5 || res.Cost != 5 {
		t.Fatalf("diagonal path len=%d cost=%d incomplete=%v", len(res.Path), res.Cost, res.Incomplete)
	}
}

func TestShortestPathAvoidsCosts(t *testing.T) {
	terrain := terrainOf(t,
		".....",
		".~~~.",
		".....",
	)
	costs := NewCosts(5, 3)
	costs.Set(gruid.Point{X: 2, Y: 0}, Impassable)
	costs.Set(gruid.Point{X: 2, Y: 2}, Impassable)
	res := ShortestPath(terrain, gruid.Point{X: 0, Y: 1}, []gruid.Point{{X: 4, Y: 1}}, costs,
		Options{PlainCost: 1, RestrictedCost: 5, Diagonal: true})
	if res.Incomplete {
		t.Fatalf("incomplete")
	}
	for _, p := range res.Path {
		if costs.At(p) == Impassable {
			t.Fatalf("path crosses impassable cell %v", p)
		}
	}
	if res.Cost != 8 {
		t.Fatalf("cost %d want 8 (one swamp cell)", res.Cost)
	}
	if res.Path[1] != (gruid.Point{X: 2, Y: 1}) {
		t.Fatalf("expected path through the only gap, got %v", res.Path)
	}
}

func TestShortestPathImpassableGoal(t *testing.T) {
	terrain := open10(t)
	costs := NewCosts(10, 10)
	goal := gruid.Point{X: 4, Y: 4}
	costs.Set(goal, Impassable)
	res := ShortestPath(terrain, gruid.Point{X: 4, Y: 0}, []gruid.Point{goal}, costs, Options{PlainCost: 1})
	if res.Incomplete || len(res.Path) != 4 {
		t.Fatalf("path to impassable goal: len=%d incomplete=%v", len(res.Path), res.Incomplete)
	}
}

func TestShortestPathIncomplete(t *testing.T) {
	terrain := terrainOf(t,
		"...#...",
		"...#...",
		"...#...",
	)
	res := ShortestPath(terrain, gruid.Point{X: 0, Y: 1}, []gruid.Point{{X: 6, Y: 1}}, NewCosts(7, 3),
		Options{PlainCost: 1, Diagonal: true})
	if !res.Incomplete {
		t.Fatalf("expected incomplete result")
	}
	if len(res.Path) == 0 || res.Path[len(res.Path)-1].X != 2 {
		t.Fatalf("partial path should stop against the wall, got %v", res.Path)
	}
}

func TestShortestPathBudget(t *testing.T) {
	terrain := open10(t)
	res := ShortestPath(terrain, gruid.Point{}, []gruid.Point{{X: 9, Y: 0}}, NewCosts(10, 10),
		Options{PlainCost: 1, MaxCost: 3})
	if !res.Incomplete {
		t.Fatalf("budget should cut the search short")
	}
	if got := res.Path[len(res.Path)-1]; got != (gruid.Point{X: 3, Y: 0}) {
		t.Fatalf("partial path ends at %v want (3,0)", got)
	}
}
