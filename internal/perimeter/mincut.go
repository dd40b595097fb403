// Package perimeter derives the defensive wall: the smallest set of open
// cells whose removal separates the protected structures from every map
// edge. It is a vertex minimum cut computed with Dinic's max-flow over the
// 8-connected terrain graph.
package perimeter

import (
	"fmt"

	"codeberg.org/anaseto/gruid"
	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/outpost/internal/grid"
)

const inf = 1 << 30

type edge struct {
	to, rev int
	cap     int
}

// network is a residual flow graph. Every open cell i owns an entry node 2i
// and an exit node 2i+1 joined by its cut capacity.
type network struct {
	adj   [][]edge
	level []int
	iter  []int
}

func newNetwork(n int) *network {
	return &network{adj: make([][]edge, n), level: make([]int, n), iter: make([]int, n)}
}

func (nw *network) add(u, v, c int) {
	nw.adj[u] = append(nw.adj[u], edge{to: v, rev: len(nw.adj[v]), cap: c})
	nw.adj[v] = append(nw.adj[v], edge{to: u, rev: len(nw.adj[u]) - 1, cap: 0})
}

func (nw *network) bfs(s int) {
	for i := range nw.level {
		nw.level[i] = -1
	}
	nw.level[s] = 0
	queue := []int{s}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, e := range nw.adj[u] {
			if e.cap > 0 && nw.level[e.to] < 0 {
				nw.level[e.to] = nw.level[u] + 1
				queue = append(queue, e.to)
			}
		}
	}
}

func (nw *network) dfs(u, t, f int) int {
	if u == t {
		return f
	}
	for ; nw.iter[u] < len(nw.adj[u]); nw.iter[u]++ {
		e := &nw.adj[u][nw.iter[u]]
		if e.cap <= 0 || nw.level[e.to] != nw.level[u]+1 {
			continue
		}
		if d := nw.dfs(e.to, t, min(f, e.cap)); d > 0 {
			e.cap -= d
			nw.adj[e.to][e.rev].cap += d
			return d
		}
	}
	return 0
}

func (nw *network) maxFlow(s, t int) int {
	flow := 0
	for {
		nw.bfs(s)
		if nw.level[t] < 0 {
			return flow
		}
		for i := range nw.iter {
			nw.iter[i] = 0
		}
		for {
			f := nw.dfs(s, t, inf)
			if f == 0 {
				break
			}
			flow += f
			if flow >= inf {
				return flow
			}
		}
	}
}

// MinCut returns a minimum set of open cells separating sources from sinks
// under 8-way movement. Source and sink cells are never cut; blocked cells
// are not part of the graph. It fails when a source touches a sink, since no
// finite cut exists.
func MinCut(terrain *grid.Grid[grid.Terrain], sources, sinks mapset.Set[gruid.Point]) ([]gruid.Point, error) {
	w, h := terrain.W, terrain.H
	cells := w * h
	s, t := 2*cells, 2*cells+1
	nw := newNetwork(2*cells + 2)
	idx := func(p gruid.Point) int { return p.Y*w + p.X }

	terrain.Each(func(p gruid.Point, tt grid.Terrain) {
		if tt.Blocked() {
			return
		}
		i := idx(p)
		c := 1
		if sources.Has(p) || sinks.Has(p) {
			c = inf
		}
		nw.add(2*i, 2*i+1, c)
		if sources.Has(p) {
			nw.add(s, 2*i, inf)
		}
		if sinks.Has(p) {
			nw.add(2*i+1, t, inf)
		}
		for _, q := range grid.Adjacent(p) {
			if terrain.InBounds(q) && !terrain.At(q).Blocked() {
				nw.add(2*i+1, 2*idx(q), inf)
			}
		}
	})

	if flow := nw.maxFlow(s, t); flow >= inf {
		return nil, fmt.Errorf("perimeter: protected area touches the map edge: %w", grid.ErrInvariant)
	}

	nw.bfs(s)
	var cut []gruid.Point
	terrain.Each(func(p gruid.Point, tt grid.Terrain) {
		if tt.Blocked() {
			return
		}
		i := idx(p)
		if nw.level[2*i] >= 0 && nw.level[2*i+1] < 0 {
			cut = append(cut, p)
		}
	})
	return cut, nil
}
