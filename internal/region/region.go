// Package region describes the ground a plan is made for: terrain plus the
// points of interest the planner routes to.
package region

import (
	"fmt"

	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/grid"
)

// Kind tags a point of interest.
type Kind uint8

const (
	KindController Kind = iota // growth anchor the upgrader container serves
	KindSource                 // harvestable node
	KindMineral                // mineral node
	KindExit                   // boundary exit
)

var kindNames = [...]string{
	KindController: "controller",
	KindSource:     "source",
	KindMineral:    "mineral",
	KindExit:       "exit",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a document kind name to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown point of interest kind %q", s)
}

// POI is a point of interest.
type POI struct {
	Kind Kind
	At   gruid.Point
}

// Side indexes the four map edges.
type Side int

const (
	Top Side = iota
	Right
	Bottom
	Left
)

// Region is one plannable area. It is read-only once built.
type Region struct {
	ID      string
	Terrain *grid.Grid[grid.Terrain]
	POIs    []POI
}

// New builds a region and derives exits from the open border cells when the
// caller listed none.
func New(id string, terrain *grid.Grid[grid.Terrain], pois []POI) (*Region, error) {
	r := &Region{ID: id, Terrain: terrain, POIs: append([]POI(nil), pois...)}
	if len(r.of(KindExit)) == 0 {
		for _, p := range borderCells(terrain) {
			if !terrain.At(p).Blocked() {
				r.POIs = append(r.POIs, POI{Kind: KindExit, At: p})
			}
		}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the region invariants.
func (r *Region) Validate() error {
	if r.Terrain == nil {
		return fmt.Errorf("region %s: no terrain: %w", r.ID, grid.ErrInvariant)
	}
	if n := len(r.of(KindController)); n != 1 {
		return fmt.Errorf("region %s: %d controllers, want 1: %w", r.ID, n, grid.ErrInvariant)
	}
	if len(r.of(KindSource)) == 0 {
		return fmt.Errorf("region %s: no sources: %w", r.ID, grid.ErrInvariant)
	}
	for _, p := range r.POIs {
		if !r.Terrain.InBounds(p.At) {
			return fmt.Errorf("region %s: %s at %v out of bounds: %w", r.ID, p.Kind, p.At, grid.ErrInvariant)
		}
		if r.Terrain.At(p.At).Blocked() {
			return fmt.Errorf("region %s: %s at %v is blocked: %w", r.ID, p.Kind, p.At, grid.ErrInvariant)
		}
	}
	return nil
}

func (r *Region) of(k Kind) []gruid.Point {
	var out []gruid.Point
	for _, p := range r.POIs {
		if p.Kind == k {
			out = append(out, p.At)
		}
	}
	return out
}

// Controller returns the growth anchor.
func (r *Region) Controller() gruid.Point {
	return r.of(KindController)[0]
}

// Sources returns the harvestable nodes.
func (r *Region) Sources() []gruid.Point {
	return r.of(KindSource)
}

// Mineral returns the mineral node, if the region has one.
func (r *Region) Mineral() (gruid.Point, bool) {
	m := r.of(KindMineral)
	if len(m) == 0 {
		return gruid.Point{}, false
	}
	return m[0], true
}

// Exits returns every exit cell.
func (r *Region) Exits() []gruid.Point {
	return r.of(KindExit)
}

// ExitSides groups exits by map edge. A corner cell belongs to the first
// side it lies on in Top, Right, Bottom, Left order.
func (r *Region) ExitSides() [4][]gruid.Point {
	var sides [4][]gruid.Point
	w, h := r.Terrain.W, r.Terrain.H
	for _, p := range r.Exits() {
		switch {
		case p.Y == 0:
			sides[Top] = append(sides[Top], p)
		case p.X == w-1:
			sides[Right] = append(sides[Right], p)
		case p.Y == h-1:
			sides[Bottom] = append(sides[Bottom], p)
		case p.X == 0:
			sides[Left] = append(sides[Left], p)
		}
	}
	return sides
}

// borderCells lists the border clockwise from the top-left corner, each once.
func borderCells(g *grid.Grid[grid.Terrain]) []gruid.Point {
	var out []gruid.Point
	w, h := g.W, g.H
	for x := 0; x < w; x++ {
		out = append(out, gruid.Point{X: x, Y: 0})
	}
	for y := 1; y < h; y++ {
		out = append(out, gruid.Point{X: w - 1, Y: y})
	}
	if h > 1 {
		for x := w - 2; x >= 0; x-- {
			out = append(out, gruid.Point{X: x, Y: h - 1})
		}
	}
	if w > 1 {
		for y := h - 2; y >= 1; y-- {
			out = append(out, gruid.Point{X: 0, Y: y})
		}
	}
	return out
}
