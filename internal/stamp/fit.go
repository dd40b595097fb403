package stamp

import (
	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
)

// Site is the ground a stamp is tested against.
type Site struct {
	Terrain *grid.Grid[grid.Terrain]
	DT      *grid.Grid[int] // distance transform of Terrain
	Plan    *grid.Grid[entity.Type]
	Bounds  gruid.Range // placed cells must fall inside
}

// Placement is an accepted (anchor, orientation) pair.
type Placement struct {
	Anchor      gruid.Point
	Orientation Orientation
	Variant     *Template
	FreshRoads  int // template roads landing on cells that are not roads yet
}

// origin returns the plan cell of template offset (0,0) when the template
// anchor sits on anchor.
func origin(v *Template, anchor gruid.Point) gruid.Point {
	return gruid.Point{X: anchor.X - v.Anchor.X, Y: anchor.Y - v.Anchor.Y}
}

func cellOf(v *Template, anchor, off gruid.Point) gruid.Point {
	o := origin(v, anchor)
	return gruid.Point{X: o.X + off.X, Y: o.Y + off.Y}
}

// compatible reports whether a template cell wanting want may land on a plan
// cell holding occ. Roads may share cells with roads and reserved lanes.
func compatible(want, occ entity.Type) bool {
	switch occ {
	case entity.Empty:
		return true
	case entity.Road, entity.Reserved:
		return want == entity.Road
	}
	return false
}

// Fits reports whether oriented template v can be placed with its anchor on
// anchor.
func Fits(site *Site, v *Template, anchor gruid.Point) bool {
	for _, cp := range v.Checks() {
		c := cellOf(v, anchor, cp.Offset)
		if !grid.InRect(site.Bounds, c) || !site.Plan.InBounds(c) {
			return false
		}
		if site.DT.At(c) <= cp.Radius {
			return false
		}
		if cp.Radius == 0 {
			if want := v.At(cp.Offset); want != entity.Empty && !compatible(want, site.Plan.At(c)) {
				return false
			}
			continue
		}
		for _, q := range grid.Square(c, cp.Radius) {
			if site.Plan.At(q).Hard() {
				return false
			}
		}
	}
	return true
}

// Place applies v anchored at anchor. Existing hard structures are never
// overwritten.
func Place(site *Site, v *Template, anchor gruid.Point) int {
	return Placement{Anchor: anchor, Variant: v}.Apply(site)
}

// Apply writes the placement into site.Plan. Blocked cells and cells holding
// an incompatible structure are skipped. It returns the number of cells
// written.
func (p Placement) Apply(site *Site) int {
	n := 0
	for c, et := range p.Cells() {
		if site.Terrain.At(c).Blocked() || !site.Plan.InBounds(c) {
			continue
		}
		if occ := site.Plan.At(c); occ != entity.Empty && !compatible(et, occ) {
			continue
		}
		site.Plan.Set(c, et)
		n++
	}
	return n
}

// freshRoads counts template roads that would need building.
func freshRoads(site *Site, v *Template, anchor gruid.Point) int {
	n := 0
	v.Each(func(off gruid.Point, et entity.Type) {
		if et == entity.Road && site.Plan.At(cellOf(v, anchor, off)) != entity.Road {
			n++
		}
	})
	return n
}

// BestPlacement walks candidates in order and tests every orientation of s
// on each. Among the fits it keeps the one needing the fewest fresh roads.
// The search stops once budget candidate cells have produced a fit.
func BestPlacement(site *Site, s *Stamp, candidates []gruid.Point, budget int) (Placement, bool) {
	if budget < 1 {
		budget = 1
	}
	var best Placement
	found := false
	fitted := 0
	for _, c := range candidates {
		fit := false
		for o := Orientation(0); o < OrientationCount; o++ {
			v := &s.Variants[o]
			if !Fits(site, v, c) {
				continue
			}
			fit = true
			cost := freshRoads(site, v, c)
			if !found || cost < best.FreshRoads {
				best = Placement{Anchor: c, Orientation: o, Variant: v, FreshRoads: cost}
				found = true
			}
		}
		if fit {
			fitted++
			if fitted >= budget {
				break
			}
		}
	}
	return best, found
}

// Cells returns the plan cells a placement covers, paired with their types.
func (p Placement) Cells() map[gruid.Point]entity.Type {
	out := make(map[gruid.Point]entity.Type)
	p.Variant.Each(func(off gruid.Point, et entity.Type) {
		out[cellOf(p.Variant, p.Anchor, off)] = et
	})
	return out
}
