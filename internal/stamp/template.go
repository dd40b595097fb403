// Package stamp holds the fixed structure layouts ("stamps") the planner
// places, their eight oriented variants, and the fit/placement search.
package stamp

import (
	"fmt"

	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
)

// ClearancePoint requires the terrain distance transform at Offset to exceed
// Radius. A positive radius also demands a square neighbourhood of that
// radius free of hard structures.
type ClearancePoint struct {
	Offset gruid.Point
	Radius int
}

// Template is an immutable rectangular layout. Cells[y][x] == entity.Empty
// means the template leaves that cell alone.
type Template struct {
	Name      string
	W, H      int
	Cells     [][]entity.Type
	Anchor    gruid.Point
	Clearance []ClearancePoint
}

// Parse builds a template from row strings. Each character is an entity
// token character; '.' and ' ' leave the cell empty.
func Parse(name string, rows []string, anchor gruid.Point, clearance ...ClearancePoint) (Template, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Template{}, fmt.Errorf("template %s: empty: %w", name, grid.ErrInvariant)
	}
	t := Template{Name: name, W: len(rows[0]), H: len(rows), Anchor: anchor}
	t.Cells = make([][]entity.Type, t.H)
	for y, row := range rows {
		if len(row) != t.W {
			return Template{}, fmt.Errorf("template %s: row %d width %d, want %d: %w", name, y, len(row), t.W, grid.ErrInvariant)
		}
		t.Cells[y] = make([]entity.Type, t.W)
		for x, c := range []byte(row) {
			if c == '.' || c == ' ' {
				continue
			}
			et, ok := entity.FromChar(c)
			if !ok || !et.Planned() {
				return Template{}, fmt.Errorf("template %s: bad cell %q at (%d,%d): %w", name, c, x, y, grid.ErrInvariant)
			}
			t.Cells[y][x] = et
		}
	}
	if !t.contains(anchor) {
		return Template{}, fmt.Errorf("template %s: anchor %v outside %dx%d: %w", name, anchor, t.W, t.H, grid.ErrInvariant)
	}
	for _, cp := range clearance {
		if !t.contains(cp.Offset) || cp.Radius < 0 {
			return Template{}, fmt.Errorf("template %s: clearance point %v/%d invalid: %w", name, cp.Offset, cp.Radius, grid.ErrInvariant)
		}
	}
	t.Clearance = append([]ClearancePoint(nil), clearance...)
	return t, nil
}

// MustParse is Parse for static catalogue data.
func MustParse(name string, rows []string, anchor gruid.Point, clearance ...ClearancePoint) Template {
	t, err := Parse(name, rows, anchor, clearance...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) contains(p gruid.Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < t.W && p.Y < t.H
}

// At returns the entity at template offset p.
func (t *Template) At(p gruid.Point) entity.Type {
	if !t.contains(p) {
		return entity.Empty
	}
	return t.Cells[p.Y][p.X]
}

// Each calls fn for every non-empty cell.
func (t *Template) Each(fn func(off gruid.Point, et entity.Type)) {
	for y, row := range t.Cells {
		for x, et := range row {
			if et != entity.Empty {
				fn(gruid.Point{X: x, Y: y}, et)
			}
		}
	}
}

// Count returns how many cells of type et the template holds.
func (t *Template) Count(et entity.Type) int {
	n := 0
	t.Each(func(_ gruid.Point, c entity.Type) {
		if c == et {
			n++
		}
	})
	return n
}

// Checks returns every clearance check of the template: the explicit points
// plus a zero-radius point on every non-empty cell.
func (t *Template) Checks() []ClearancePoint {
	out := append([]ClearancePoint(nil), t.Clearance...)
	t.Each(func(off gruid.Point, _ entity.Type) {
		out = append(out, ClearancePoint{Offset: off})
	})
	return out
}

// Equal reports whether two templates describe the same layout.
func (t *Template) Equal(o *Template) bool {
	if t.W != o.W || t.H != o.H || t.Anchor != o.Anchor || len(t.Clearance) != len(o.Clearance) {
		return false
	}
	for i := range t.Clearance {
		if t.Clearance[i] != o.Clearance[i] {
			return false
		}
	}
	for y := range t.Cells {
		for x := range t.Cells[y] {
			if t.Cells[y][x] != o.Cells[y][x] {
				return false
			}
		}
	}
	return true
}

// Stamp is a template together with its eight precomputed orientations.
type Stamp struct {
	Base     Template
	Variants [OrientationCount]Template
}

// NewStamp precomputes every orientation of t.
func NewStamp(t Template) *Stamp {
	s := &Stamp{Base: t}
	for o := Orientation(0); o < OrientationCount; o++ {
		s.Variants[o] = t.Orient(o)
	}
	return s
}
