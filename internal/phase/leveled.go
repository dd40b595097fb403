package phase

import (
	"fmt"

	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
)

// Leveled is a phased plan: one cumulative grid per level plus the perimeter
// cells active at that level. Level i+1 holds everything level i holds.
// A Leveled is immutable once built and safe for concurrent reads.
type Leveled struct {
	levels    []*grid.Grid[entity.Type]
	perimeter []*grid.Grid[bool]
}

// NewLeveled wraps cumulative level grids. It checks the sizes agree and that
// every level contains the one before it.
func NewLeveled(levels []*grid.Grid[entity.Type], perimeter []*grid.Grid[bool]) (*Leveled, error) {
	if len(levels) == 0 || len(levels) != len(perimeter) {
		return nil, fmt.Errorf("leveled: %d levels, %d perimeter layers: %w", len(levels), len(perimeter), grid.ErrInvariant)
	}
	size := levels[0].Size()
	for i := range levels {
		if levels[i].Size() != size || perimeter[i].Size() != size {
			return nil, fmt.Errorf("leveled: level %d size mismatch: %w", i, grid.ErrInvariant)
		}
		if i == 0 {
			continue
		}
		var bad error
		levels[i-1].Each(func(p gruid.Point, t entity.Type) {
			if bad == nil && t != entity.Empty && levels[i].At(p) != t {
				bad = fmt.Errorf("leveled: level %d drops %s at %v: %w", i, t, p, grid.ErrInvariant)
			}
		})
		perimeter[i-1].Each(func(p gruid.Point, on bool) {
			if bad == nil && on && !perimeter[i].At(p) {
				bad = fmt.Errorf("leveled: level %d drops perimeter at %v: %w", i, p, grid.ErrInvariant)
			}
		})
		if bad != nil {
			return nil, bad
		}
	}
	return &Leveled{levels: levels, perimeter: perimeter}, nil
}

// Levels returns the number of levels.
func (l *Leveled) Levels() int { return len(l.levels) }

// Size returns the grid width and height.
func (l *Leveled) Size() (w, h int) {
	return l.levels[0].W, l.levels[0].H
}

func (l *Leveled) clamp(level int) int {
	if level >= len(l.levels) {
		return len(l.levels) - 1
	}
	return level
}

// Level returns the cumulative grid of a level. Levels past the last clamp to
// it. The grid must not be modified.
func (l *Leveled) Level(level int) *grid.Grid[entity.Type] {
	if level < 0 {
		return nil
	}
	return l.levels[l.clamp(level)]
}

// Perimeter returns the perimeter layer active at a level.
func (l *Leveled) Perimeter(level int) *grid.Grid[bool] {
	if level < 0 {
		return nil
	}
	return l.perimeter[l.clamp(level)]
}

// EntityAt reports what should stand at (x, y) once level is reached.
func (l *Leveled) EntityAt(level, x, y int) (entity.Type, bool) {
	g := l.Level(level)
	p := gruid.Point{X: x, Y: y}
	if g == nil || !g.InBounds(p) {
		return entity.Empty, false
	}
	t := g.At(p)
	return t, t != entity.Empty
}

// PerimeterAt reports whether (x, y) belongs to the finished perimeter.
func (l *Leveled) PerimeterAt(x, y int) bool {
	return l.PerimeterAtLevel(len(l.levels)-1, x, y)
}

// PerimeterAtLevel reports whether (x, y) is on the perimeter by level.
func (l *Leveled) PerimeterAtLevel(level, x, y int) bool {
	g := l.Perimeter(level)
	p := gruid.Point{X: x, Y: y}
	return g != nil && g.InBounds(p) && g.At(p)
}

// Counts returns how many cells of each type stand at a level.
func (l *Leveled) Counts(level int) [entity.Count]int {
	var out [entity.Count]int
	if g := l.Level(level); g != nil {
		g.Each(func(_ gruid.Point, t entity.Type) { out[t]++ })
	}
	return out
}

// UnlockLevel returns the first level at which (x, y) holds a structure.
func (l *Leveled) UnlockLevel(x, y int) (int, bool) {
	for i := range l.levels {
		if _, ok := l.EntityAt(i, x, y); ok {
			return i, true
		}
	}
	return 0, false
}
