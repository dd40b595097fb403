package codec

import (
	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/phase"
)

// Render draws one level as text rows: terrain where nothing is built, the
// entity character otherwise, uppercased on perimeter cells. An empty
// perimeter cell shows as 'A'.
func Render(terrain *grid.Grid[grid.Terrain], l *phase.Leveled, level int) []string {
	rows := grid.FormatTerrain(terrain)
	plan, perim := l.Level(level), l.Perimeter(level)
	if plan == nil {
		return rows
	}
	buf := make([][]byte, len(rows))
	for y, r := range rows {
		buf[y] = []byte(r)
	}
	plan.Each(func(p gruid.Point, t entity.Type) {
		on := perim.At(p)
		if t == entity.Empty && !on {
			return
		}
		c := t.Char()
		if on {
			c -= 'a' - 'A'
		}
		buf[p.Y][p.X] = c
	})
	for y := range buf {
		rows[y] = string(buf[y])
	}
	return rows
}
