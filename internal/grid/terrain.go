package grid

import (
	"fmt"

	"codeberg.org/anaseto/gruid"
)

// Terrain classifies a cell. It is immutable once a region is loaded.
type Terrain uint8

const (
	TerrainPlain      Terrain = iota // open ground
	TerrainRestricted                // swamp: passable at a higher cost
	TerrainBlocked                   // wall
)

// Blocked reports whether nothing may be built on or walk through the cell.
func (t Terrain) Blocked() bool {
	return t == TerrainBlocked
}

// TerrainName returns a human-readable name for a terrain type.
func TerrainName(t Terrain) string {
	switch t {
	case TerrainPlain:
		return "Plain"
	case TerrainRestricted:
		return "Restricted"
	case TerrainBlocked:
		return "Blocked"
	default:
		return "Unknown"
	}
}

// Terrain row characters.
const (
	charPlain      = '.'
	charRestricted = '~'
	charBlocked    = '#'
)

// ParseTerrain builds a terrain grid from row strings using '.', '~' and '#'.
// Out-of-bounds reads on the result report TerrainBlocked.
func ParseTerrain(rows []string) (*Grid[Terrain], error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("terrain: empty grid: %w", ErrInvariant)
	}
	w := len(rows[0])
	g := New(w, len(rows), TerrainBlocked)
	for y, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("terrain: row %d has width %d, want %d: %w", y, len(row), w, ErrInvariant)
		}
		for x, c := range []byte(row) {
			var t Terrain
			switch c {
			case charPlain:
				t = TerrainPlain
			case charRestricted:
				t = TerrainRestricted
			case charBlocked:
				t = TerrainBlocked
			default:
				return nil, fmt.Errorf("terrain: bad cell %q at (%d,%d): %w", c, x, y, ErrInvariant)
			}
			g.Set(gruid.Point{X: x, Y: y}, t)
		}
	}
	return g, nil
}

// FormatTerrain is the inverse of ParseTerrain.
func FormatTerrain(g *Grid[Terrain]) []string {
	rows := make([]string, g.H)
	buf := make([]byte, g.W)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			switch g.At(gruid.Point{X: x, Y: y}) {
			case TerrainRestricted:
				buf[x] = charRestricted
			case TerrainBlocked:
				buf[x] = charBlocked
			default:
				buf[x] = charPlain
			}
		}
		rows[y] = string(buf)
	}
	return rows
}

// OpenCells returns every non-blocked cell.
func OpenCells(t *Grid[Terrain]) []gruid.Point {
	return t.Points(func(_ gruid.Point, v Terrain) bool { return !v.Blocked() })
}
