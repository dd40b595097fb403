// Region generation using layered simplex noise.
// Generates elevation and moisture maps, then derives walls, swamp and open
// ground, carves exits through the border and places points of interest.
package world

import (
	"fmt"
	"math"
	"math/rand"

	"codeberg.org/anaseto/gruid"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/region"
)

// GenConfig holds region generation parameters.
type GenConfig struct {
	Width, Height int
	Seed          int64   // Random seed (0 = random)
	WallLevel     float64 // Elevation threshold for walls (0.0–1.0)
	SwampLevel    float64 // Moisture threshold for restricted ground (0.0–1.0)
	ExitGaps      int     // Exit openings carved per side
	Sources       int     // Harvestable nodes (1–2)
	Mineral       bool
}

// DefaultGenConfig returns a typical 50×50 region.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:      50,
		Height:     50,
		WallLevel:  0.66,
		SwampLevel: 0.68,
		ExitGaps:   2,
		Sources:    2,
		Mineral:    true,
	}
}

// SmallTestConfig returns a tiny region for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:      30,
		Height:     30,
		Seed:       42,
		WallLevel:  0.72,
		SwampLevel: 0.70,
		ExitGaps:   1,
		Sources:    1,
		Mineral:    true,
	}
}

// Generate creates one region with terrain and points of interest.
func Generate(id string, cfg GenConfig) (*region.Region, error) {
	if cfg.Width < 12 || cfg.Height < 12 {
		return nil, fmt.Errorf("generate %s: %dx%d is too small: %w", id, cfg.Width, cfg.Height, grid.ErrInvariant)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	// Independent layers.
	elevNoise := opensimplex.NewNormalized(seed)
	wetNoise := opensimplex.NewNormalized(seed + 1)

	terrain := grid.New(cfg.Width, cfg.Height, grid.TerrainBlocked)
	cx, cy := float64(cfg.Width-1)/2, float64(cfg.Height-1)/2
	terrain.Each(func(p gruid.Point, _ grid.Terrain) {
		x, y := float64(p.X), float64(p.Y)
		elev := octaveNoise(elevNoise, x, y, 4, 0.08, 0.5)
		wet := octaveNoise(wetNoise, x, y, 3, 0.06, 0.5)

		// Walls thicken toward the edges and thin out in the middle.
		d := math.Max(math.Abs(x-cx)/cx, math.Abs(y-cy)/cy)
		elev = elev*0.85 + math.Pow(d, 4)*0.35

		terrain.Set(p, deriveTerrain(elev, wet, cfg))
	})

	rng := rand.New(rand.NewSource(seed + 100))
	carveBorder(terrain, rng, cfg.ExitGaps)
	keepLargestArea(terrain)

	pois, err := PlacePOIs(terrain, seed, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", id, err)
	}
	return region.New(id, terrain, pois)
}

// GenerateMany creates count regions with procedural names, seeded one after
// another from cfg.Seed.
func GenerateMany(count int, cfg GenConfig) ([]*region.Region, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	names := generateNames(rand.New(rand.NewSource(seed+300)), count)
	out := make([]*region.Region, 0, count)
	for i := 0; i < count; i++ {
		c := cfg
		c.Seed = seed + int64(i)*1000
		r, err := Generate(names[i], c)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// deriveTerrain determines terrain type from environmental parameters.
func deriveTerrain(elev, wet float64, cfg GenConfig) grid.Terrain {
	if elev > cfg.WallLevel {
		return grid.TerrainBlocked
	}
	if wet > cfg.SwampLevel && elev < 0.5 {
		return grid.TerrainRestricted
	}
	return grid.TerrainPlain
}

// carveBorder walls the edge, then opens gaps per side with a short
// corridor inward so each gap connects to the interior.
func carveBorder(t *grid.Grid[grid.Terrain], rng *rand.Rand, gaps int) {
	w, h := t.W, t.H
	for x := 0; x < w; x++ {
		t.Set(gruid.Point{X: x, Y: 0}, grid.TerrainBlocked)
		t.Set(gruid.Point{X: x, Y: h - 1}, grid.TerrainBlocked)
	}
	for y := 0; y < h; y++ {
		t.Set(gruid.Point{X: 0, Y: y}, grid.TerrainBlocked)
		t.Set(gruid.Point{X: w - 1, Y: y}, grid.TerrainBlocked)
	}

	// Each side: origin on the edge, direction along it, inward direction.
	sides := []struct {
		at, along, in gruid.Point
		length        int
	}{
		{gruid.Point{}, gruid.Point{X: 1}, gruid.Point{Y: 1}, w},
		{gruid.Point{X: w - 1}, gruid.Point{Y: 1}, gruid.Point{X: -1}, h},
		{gruid.Point{Y: h - 1}, gruid.Point{X: 1}, gruid.Point{Y: -1}, w},
		{gruid.Point{}, gruid.Point{Y: 1}, gruid.Point{X: 1}, h},
	}
	depth := min(w, h) / 4
	for _, s := range sides {
		for g := 0; g < gaps; g++ {
			width := 2 + rng.Intn(4)
			start := 3 + rng.Intn(max(1, s.length-width-6))
			for i := start; i < start+width && i < s.length-2; i++ {
				for d := 0; d < depth; d++ {
					t.Set(gruid.Point{
						X: s.at.X + s.along.X*i + s.in.X*d,
						Y: s.at.Y + s.along.Y*i + s.in.Y*d,
					}, grid.TerrainPlain)
				}
			}
		}
	}
}

// keepLargestArea walls off every open pocket except the largest, so all
// open ground is mutually reachable.
func keepLargestArea(t *grid.Grid[grid.Terrain]) {
	label := grid.New(t.W, t.H, grid.Unreached)
	label.Fill(grid.Unreached)
	open := func(p gruid.Point) bool { return !t.At(p).Blocked() }
	var areas [][]gruid.Point
	t.Each(func(p gruid.Point, tt grid.Terrain) {
		if tt.Blocked() || label.At(p) != grid.Unreached {
			return
		}
		field := grid.New(t.W, t.H, grid.Unreached)
		field.Fill(grid.Unreached)
		grid.FloodFill(field, []gruid.Point{p}, open, 0)
		var cells []gruid.Point
		field.Each(func(q gruid.Point, d int) {
			if d != grid.Unreached {
				label.Set(q, len(areas))
				cells = append(cells, q)
			}
		})
		areas = append(areas, cells)
	})
	best := -1
	for i, a := range areas {
		if best < 0 || len(a) > len(areas[best]) {
			best = i
		}
	}
	for i, a := range areas {
		if i == best {
			continue
		}
		for _, p := range a {
			t.Set(p, grid.TerrainBlocked)
		}
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}

// TerrainCounts returns a summary of terrain type distribution.
func TerrainCounts(t *grid.Grid[grid.Terrain]) map[grid.Terrain]int {
	counts := make(map[grid.Terrain]int)
	t.Each(func(_ gruid.Point, tt grid.Terrain) {
		counts[tt]++
	})
	return counts
}
