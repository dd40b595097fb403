// Point of interest placement: scores open cells and seeds the controller,
// harvestable nodes and the mineral node with minimum spacing.
package world

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"codeberg.org/anaseto/gruid"
	"codeberg.org/anaseto/gruid/paths"

	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/region"
)

// edgeKeepOut keeps points of interest away from the border.
const edgeKeepOut = 4

type scored struct {
	at    gruid.Point
	score float64
}

// PlacePOIs picks the controller, cfg.Sources harvestable nodes and, when
// asked, the mineral node. Spacing is relaxed step by step when the open
// area is too small to honour it.
func PlacePOIs(t *grid.Grid[grid.Terrain], seed int64, cfg GenConfig) ([]region.POI, error) {
	rng := rand.New(rand.NewSource(seed + 200))
	dt := grid.DistanceTransform(t)

	var open []gruid.Point
	inner := gruid.Range{
		Min: gruid.Point{X: edgeKeepOut, Y: edgeKeepOut},
		Max: gruid.Point{X: t.W - edgeKeepOut, Y: t.H - edgeKeepOut},
	}
	for _, p := range grid.OpenCells(t) {
		if grid.InRect(inner, p) {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("no open ground for points of interest: %w", grid.ErrInvariant)
	}

	var pois []region.POI
	taken := func() []gruid.Point {
		out := make([]gruid.Point, len(pois))
		for i, p := range pois {
			out[i] = p.At
		}
		return out
	}

	want := []region.Kind{region.KindController}
	for i := 0; i < max(1, cfg.Sources); i++ {
		want = append(want, region.KindSource)
	}
	if cfg.Mineral {
		want = append(want, region.KindMineral)
	}

	for _, kind := range want {
		cands := rankFor(kind, open, dt, rng)
		placed := false
		for minDist := 10; minDist >= 2 && !placed; minDist /= 2 {
			for _, c := range cands {
				if tooClose(c.at, taken(), minDist) {
					continue
				}
				pois = append(pois, region.POI{Kind: kind, At: c.at})
				placed = true
				break
			}
		}
		if !placed {
			return nil, fmt.Errorf("no room for %s: %w", kind, grid.ErrInvariant)
		}
	}
	return pois, nil
}

// rankFor orders cells by how well they suit kind, best first. A small
// random jitter varies layouts between seeds.
func rankFor(kind region.Kind, open []gruid.Point, dt *grid.Grid[int], rng *rand.Rand) []scored {
	out := make([]scored, 0, len(open))
	for _, p := range open {
		out = append(out, scored{p, poiScore(kind, dt.At(p)) + rng.Float64()*0.75})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].score > out[j].score
	})
	return out
}

// poiScore evaluates a cell for a kind of point of interest from its
// distance to the nearest wall.
// Controllers want open ground; harvestable nodes and the mineral sit
// against walls the way they do in natural terrain.
func poiScore(kind region.Kind, wallDist int) float64 {
	d := float64(wallDist)
	switch kind {
	case region.KindController:
		return math.Min(d, 6)
	case region.KindSource:
		return 3 - math.Abs(d-2)
	case region.KindMineral:
		return 2 - math.Abs(d-1)
	default:
		return 0
	}
}

func tooClose(p gruid.Point, existing []gruid.Point, minDist int) bool {
	for _, q := range existing {
		if paths.DistanceChebyshev(p, q) < minDist {
			return true
		}
	}
	return false
}

// generateNames produces procedural region names by combining syllables.
func generateNames(rng *rand.Rand, count int) []string {
	prefixes := []string{
		"Iron", "Green", "Ash", "Stone", "Mill", "Cross", "Black",
		"Silver", "Red", "White", "Dark", "Bright", "High", "Low",
		"Old", "New", "Far", "Deep", "Long", "Broad", "Gold", "Frost",
		"Storm", "Thorn", "Elm", "Oak", "Pine", "Copper", "River",
	}
	suffixes := []string{
		"haven", "ford", "hollow", "wick", "bridge", "gate", "keep",
		"stead", "wood", "field", "dale", "crest", "vale", "port",
		"town", "bury", "marsh", "well", "brook", "cliff", "moor",
		"ridge", "watch", "fall", "rest", "point", "reach", "helm",
	}

	used := make(map[string]bool)
	names := make([]string, 0, count)

	for len(names) < count {
		name := prefixes[rng.Intn(len(prefixes))] + suffixes[rng.Intn(len(suffixes))]
		if len(used) >= len(prefixes)*len(suffixes) {
			name = fmt.Sprintf("%s-%d", name, len(names))
		}
		if !used[name] {
			used[name] = true
			names = append(names, name)
		}
	}

	return names
}
