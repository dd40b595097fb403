package stamp

import (
	"errors"
	"testing"

	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
)

func newSite(t *testing.T, rows ...string) *Site {
	t.Helper()
	terrain, err := grid.ParseTerrain(rows)
	if err != nil {
		t.Fatalf("ParseTerrain: %v", err)
	}
	return &Site{
		Terrain: terrain,
		DT:      grid.DistanceTransform(terrain),
		Plan:    grid.New(terrain.W, terrain.H, entity.Empty),
		Bounds:  terrain.Range(),
	}
}

func openRows(w, h int) []string {
	rows := make([]string, h)
	for i := range rows {
		b := make([]byte, w)
		for j := range b {
			b[j] = '.'
		}
		rows[i] = string(b)
	}
	return rows
}

func TestOrientationClosure(t *testing.T) {
	asym := MustParse("asym", []string{
		"se.",
		"r..",
	}, gruid.Point{X: 0, Y: 1}, ClearancePoint{Offset: gruid.Point{X: 1, Y: 0}, Radius: 1})

	seen := 0
	for o := Orientation(0); o < OrientationCount; o++ {
		v := asym.Orient(o)
		back := v.Orient(o.Inverse())
		if !back.Equal(&asym) {
			t.Fatalf("orientation %d: inverse %d does not restore template", o, o.Inverse())
		}
		for p := Orientation(0); p < o; p++ {
			w := asym.Orient(p)
			if w.Equal(&v) {
				t.Fatalf("orientations %d and %d coincide on an asymmetric template", p, o)
			}
		}
		seen++
	}
	if seen != OrientationCount {
		t.Fatalf("saw %d orientations", seen)
	}
}

func TestOrientationSizes(t *testing.T) {
	tpl := MustParse("bar", []string{"rre"}, gruid.Point{})
	for o := Orientation(0); o < OrientationCount; o++ {
		v := tpl.Orient(o)
		if o.Turns()%2 == 1 && (v.W != 1 || v.H != 3) {
			t.Fatalf("orientation %d size %dx%d want 1x3", o, v.W, v.H)
		}
		if v.Count(entity.Road) != 2 || v.Count(entity.Extension) != 1 {
			t.Fatalf("orientation %d lost cells", o)
		}
	}
}

func TestParseRejectsOutOfBoundsOffsets(t *testing.T) {
	_, err := Parse("bad", []string{"rr"}, gruid.Point{X: 3, Y: 0})
	if !errors.Is(err, grid.ErrInvariant) {
		t.Fatalf("anchor: got %v", err)
	}
	_, err = Parse("bad", []string{"rr"}, gruid.Point{}, ClearancePoint{Offset: gruid.Point{X: 0, Y: 2}})
	if !errors.Is(err, grid.ErrInvariant) {
		t.Fatalf("clearance: got %v", err)
	}
}

func TestFitsClearance(t *testing.T) {
	site := newSite(t,
		"#######",
		"#.....#",
		"#.....#",
		"#.....#",
		"#.....#",
		"#.....#",
		"#######",
	)
	tpl := MustParse("blob", []string{
		"rrr",
		"rsr",
		"rrr",
	}, gruid.Point{X: 1, Y: 1}, ClearancePoint{Offset: gruid.Point{X: 1, Y: 1}, Radius: 2})
	v := &tpl

	if !Fits(site, v, gruid.Point{X: 3, Y: 3}) {
		t.Fatalf("expected fit at room center")
	}
	if Fits(site, v, gruid.Point{X: 2, Y: 3}) {
		t.Fatalf("fit accepted with clearance point too close to wall")
	}

	site.Plan.Set(gruid.Point{X: 5, Y: 5}, entity.Extension)
	if Fits(site, v, gruid.Point{X: 3, Y: 3}) {
		t.Fatalf("fit accepted with hard occupant inside clearance radius")
	}
}

func TestFitsRoadOverlap(t *testing.T) {
	site := newSite(t, openRows(6, 6)...)
	tpl := MustParse("pair", []string{"re"}, gruid.Point{})
	v := &tpl

	site.Plan.Set(gruid.Point{X: 2, Y: 2}, entity.Road)
	if !Fits(site, v, gruid.Point{X: 2, Y: 2}) {
		t.Fatalf("road should overlap road")
	}
	site.Plan.Set(gruid.Point{X: 2, Y: 2}, entity.Reserved)
	if !Fits(site, v, gruid.Point{X: 2, Y: 2}) {
		t.Fatalf("road should overlap reserved lane")
	}
	if Fits(site, v, gruid.Point{X: 1, Y: 2}) {
		t.Fatalf("extension must not land on a reserved lane")
	}
	site.Plan.Set(gruid.Point{X: 2, Y: 2}, entity.Spawn)
	if Fits(site, v, gruid.Point{X: 2, Y: 2}) {
		t.Fatalf("road must not overlap a spawn")
	}
}

func TestPlaceSkipsBlocked(t *testing.T) {
	site := newSite(t,
		"....",
		".#..",
		"....",
	)
	tpl := MustParse("sq", []string{"ee", "ee"}, gruid.Point{})
	n := Place(site, &tpl, gruid.Point{X: 0, Y: 0})
	if n != 3 {
		t.Fatalf("wrote %d cells want 3", n)
	}
	if got := site.Plan.At(gruid.Point{X: 1, Y: 1}); got != entity.Empty {
		t.Fatalf("blocked cell got %v", got)
	}
}

func TestBestPlacementPrefersRoadReuse(t *testing.T) {
	site := newSite(t, openRows(9, 9)...)
	tpl := MustParse("hook", []string{
		"rrr",
		"e..",
	}, gruid.Point{X: 1, Y: 0})
	s := NewStamp(tpl)

	// A horizontal road through row 4 makes the unrotated stamp free of
	// fresh roads when anchored on it.
	for x := 0; x < 9; x++ {
		site.Plan.Set(gruid.Point{X: x, Y: 4}, entity.Road)
	}
	cands := []gruid.Point{{X: 4, Y: 4}}
	pl, ok := BestPlacement(site, s, cands, 1)
	if !ok {
		t.Fatalf("no placement found")
	}
	if pl.FreshRoads != 0 {
		t.Fatalf("fresh roads = %d want 0 (orientation %d)", pl.FreshRoads, pl.Orientation)
	}
	for c, et := range pl.Cells() {
		if et == entity.Road && c.Y != 4 {
			t.Fatalf("road placed off the existing row at %v", c)
		}
	}
	if n := pl.Apply(site); n != len(pl.Cells()) {
		t.Fatalf("applied %d cells, want %d", n, len(pl.Cells()))
	}
	for c, et := range pl.Cells() {
		if got := site.Plan.At(c); got != et {
			t.Errorf("plan at %v = %v, want %v", c, got, et)
		}
	}
}

func TestBestPlacementNoFit(t *testing.T) {
	site := newSite(t, "###", "#.#", "###")
	s := DefaultCatalog().Core
	if _, ok := BestPlacement(site, s, []gruid.Point{{X: 1, Y: 1}}, 3); ok {
		t.Fatalf("core should not fit in a 1x1 pocket")
	}
}
