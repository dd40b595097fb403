package layout

import (
	"context"
	"testing"

	"codeberg.org/anaseto/gruid"
	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/outpost/internal/config"
	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
)

// stepper runs the placement steps of one context a few at a time.
type stepper struct {
	c     *Context
	steps []step
	next  int
}

func newStepper(c *Context) *stepper {
	return &stepper{c: c, steps: c.steps()}
}

// through runs every pending step up to and including name.
func (s *stepper) through(t *testing.T, name string) {
	t.Helper()
	for s.next < len(s.steps) {
		st := s.steps[s.next]
		s.next++
		if err := st.run(); err != nil {
			t.Fatalf("%s: %v", st.name, err)
		}
		if st.name == name {
			return
		}
	}
	t.Fatalf("step %q not pending", name)
}

func cellsOf(g *grid.Grid[entity.Type], t entity.Type) mapset.Set[gruid.Point] {
	set := mapset.New[gruid.Point]()
	for _, p := range g.Points(func(_ gruid.Point, v entity.Type) bool { return v == t }) {
		set.Put(p)
	}
	return set
}

func touching(g *grid.Grid[entity.Type], p gruid.Point, t entity.Type) bool {
	for _, q := range grid.Adjacent(p) {
		if g.At(q) == t {
			return true
		}
	}
	return false
}

func TestPlaceLinkTieBreak(t *testing.T) {
	box, anchor := pt(8, 6), pt(2, 2)
	cases := []struct {
		name  string
		route []gruid.Point
		want  gruid.Point
	}{
		// W and SW tie on anchor distance; only W touches the route.
		{"road side wins a tie", []gruid.Point{pt(7, 5), pt(6, 4), pt(5, 3)}, pt(7, 6)},
		// No nearest cell touches the route, so Manhattan distance decides.
		{"manhattan breaks the rest", []gruid.Point{pt(9, 6), pt(10, 6)}, pt(7, 5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			terrain := room(t, 12, 12)
			c := &Context{
				Terrain:    terrain,
				Plan:       grid.New(12, 12, entity.Empty),
				Bounds:     terrain.Range(),
				Anchor:     anchor,
				AnchorDist: grid.DistanceField(terrain, []gruid.Point{anchor}, 0),
				Log:        quiet(),
			}
			c.Plan.Set(box, entity.Container)
			for _, q := range tc.route {
				c.Plan.Set(q, entity.Road)
			}
			c.placeLink(box, tc.route)
			if got := c.Plan.At(tc.want); got != entity.Link {
				t.Fatalf("link not at %v (holds %s)", tc.want, got)
			}
			if n := c.Count(entity.Link); n != 1 {
				t.Fatalf("%d links placed", n)
			}
		})
	}
}

func TestRunLinksBesideContainerAndRoad(t *testing.T) {
	c := openRun(t)
	links := cellsOf(c.Plan, entity.Link)
	if links.Size() != len(c.Region.Sources()) {
		t.Fatalf("%d links for %d sources", links.Size(), len(c.Region.Sources()))
	}
	reached, _ := c.roadReach()
	links.Each(func(p gruid.Point) {
		if !touching(c.Plan, p, entity.Container) {
			t.Errorf("link %v has no container beside it", p)
		}
		served := false
		for _, q := range grid.Adjacent(p) {
			if reached.Has(q) {
				served = true
			}
		}
		if !served {
			t.Errorf("link %v touches no road connected to the anchor", p)
		}
	})
}

func TestExitLanesStayClear(t *testing.T) {
	c := openContext(t)
	s := newStepper(c)
	s.through(t, "exits")

	lanes := cellsOf(c.Plan, entity.Reserved)
	for side, exits := range c.Region.ExitSides() {
		if len(exits) == 0 {
			continue
		}
		if c.ExitFields[side] == nil {
			t.Errorf("side %d has exits but no distance field", side)
		}
		reserved := false
		for _, e := range exits {
			if lanes.Has(e) {
				reserved = true
			}
		}
		if !reserved {
			t.Errorf("no lane reaches side %d", side)
		}
	}

	s.through(t, "cleanup")
	lanes.Each(func(p gruid.Point) {
		if et := c.Plan.At(p); et.Hard() {
			t.Errorf("%s built on the lane at %v", et, p)
		}
	})
}

func TestRepairReconnectsDetachedRoads(t *testing.T) {
	c := openContext(t)
	fragment := []gruid.Point{pt(35, 35), pt(36, 35), pt(36, 36)}
	for _, p := range fragment {
		c.Plan.Set(p, entity.Road)
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	reached, _ := c.roadReach()
	for _, p := range fragment {
		if c.Plan.At(p) != entity.Road {
			t.Errorf("fragment cell %v now holds %s", p, c.Plan.At(p))
		}
		if !reached.Has(p) {
			t.Errorf("fragment cell %v still cut off from the anchor", p)
		}
	}
}

func TestFillPlacesExtensionsBesideRoads(t *testing.T) {
	c := openContext(t)
	s := newStepper(c)
	s.through(t, "repair")
	before := cellsOf(c.Plan, entity.Extension)
	want := c.Quotas.Max(entity.Extension) - before.Size() +
		c.Config.Special.Towers + c.Config.Special.Observers

	s.through(t, "fill")
	placed := 0
	cellsOf(c.Plan, entity.Extension).Each(func(p gruid.Point) {
		if before.Has(p) {
			return
		}
		placed++
		if !touching(c.Plan, p, entity.Road) {
			t.Errorf("extension at %v has no road beside it", p)
		}
		if !grid.InRect(c.Bounds, p) {
			t.Errorf("extension at %v outside %v", p, c.Bounds)
		}
	})
	if placed == 0 || placed > want {
		t.Errorf("fill placed %d extensions, want 1..%d", placed, want)
	}
}

func TestSpecializeCyclesFields(t *testing.T) {
	terrain := room(t, 6, 6)
	from := func(p gruid.Point) *grid.Grid[int] {
		return grid.DistanceField(terrain, []gruid.Point{p}, 0)
	}
	score := grid.New(6, 6, 0)
	score.Set(pt(5, 0), 10)
	score.Set(pt(0, 5), 40)

	cases := []struct {
		name       string
		fields     [4]*grid.Grid[int]
		anchorDist *grid.Grid[int]
		towers     int
		wantTowers []gruid.Point
	}{
		{
			name:       "alternates exit sides",
			fields:     [4]*grid.Grid[int]{from(pt(0, 0)), nil, from(pt(5, 5)), nil},
			towers:     3,
			wantTowers: []gruid.Point{pt(0, 0), pt(5, 5), pt(2, 2)},
		},
		{
			name:       "anchor distance without exits",
			anchorDist: from(pt(5, 0)),
			towers:     2,
			wantTowers: []gruid.Point{pt(5, 0), pt(2, 2)},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Special = config.Specialized{Towers: tc.towers, Observers: 1}
			c := &Context{
				Config:     cfg,
				Log:        quiet(),
				Terrain:    terrain,
				Plan:       grid.New(6, 6, entity.Empty),
				Score:      score,
				AnchorDist: tc.anchorDist,
				ExitFields: tc.fields,
			}
			for _, p := range []gruid.Point{pt(0, 0), pt(5, 0), pt(0, 5), pt(5, 5), pt(2, 2)} {
				c.Plan.Set(p, entity.Extension)
			}
			if err := c.specialize(); err != nil {
				t.Fatalf("specialize: %v", err)
			}
			for _, p := range tc.wantTowers {
				if c.Plan.At(p) != entity.Tower {
					t.Errorf("no tower at %v (holds %s)", p, c.Plan.At(p))
				}
			}
			if c.Count(entity.Tower) != tc.towers {
				t.Errorf("%d towers, want %d", c.Count(entity.Tower), tc.towers)
			}
			// The least desirable extension left becomes the observer.
			if c.Plan.At(pt(0, 5)) != entity.Observer {
				t.Errorf("observer not on the worst-scored extension: %s", c.Plan.At(pt(0, 5)))
			}
		})
	}
}
