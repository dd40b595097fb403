package layout

import (
	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/stamp"
)

// placeStamp puts s on the best candidate near the anchor. A miss is logged
// and skipped.
func (c *Context) placeStamp(s *stamp.Stamp, budget int) bool {
	c.ranked = grid.Rank(c.AnchorDist, c.Bounds, c.free)
	pl, ok := stamp.BestPlacement(c.site(), s, c.ranked, budget)
	if !ok {
		c.Log.Warn("stamp fits nowhere", "stamp", s.Base.Name, "candidates", len(c.ranked))
		return false
	}
	pl.Apply(c.site())
	c.Log.Debug("stamp placed", "stamp", s.Base.Name, "anchor", pl.Anchor, "fresh_roads", pl.FreshRoads)
	return true
}

func (c *Context) placePods() error {
	b := c.Config.Budgets.PodAttempts
	for i := 0; i < c.Config.Pods.Combined; i++ {
		c.placeStamp(c.Catalog.Combined, b)
	}
	for i := 0; i < c.Config.Pods.Plain; i++ {
		c.placeStamp(c.Catalog.Plain, b)
	}
	return nil
}

func (c *Context) placeLabs() error {
	c.placeStamp(c.Catalog.Labs, c.Config.Budgets.LabAttempts)
	return nil
}

// fillExtensions tops extensions up to the allowance plus the slots later
// converted into towers and observers. Each goes on the nearest free cell
// beside a road.
func (c *Context) fillExtensions() error {
	want := c.Quotas.Max(entity.Extension) - c.Count(entity.Extension) +
		c.Config.Special.Towers + c.Config.Special.Observers
	if want <= 0 {
		return nil
	}
	c.ranked = grid.Rank(c.AnchorDist, c.Bounds, c.free)
	placed := 0
	for _, p := range c.ranked {
		if placed == want {
			break
		}
		if !c.free(p) || !c.besideRoad(p) {
			continue
		}
		c.Plan.Set(p, entity.Extension)
		placed++
	}
	if placed < want {
		c.Log.Warn("extension fill ran out of cells", "placed", placed, "wanted", want)
	}
	return nil
}

func (c *Context) besideRoad(p gruid.Point) bool {
	for _, q := range grid.Adjacent(p) {
		if c.Plan.At(q) == entity.Road {
			return true
		}
	}
	return false
}

// specialize converts extensions into towers spread over the exit sides,
// then turns the least desirable remaining extension into the observer.
func (c *Context) specialize() error {
	var fields []*grid.Grid[int]
	for _, f := range c.ExitFields {
		if f != nil {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		fields = append(fields, c.AnchorDist)
	}
	for i := 0; i < c.Config.Special.Towers; i++ {
		f := fields[i%len(fields)]
		p, ok := c.extremeExtension(func(p gruid.Point) int { return f.At(p) }, false)
		if !ok {
			c.Log.Warn("no extension left to convert", "type", entity.Tower, "index", i)
			break
		}
		c.Plan.Set(p, entity.Tower)
	}
	for i := 0; i < c.Config.Special.Observers; i++ {
		p, ok := c.extremeExtension(c.Score.At, true)
		if !ok {
			c.Log.Warn("no extension left to convert", "type", entity.Observer)
			break
		}
		c.Plan.Set(p, entity.Observer)
	}
	return nil
}

// extremeExtension returns the extension with the lowest (or highest) value,
// ignoring unreached cells. Ties keep row-major order.
func (c *Context) extremeExtension(value func(gruid.Point) int, highest bool) (gruid.Point, bool) {
	best, bestV, found := gruid.Point{}, 0, false
	c.Plan.Each(func(p gruid.Point, t entity.Type) {
		if t != entity.Extension {
			return
		}
		v := value(p)
		if v == grid.Unreached {
			return
		}
		if !found || (highest && v > bestV) || (!highest && v < bestV) {
			best, bestV, found = p, v, true
		}
	})
	return best, found
}

// cleanup clears anything written onto walls and strips planning markers.
func (c *Context) cleanup() error {
	c.Plan.Each(func(p gruid.Point, t entity.Type) {
		if t == entity.Empty {
			return
		}
		if c.Terrain.At(p).Blocked() || !t.Planned() {
			c.Plan.Set(p, entity.Empty)
		}
	})
	return nil
}
