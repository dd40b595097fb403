package layout

import (
	"sort"

	"codeberg.org/anaseto/gruid"
	"codeberg.org/anaseto/gruid/paths"
	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/region"
	"github.com/talgya/outpost/internal/road"
)

// roadCosts is the cost grid for service roads: existing roads are cheapest,
// empty and reserved ground falls back to terrain cost, structures block.
func (c *Context) roadCosts() *grid.Grid[uint8] {
	costs := road.NewCosts(c.Terrain.W, c.Terrain.H)
	c.Plan.Each(func(p gruid.Point, t entity.Type) {
		switch t {
		case entity.Road:
			costs.Set(p, 1)
		case entity.Empty, entity.Reserved:
			costs.Set(p, 0)
		default:
			costs.Set(p, road.Impassable)
		}
	})
	return costs
}

// exitCosts discourages fresh ground without forbidding it.
func (c *Context) exitCosts() *grid.Grid[uint8] {
	costs := road.NewCosts(c.Terrain.W, c.Terrain.H)
	rc := c.Config.Road
	c.Plan.Each(func(p gruid.Point, t entity.Type) {
		switch {
		case t == entity.Road:
			costs.Set(p, 1)
		case t == entity.Empty || t == entity.Reserved:
			if c.Terrain.At(p) == grid.TerrainRestricted {
				costs.Set(p, uint8(rc.ExitRestrictedCost))
			} else {
				costs.Set(p, uint8(rc.ExitPlainCost))
			}
		default:
			costs.Set(p, road.Impassable)
		}
	})
	return costs
}

// placeUpgrader puts the controller container on the most open cell within
// upgrade range and keeps its neighbourhood clear for workers.
func (c *Context) placeUpgrader() error {
	ctrl := c.Region.Controller()
	best, bestOpen, bestDist, found := gruid.Point{}, -1, 0, false
	for _, p := range grid.Square(ctrl, c.Config.UpgradeRadius) {
		if p == ctrl || !grid.InRect(c.Bounds, p) || !c.free(p) {
			continue
		}
		n := 0
		for _, q := range grid.Adjacent(p) {
			if c.open(q) && !c.Plan.At(q).Hard() && c.Plan.At(q) != entity.Feature {
				n++
			}
		}
		d := c.distOrMax(p)
		if !found || n > bestOpen || (n == bestOpen && d < bestDist) {
			best, bestOpen, bestDist, found = p, n, d, true
		}
	}
	if !found {
		c.Log.Warn("no cell for controller container", "controller", ctrl)
		return nil
	}
	c.Plan.Set(best, entity.Container)
	for _, q := range grid.Adjacent(best) {
		if c.free(q) {
			c.Plan.Set(q, entity.Reserved)
		}
	}
	c.Upgrader, c.HasUpgrader = best, true
	return nil
}

type connectPoint struct {
	at   gruid.Point
	kind region.Kind
}

// connectPoints routes a road from every point of interest to the anchor,
// farthest first, and sets a container and link at the near end.
func (c *Context) connectPoints() error {
	var pts []connectPoint
	for _, s := range c.Region.Sources() {
		pts = append(pts, connectPoint{s, region.KindSource})
	}
	if m, ok := c.Region.Mineral(); ok {
		pts = append(pts, connectPoint{m, region.KindMineral})
	}
	if c.HasUpgrader {
		pts = append(pts, connectPoint{c.Upgrader, region.KindController})
	}
	sort.SliceStable(pts, func(i, j int) bool {
		return c.distOrMax(pts[i].at) > c.distOrMax(pts[j].at)
	})
	for _, pt := range pts {
		path := c.routeToAnchor(pt.at)
		if pt.kind == region.KindController || len(path) == 0 || path[0] == c.Anchor {
			continue
		}
		box := path[0]
		c.Plan.Set(box, entity.Container)
		if pt.kind == region.KindSource {
			c.placeLink(box, path[1:])
		}
	}
	return nil
}

// routeToAnchor lays road from p to the anchor and returns the path.
func (c *Context) routeToAnchor(p gruid.Point) []gruid.Point {
	res := road.ShortestPath(c.Terrain, p, []gruid.Point{c.Anchor}, c.roadCosts(), c.roadOptions())
	if res.Incomplete {
		c.Log.Warn("road to anchor incomplete", "from", p, "reached", len(res.Path))
	}
	for _, q := range res.Path {
		if t := c.Plan.At(q); t == entity.Empty || t == entity.Reserved {
			c.Plan.Set(q, entity.Road)
		}
	}
	return res.Path
}

// placeLink puts a link on the free neighbour of box closest to the anchor.
// Ties go to a cell touching route, the road serving box, and then to the
// cell nearest the anchor by Manhattan distance.
func (c *Context) placeLink(box gruid.Point, route []gruid.Point) {
	onRoute := mapset.New[gruid.Point]()
	for _, q := range route {
		onRoute.Put(q)
	}
	touches := func(p gruid.Point) bool {
		for _, q := range grid.Adjacent(p) {
			if onRoute.Has(q) && c.Plan.At(q) == entity.Road {
				return true
			}
		}
		return false
	}

	best, bestDist, bestTouch, bestMan, found := gruid.Point{}, 0, false, 0, false
	for _, q := range grid.Adjacent(box) {
		if !grid.InRect(c.Bounds, q) || !c.free(q) {
			continue
		}
		d, touch, man := c.distOrMax(q), touches(q), paths.DistanceManhattan(q, c.Anchor)
		better := !found || d < bestDist ||
			(d == bestDist && touch && !bestTouch) ||
			(d == bestDist && touch == bestTouch && man < bestMan)
		if better {
			best, bestDist, bestTouch, bestMan, found = q, d, touch, man, true
		}
	}
	if !found {
		c.Log.Warn("no free cell for source link", "container", box)
		return
	}
	if !bestTouch {
		c.Log.Debug("source link off its road", "link", best, "container", box)
	}
	c.Plan.Set(best, entity.Link)
}

// reserveExits checks that every side with exits is reachable from the
// anchor, keeps the lane clear, and stores each side's distance field for
// tower placement.
func (c *Context) reserveExits() error {
	for side, exits := range c.Region.ExitSides() {
		if len(exits) == 0 {
			continue
		}
		c.ExitFields[side] = grid.DistanceField(c.Terrain, exits, 0)
		opt := c.roadOptions()
		opt.PlainCost = c.Config.Road.ExitPlainCost
		opt.RestrictedCost = c.Config.Road.ExitRestrictedCost
		res := road.ShortestPath(c.Terrain, c.Anchor, exits, c.exitCosts(), opt)
		if res.Incomplete {
			c.Log.Warn("exit unreachable from anchor", "side", side, "reached", len(res.Path))
		}
		for _, q := range res.Path {
			if c.Plan.At(q) == entity.Empty {
				c.Plan.Set(q, entity.Reserved)
			}
		}
	}
	return nil
}

// roadReach returns the roads connected to the anchor through roads.
func (c *Context) roadReach() (reached mapset.Set[gruid.Point], roads []gruid.Point) {
	roads = c.Plan.Points(func(_ gruid.Point, t entity.Type) bool { return t == entity.Road })
	dist := grid.New(c.Terrain.W, c.Terrain.H, grid.Unreached)
	dist.Fill(grid.Unreached)
	grid.FloodFill(dist, []gruid.Point{c.Anchor}, func(p gruid.Point) bool {
		return c.Plan.At(p) == entity.Road
	}, len(roads))
	reached = mapset.New[gruid.Point]()
	for _, r := range roads {
		if dist.At(r) != grid.Unreached {
			reached.Put(r)
		}
	}
	return reached, roads
}

// repairRoads reconnects road fragments cut off from the anchor.
func (c *Context) repairRoads() error {
	reached, roads := c.roadReach()
	pending := mapset.New[gruid.Point]()
	for _, r := range roads {
		if !reached.Has(r) {
			pending.Put(r)
		}
	}
	if pending.Size() == 0 {
		return nil
	}
	c.Log.Info("repairing disconnected roads", "count", pending.Size())
	for _, r := range roads {
		if !pending.Has(r) {
			continue
		}
		c.routeToAnchor(r)
		reached, _ = c.roadReach()
		pending.Each(func(p gruid.Point) {
			if reached.Has(p) {
				pending.Remove(p)
			}
		})
	}
	if pending.Size() > 0 {
		c.Log.Warn("roads left disconnected", "count", pending.Size())
	}
	return nil
}
