package layout

import (
	"fmt"

	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/stamp"
)

// rankDesirability builds the desirability score from the controller, source,
// exit and wall distance fields and ranks the usable cells by it.
func (c *Context) rankDesirability() error {
	c.DT = grid.DistanceTransform(c.Terrain)
	w := c.Config.Weights
	fields := []grid.WeightedField{
		{Field: grid.DistanceField(c.Terrain, []gruid.Point{c.Region.Controller()}, 0), Weight: w.Controller},
		{Field: grid.DistanceField(c.Terrain, c.Region.Sources(), 0), Weight: w.Sources},
		{Field: c.DT, Weight: w.Openness},
	}
	if exits := c.Region.Exits(); len(exits) > 0 {
		fields = append(fields, grid.WeightedField{Field: grid.DistanceField(c.Terrain, exits, 0), Weight: w.Exits})
	}
	score, err := grid.ComposeFields(fields, c.Config.ScoreRange[0], c.Config.ScoreRange[1])
	if err != nil {
		return err
	}
	c.Score = score
	c.ranked = grid.Rank(c.Score, c.Bounds, c.free)
	if len(c.ranked) == 0 {
		return fmt.Errorf("no usable cells in %v: %w", c.Bounds, ErrNoAnchor)
	}
	return nil
}

// free reports whether p is open ground with nothing planned on it.
func (c *Context) free(p gruid.Point) bool {
	return c.open(p) && c.Plan.At(p) == entity.Empty
}

// placeAnchor puts the core stamp on the best-ranked cell it fits and
// records where its anchor landed.
func (c *Context) placeAnchor() error {
	pl, ok := stamp.BestPlacement(c.site(), c.Catalog.Core, c.ranked, c.Config.Budgets.AnchorAttempts)
	if !ok {
		return ErrNoAnchor
	}
	pl.Apply(c.site())
	c.Anchor = pl.Anchor
	c.Log.Info("core placed", "anchor", pl.Anchor, "orientation", pl.Orientation, "score", c.Score.At(pl.Anchor))
	return nil
}

// measureAnchor floods the distance from the anchor and re-ranks by it.
func (c *Context) measureAnchor() error {
	c.AnchorDist = grid.DistanceField(c.Terrain, []gruid.Point{c.Anchor}, 0)
	c.ranked = grid.Rank(c.AnchorDist, c.Bounds, c.free)
	return nil
}

// rerank drops occupied cells and orders the rest by distance from the anchor.
func (c *Context) rerank() error {
	c.ranked = grid.Rank(c.AnchorDist, c.Bounds, c.free)
	return nil
}

// distOrMax reads the anchor distance, mapping unreachable cells past every
// reachable one.
func (c *Context) distOrMax(p gruid.Point) int {
	d := c.AnchorDist.At(p)
	if d == grid.Unreached {
		return c.Terrain.W * c.Terrain.H
	}
	return d
}
