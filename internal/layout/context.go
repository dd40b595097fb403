// Package layout places every structure of an outpost: the core stamp, the
// containers, links and roads serving each point of interest, the extension
// and lab stamps, and the dynamic fill. All steps mutate one Context in a
// fixed order; a Context is used for a single run and owned by one goroutine.
package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/config"
	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/phase"
	"github.com/talgya/outpost/internal/region"
	"github.com/talgya/outpost/internal/road"
	"github.com/talgya/outpost/internal/stamp"
)

// ErrInvariant is returned, wrapped, when a run hits a broken invariant.
var ErrInvariant = grid.ErrInvariant

// ErrNoAnchor is returned when the core stamp fits nowhere; every later step
// measures from the anchor, so the run cannot continue.
var ErrNoAnchor = errors.New("core stamp fits nowhere")

// Context is the mutable state of one planning run.
type Context struct {
	Region  *region.Region
	Config  config.Config
	Quotas  *phase.QuotaTable
	Catalog *stamp.Catalog
	Log     *slog.Logger

	Terrain *grid.Grid[grid.Terrain]
	DT      *grid.Grid[int] // distance to the nearest wall
	Score   *grid.Grid[int] // desirability, lower is better
	Plan    *grid.Grid[entity.Type]
	Bounds  gruid.Range // usable sub-rectangle

	Anchor     gruid.Point
	AnchorDist *grid.Grid[int]
	ExitFields [4]*grid.Grid[int] // nil for sides without exits

	Upgrader    gruid.Point // controller container
	HasUpgrader bool

	ranked []gruid.Point
}

// NewContext prepares a run over r. The quota table and config are validated
// here so a bad table fails before any placement work.
func NewContext(r *region.Region, cfg config.Config, cat *stamp.Catalog, log *slog.Logger) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %v: %w", err, ErrInvariant)
	}
	quotas, err := phase.NewQuotaTable(cfg.Levels, cfg.Quotas)
	if err != nil {
		return nil, err
	}
	if cat == nil {
		cat = stamp.DefaultCatalog()
	}
	if log == nil {
		log = slog.Default()
	}
	t := r.Terrain
	c := &Context{
		Region:  r,
		Config:  cfg,
		Quotas:  quotas,
		Catalog: cat,
		Log:     log.With("region", r.ID),
		Terrain: t,
		Plan:    grid.New(t.W, t.H, entity.Empty),
		Bounds: gruid.Range{
			Min: gruid.Point{X: cfg.Margin, Y: cfg.Margin},
			Max: gruid.Point{X: t.W - cfg.Margin, Y: t.H - cfg.Margin},
		},
	}
	c.Plan.Set(r.Controller(), entity.Feature)
	for _, s := range r.Sources() {
		c.Plan.Set(s, entity.Feature)
	}
	if m, ok := r.Mineral(); ok {
		c.Plan.Set(m, entity.Extractor)
	}
	return c, nil
}

type step struct {
	name string
	run  func() error
}

func (c *Context) steps() []step {
	return []step{
		{"rank", c.rankDesirability},
		{"anchor", c.placeAnchor},
		{"anchor-distance", c.measureAnchor},
		{"upgrader", c.placeUpgrader},
		{"connect", c.connectPoints},
		{"exits", c.reserveExits},
		{"rerank", c.rerank},
		{"pods", c.placePods},
		{"labs", c.placeLabs},
		{"repair", c.repairRoads},
		{"fill", c.fillExtensions},
		{"specialize", c.specialize},
		{"cleanup", c.cleanup},
	}
}

// Run executes every placement step in order. Cancellation is honoured
// between steps; a cancelled run leaves the context unusable.
func (c *Context) Run(ctx context.Context) error {
	for _, s := range c.steps() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.run(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
		c.Log.Debug("layout step done", "step", s.name)
	}
	c.Log.Info("layout complete", "anchor", c.Anchor, "structures", c.countPlanned())
	return nil
}

func (c *Context) countPlanned() int {
	n := 0
	c.Plan.Each(func(_ gruid.Point, t entity.Type) {
		if t.Planned() {
			n++
		}
	})
	return n
}

// Count returns how many plan cells hold t.
func (c *Context) Count(t entity.Type) int {
	n := 0
	c.Plan.Each(func(_ gruid.Point, v entity.Type) {
		if v == t {
			n++
		}
	})
	return n
}

func (c *Context) site() *stamp.Site {
	return &stamp.Site{Terrain: c.Terrain, DT: c.DT, Plan: c.Plan, Bounds: c.Bounds}
}

func (c *Context) open(p gruid.Point) bool {
	return c.Terrain.InBounds(p) && !c.Terrain.At(p).Blocked()
}

func (c *Context) roadOptions() road.Options {
	return road.Options{
		PlainCost:      c.Config.Road.PlainCost,
		RestrictedCost: c.Config.Road.RestrictedCost,
		MaxCost:        c.Config.Budgets.PathMaxCost,
		Diagonal:       c.Config.Road.Diagonal,
	}
}
