// Package planner runs the full pipeline for a region: layout, perimeter,
// level scheduling and stream encoding. Runs for different regions share no
// state and may proceed concurrently.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"codeberg.org/anaseto/gruid"
	"github.com/google/uuid"

	"github.com/talgya/outpost/internal/codec"
	"github.com/talgya/outpost/internal/config"
	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/layout"
	"github.com/talgya/outpost/internal/perimeter"
	"github.com/talgya/outpost/internal/persistence"
	"github.com/talgya/outpost/internal/phase"
	"github.com/talgya/outpost/internal/region"
	"github.com/talgya/outpost/internal/stamp"
)

// Result is a finished plan for one region.
type Result struct {
	RunID     string
	Region    *region.Region
	Plan      *grid.Grid[entity.Type] // unleveled layout
	Perimeter *grid.Grid[bool]
	Leveled   *phase.Leveled
	Anchor    gruid.Point
	Stream    string
	PlannedAt time.Time
	Duration  time.Duration
}

// Record returns the persisted form of res.
func (res *Result) Record() persistence.PlanRecord {
	return persistence.PlanRecord{
		RegionID:  res.Region.ID,
		RunID:     res.RunID,
		PlannedAt: res.PlannedAt.Unix(),
		Levels:    res.Leveled.Levels(),
		AnchorX:   res.Anchor.X,
		AnchorY:   res.Anchor.Y,
		Stream:    res.Stream,
	}
}

// Run plans r from scratch. Cancellation is checked between pipeline
// stages; a cancelled or failed run returns no partial result.
func Run(ctx context.Context, r *region.Region, cfg config.Config, cat *stamp.Catalog, log *slog.Logger) (*Result, error) {
	start := time.Now()
	if log == nil {
		log = slog.Default()
	}
	runID := uuid.NewString()
	log = log.With("run", runID)

	c, err := layout.NewContext(r, cfg, cat, log)
	if err != nil {
		return nil, err
	}
	if err := c.Run(ctx); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	perim, err := perimeter.Solve(r.Terrain, c.Plan, cfg.RingDistance)
	if err != nil {
		return nil, fmt.Errorf("perimeter: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := phase.Layout{
		Terrain:     r.Terrain,
		Plan:        c.Plan,
		Perimeter:   perim,
		Anchor:      c.Anchor,
		Sources:     r.Sources(),
		Upgrader:    c.Upgrader,
		HasUpgrader: c.HasUpgrader,
		Keep:        []gruid.Point{r.Controller()},
	}
	in.Mineral, in.HasMineral = r.Mineral()
	lv, err := phase.Schedule(in, phase.Options{
		Quotas:          c.Quotas,
		ContainerLevels: cfg.ContainerLevels,
		PerimeterLevel:  cfg.PerimeterLevel,
		Diagonal:        cfg.Road.Diagonal,
		PlainCost:       cfg.Road.PlainCost,
		RestrictedCost:  cfg.Road.RestrictedCost,
		Log:             c.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: %w", err)
	}

	res := &Result{
		RunID:     runID,
		Region:    r,
		Plan:      c.Plan,
		Perimeter: perim,
		Leveled:   lv,
		Anchor:    c.Anchor,
		Stream:    codec.Encode(lv),
		PlannedAt: start,
		Duration:  time.Since(start),
	}
	c.Log.Info("plan ready", "levels", lv.Levels(), "stream_bytes", len(res.Stream), "took", res.Duration)
	return res, nil
}

// Service plans regions. When DB is set it stores every result and logs
// every run; when Feed is set it announces every run.
type Service struct {
	Config  config.Config
	Catalog *stamp.Catalog
	DB      *persistence.DB
	Feed    *Feed
	Log     *slog.Logger
}

// Plan runs one region and persists the outcome.
func (s *Service) Plan(ctx context.Context, r *region.Region) (*Result, error) {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	start := time.Now()
	res, err := Run(ctx, r, s.Config, s.Catalog, log)
	if err == nil && s.DB != nil {
		if serr := s.DB.SaveResult(r, res.Record()); serr != nil {
			err = fmt.Errorf("store plan %s: %w", r.ID, serr)
			res = nil
		}
	}
	s.announce(r.ID, res, err, start)
	if s.DB == nil {
		return res, err
	}

	rec := persistence.RunRecord{
		RegionID:   r.ID,
		At:         start.Unix(),
		DurationMS: time.Since(start).Milliseconds(),
		Outcome:    "ok",
	}
	if err != nil {
		rec.RunID, rec.Outcome, rec.Detail = "-", "failed", err.Error()
	} else {
		rec.RunID = res.RunID
	}
	if lerr := s.DB.RecordRun(rec); lerr != nil {
		log.Warn("run log write failed", "region", r.ID, "error", lerr)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) announce(regionID string, res *Result, err error, at time.Time) {
	if s.Feed == nil {
		return
	}
	e := Event{RegionID: regionID, Outcome: "ok", At: at.Unix()}
	if err != nil {
		e.Outcome, e.Detail = "failed", err.Error()
	} else {
		e.RunID, e.Levels = res.RunID, res.Leveled.Levels()
	}
	if n := s.Feed.Publish(e); n > 0 && s.Log != nil {
		s.Log.Debug("run event dropped for slow subscribers", "region", regionID, "dropped", n)
	}
}

// PlanAll plans regions on a pool of workers. Results and errors are indexed
// like regions; one region failing does not stop the others.
func (s *Service) PlanAll(ctx context.Context, regions []*region.Region, workers int) ([]*Result, []error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]*Result, len(regions))
	errs := make([]error, len(regions))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = s.Plan(ctx, regions[i])
			}
		}()
	}
	for i := range regions {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results, errs
}
