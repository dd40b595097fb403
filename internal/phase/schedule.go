package phase

import (
	"fmt"
	"log/slog"
	"sort"

	"codeberg.org/anaseto/gruid"
	"codeberg.org/anaseto/gruid/paths"

	"github.com/talgya/outpost/internal/config"
	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/road"
)

// Layout is a finished plan with the landmarks the scheduler needs.
type Layout struct {
	Terrain   *grid.Grid[grid.Terrain]
	Plan      *grid.Grid[entity.Type]
	Perimeter *grid.Grid[bool] // nil for no perimeter
	Anchor    gruid.Point

	Sources     []gruid.Point
	Mineral     gruid.Point
	HasMineral  bool
	Upgrader    gruid.Point
	HasUpgrader bool

	// Keep lists cells new roads must not cover, such as the controller.
	Keep []gruid.Point
}

// Options tune the scheduler.
type Options struct {
	Quotas          *QuotaTable
	ContainerLevels config.ContainerLevels
	PerimeterLevel  int
	Diagonal        bool

	// Ground costs for roads laid to reach structures the plan roads miss.
	PlainCost      int
	RestrictedCost int

	Log *slog.Logger
}

type item struct {
	at  gruid.Point
	min int
}

type scheduler struct {
	in     Layout
	opt    Options
	levels int
	unlock *grid.Grid[int] // level each plan cell unlocks at, -1 for none
	log    *slog.Logger
}

// Schedule splits in.Plan into cumulative levels. Structures are unlocked in
// nearest-neighbour chain order from the anchor, as early as the quota table
// allows. Containers unlock by what they serve and towers in spread-out
// order. Roads unlock with the first level whose structures need them; a
// structure no plan road reaches gets a fresh road, written into in.Plan.
// Structures beyond the last level's quota are dropped and logged.
func Schedule(in Layout, opt Options) (*Leveled, error) {
	if opt.Quotas == nil {
		return nil, fmt.Errorf("schedule: no quota table: %w", grid.ErrInvariant)
	}
	n := opt.Quotas.Levels()
	if opt.PerimeterLevel < 0 || opt.PerimeterLevel >= n {
		return nil, fmt.Errorf("schedule: perimeter level %d outside 0..%d: %w", opt.PerimeterLevel, n-1, grid.ErrInvariant)
	}
	if in.Terrain.Size() != in.Plan.Size() {
		panic("schedule: terrain and plan sizes differ")
	}
	log := opt.Log
	if log == nil {
		log = slog.Default()
	}
	s := &scheduler{
		in:     in,
		opt:    opt,
		levels: n,
		unlock: grid.New(in.Plan.W, in.Plan.H, -1),
		log:    log,
	}
	s.unlock.Fill(-1)

	for t := entity.Type(0); t < entity.Count; t++ {
		if !t.Planned() || t == entity.Road {
			continue
		}
		cells := in.Plan.Points(func(_ gruid.Point, v entity.Type) bool { return v == t })
		if len(cells) == 0 {
			continue
		}
		switch t {
		case entity.Container:
			s.assign(t, s.containerItems(cells))
		case entity.Tower:
			s.assign(t, items(spreadOrder(in.Anchor, cells)))
		default:
			s.assign(t, items(nearestChain(in.Anchor, cells)))
		}
	}
	s.connect()
	return s.merge()
}

func items(order []gruid.Point) []item {
	out := make([]item, len(order))
	for i, p := range order {
		out[i] = item{at: p}
	}
	return out
}

// assign gives each item the lowest level at or above its minimum that keeps
// every cumulative count of t within quota.
func (s *scheduler) assign(t entity.Type, list []item) {
	per := make([]int, s.levels)
	dropped := 0
	for _, it := range list {
		lvl := -1
		for l := it.min; l < s.levels; l++ {
			if s.fits(t, per, l) {
				lvl = l
				break
			}
		}
		if lvl < 0 {
			dropped++
			continue
		}
		per[lvl]++
		s.unlock.Set(it.at, lvl)
	}
	if dropped > 0 {
		s.log.Warn("structures over quota dropped", "type", t, "dropped", dropped, "quota", s.opt.Quotas.Max(t))
	}
}

func (s *scheduler) fits(t entity.Type, per []int, level int) bool {
	cum := 0
	for j := 0; j < s.levels; j++ {
		cum += per[j]
		if j >= level && cum+1 > s.opt.Quotas.At(t, j) {
			return false
		}
	}
	return true
}

// containerItems orders containers by the level their neighbour unlocks them
// at, keeping row-major order within a level.
func (s *scheduler) containerItems(cells []gruid.Point) []item {
	out := make([]item, len(cells))
	for i, p := range cells {
		out[i] = item{at: p, min: s.containerLevel(p)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].min < out[j].min })
	return out
}

func (s *scheduler) containerLevel(p gruid.Point) int {
	cl := s.opt.ContainerLevels
	if s.in.HasUpgrader && p == s.in.Upgrader {
		return cl.Controller
	}
	for _, src := range s.in.Sources {
		if paths.DistanceChebyshev(p, src) == 1 {
			return cl.Source
		}
	}
	if s.in.HasMineral && paths.DistanceChebyshev(p, s.in.Mineral) == 1 {
		return cl.Mineral
	}
	return cl.Other
}

// nearestChain orders cells greedily: each step takes the unvisited cell
// nearest (Manhattan) to the previous one, starting from start. Ties keep
// the input order.
func nearestChain(start gruid.Point, cells []gruid.Point) []gruid.Point {
	rest := append([]gruid.Point(nil), cells...)
	out := make([]gruid.Point, 0, len(cells))
	cur := start
	for len(rest) > 0 {
		bi := 0
		for i := 1; i < len(rest); i++ {
			if paths.DistanceManhattan(cur, rest[i]) < paths.DistanceManhattan(cur, rest[bi]) {
				bi = i
			}
		}
		cur = rest[bi]
		out = append(out, cur)
		rest = append(rest[:bi], rest[bi+1:]...)
	}
	return out
}

// spreadOrder repeatedly takes the cell farthest from everything already
// taken, the start included.
func spreadOrder(start gruid.Point, cells []gruid.Point) []gruid.Point {
	rest := append([]gruid.Point(nil), cells...)
	out := make([]gruid.Point, 0, len(cells))
	near := make([]int, len(rest))
	for i, p := range rest {
		near[i] = paths.DistanceManhattan(start, p)
	}
	for len(rest) > 0 {
		bi := 0
		for i := 1; i < len(rest); i++ {
			if near[i] > near[bi] {
				bi = i
			}
		}
		picked := rest[bi]
		out = append(out, picked)
		rest = append(rest[:bi], rest[bi+1:]...)
		near = append(near[:bi], near[bi+1:]...)
		for i, p := range rest {
			near[i] = min(near[i], paths.DistanceManhattan(picked, p))
		}
	}
	return out
}

// connect unlocks plan roads level by level: each structure new at a level
// is routed over plan roads to the anchor or any road already unlocked, and
// the roads on that route join the level. A structure the plan roads cannot
// serve is routed again over open ground and the new road joins the level.
// Roads nothing needed unlock last.
func (s *scheduler) connect() {
	plan := s.in.Plan
	roads := road.NewCosts(plan.W, plan.H)
	ground := road.NewCosts(plan.W, plan.H)
	plan.Each(func(p gruid.Point, t entity.Type) {
		switch t {
		case entity.Road:
			roads.Set(p, 1)
			ground.Set(p, 1)
		case entity.Empty:
			roads.Set(p, road.Impassable)
			ground.Set(p, 0)
		default:
			roads.Set(p, road.Impassable)
			ground.Set(p, road.Impassable)
		}
	})
	for _, p := range append(append([]gruid.Point(nil), s.in.Keep...), s.in.Sources...) {
		if ground.InBounds(p) && plan.At(p) == entity.Empty {
			ground.Set(p, road.Impassable)
		}
	}
	overRoads := road.Options{PlainCost: 1, RestrictedCost: 1, Diagonal: s.opt.Diagonal}
	overGround := road.Options{PlainCost: s.opt.PlainCost, RestrictedCost: s.opt.RestrictedCost, Diagonal: s.opt.Diagonal}

	goals := []gruid.Point{s.in.Anchor}
	for l := 0; l < s.levels; l++ {
		fresh := s.unlock.Points(func(p gruid.Point, u int) bool {
			return u == l && plan.At(p) != entity.Road
		})
		laid, missed := 0, 0
		for _, p := range fresh {
			res := road.ShortestPath(s.in.Terrain, p, goals, roads, overRoads)
			if res.Incomplete {
				res = road.ShortestPath(s.in.Terrain, p, goals, ground, overGround)
				if res.Incomplete {
					missed++
					continue
				}
			}
			for _, q := range res.Path {
				if plan.At(q) == entity.Empty && q != s.in.Anchor {
					plan.Set(q, entity.Road)
					roads.Set(q, 1)
					ground.Set(q, 1)
					laid++
				}
				if plan.At(q) == entity.Road && s.unlock.At(q) < 0 {
					s.unlock.Set(q, l)
					goals = append(goals, q)
				}
			}
		}
		if laid > 0 {
			s.log.Debug("roads laid for cut-off structures", "level", l, "cells", laid)
		}
		if missed > 0 {
			s.log.Warn("structures without road access", "level", l, "count", missed)
		}
	}
	last := s.levels - 1
	plan.Each(func(p gruid.Point, t entity.Type) {
		if t == entity.Road && s.unlock.At(p) < 0 {
			s.unlock.Set(p, last)
		}
	})
}

// merge folds each level's unlocks into the cumulative grid of the level
// before it.
func (s *scheduler) merge() (*Leveled, error) {
	w, h := s.in.Plan.W, s.in.Plan.H
	levels := make([]*grid.Grid[entity.Type], s.levels)
	perims := make([]*grid.Grid[bool], s.levels)
	cur := grid.New(w, h, entity.Empty)
	noWall := grid.New(w, h, false)
	for l := 0; l < s.levels; l++ {
		next := cur.Clone()
		s.unlock.Each(func(p gruid.Point, u int) {
			if u == l {
				next.Set(p, s.in.Plan.At(p))
			}
		})
		levels[l], cur = next, next
		if s.in.Perimeter != nil && l >= s.opt.PerimeterLevel {
			perims[l] = s.in.Perimeter
		} else {
			perims[l] = noWall
		}
	}
	return NewLeveled(levels, perims)
}
