package persistence

import (
	"errors"
	"path/filepath"
	"testing"

	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/region"
)

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "plans.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testRegion(t *testing.T) *region.Region {
	t.Helper()
	terrain, err := grid.ParseTerrain([]string{
		"#..#",
		".~..",
		"....",
		"####",
	})
	if err != nil {
		t.Fatal(err)
	}
	r, err := region.New("W1N1", terrain, []region.POI{
		{Kind: region.KindController, At: gruid.Point{X: 1, Y: 2}},
		{Kind: region.KindSource, At: gruid.Point{X: 3, Y: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegionRoundTrip(t *testing.T) {
	db := openTemp(t)
	r := testRegion(t)
	if err := db.SaveRegion(r); err != nil {
		t.Fatalf("SaveRegion: %v", err)
	}
	got, err := db.LoadRegion("W1N1")
	if err != nil {
		t.Fatalf("LoadRegion: %v", err)
	}
	if got.Controller() != r.Controller() || len(got.Exits()) != len(r.Exits()) {
		t.Errorf("loaded region differs: %+v", got.POIs)
	}
	if got.Terrain.At(gruid.Point{X: 1, Y: 1}) != grid.TerrainRestricted {
		t.Error("terrain not preserved")
	}
	ids, err := db.RegionIDs()
	if err != nil || len(ids) != 1 || ids[0] != "W1N1" {
		t.Errorf("RegionIDs = %v, %v", ids, err)
	}
}

func TestPlanReplaceAndLoad(t *testing.T) {
	db := openTemp(t)
	r := testRegion(t)
	first := PlanRecord{RegionID: r.ID, RunID: "a", PlannedAt: 1, Levels: 2, Stream: "4x4|r|1s"}
	if err := db.SaveResult(r, first); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	second := first
	second.RunID, second.Stream = "b", "4x4|2r|e"
	if err := db.SavePlan(second); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}

	rec, err := db.PlanRecord(r.ID)
	if err != nil {
		t.Fatalf("PlanRecord: %v", err)
	}
	if rec.RunID != "b" {
		t.Errorf("run = %q, want the replacement", rec.RunID)
	}
	l, err := db.LoadPlan(r.ID, 0)
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if et, ok := l.EntityAt(0, 2, 0); !ok || et != entity.Road {
		t.Errorf("level 0 at (2,0) = %s, want road", et)
	}
	if l.Levels() != 1 {
		t.Errorf("LoadPlan(0) decoded %d levels", l.Levels())
	}
	plans, err := db.Plans()
	if err != nil || len(plans) != 1 || plans[0].Stream != "" {
		t.Errorf("Plans = %+v, %v", plans, err)
	}
}

func TestNotFound(t *testing.T) {
	db := openTemp(t)
	if _, err := db.LoadRegion("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadRegion err = %v", err)
	}
	if _, err := db.LoadPlan("nope", -1); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadPlan err = %v", err)
	}
	if _, err := db.GetMeta("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMeta err = %v", err)
	}
}

func TestRunsAndMeta(t *testing.T) {
	db := openTemp(t)
	for i, outcome := range []string{"ok", "failed"} {
		if err := db.RecordRun(RunRecord{RunID: outcome, RegionID: "W1N1", At: int64(i), Outcome: outcome}); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}
	runs, err := db.RecentRuns(1)
	if err != nil || len(runs) != 1 || runs[0].Outcome != "failed" {
		t.Errorf("RecentRuns = %+v, %v", runs, err)
	}
	if err := db.SaveMeta("version", "1"); err != nil {
		t.Fatal(err)
	}
	if v, err := db.GetMeta("version"); err != nil || v != "1" {
		t.Errorf("GetMeta = %q, %v", v, err)
	}
}
