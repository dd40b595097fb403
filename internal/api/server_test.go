package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codeberg.org/anaseto/gruid"
	"github.com/gorilla/websocket"

	"github.com/talgya/outpost/internal/config"
	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/persistence"
	"github.com/talgya/outpost/internal/planner"
	"github.com/talgya/outpost/internal/region"
)

func pt(x, y int) gruid.Point { return gruid.Point{X: x, Y: y} }

type fixture struct {
	srv *Server
	h   http.Handler
	res *planner.Result
}

func setup(t *testing.T, adminKey string, limit int) *fixture {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	rows := make([]string, 40)
	for y := range rows {
		rows[y] = strings.Repeat(".", 40)
	}
	terrain, err := grid.ParseTerrain(rows)
	if err != nil {
		t.Fatalf("ParseTerrain: %v", err)
	}
	reg, err := region.New("E5S5", terrain, []region.POI{
		{Kind: region.KindController, At: pt(20, 12)},
		{Kind: region.KindSource, At: pt(10, 30)},
		{Kind: region.KindSource, At: pt(32, 28)},
	})
	if err != nil {
		t.Fatalf("region.New: %v", err)
	}

	svc := &planner.Service{
		Config: config.Default(),
		DB:     db,
		Feed:   &planner.Feed{},
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	res, err := svc.Plan(context.Background(), reg)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	srv := &Server{DB: db, Planner: svc, AdminKey: adminKey, Version: "test", PlanLimit: limit}
	h := srv.Handler()
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, h: h, res: res}
}

func (f *fixture) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestStatusAndRegions(t *testing.T) {
	f := setup(t, "", 0)

	rec := f.do(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	st := decode(t, rec)
	if st["plans"].(float64) != 1 || st["regions"].(float64) != 1 {
		t.Errorf("status = %v", st)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/regions", "")
	var list []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode regions: %v", err)
	}
	if len(list) != 1 || list[0]["id"] != "E5S5" || list[0]["run_id"] != f.res.RunID {
		t.Errorf("regions = %v", list)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/runs?limit=5", "")
	var runs []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0]["outcome"] != "ok" || runs[0]["region"] != "E5S5" {
		t.Errorf("runs = %v", runs)
	}
}

func TestEntityQuery(t *testing.T) {
	f := setup(t, "", 0)
	lv := f.res.Leveled
	last := lv.Levels() - 1

	var cell gruid.Point
	var want entity.Type
	lv.Level(last).Each(func(p gruid.Point, et entity.Type) {
		if want == entity.Empty && et != entity.Empty && et != entity.Road {
			cell, want = p, et
		}
	})
	if want == entity.Empty {
		t.Fatal("plan has no structures")
	}

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/region/E5S5/entity?x=%d&y=%d", cell.X, cell.Y), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("entity code %d: %s", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	if got["entity"] != want.String() || got["present"] != true {
		t.Errorf("entity at %v = %v, want %s", cell, got, want)
	}
	unlock, _ := lv.UnlockLevel(cell.X, cell.Y)
	if int(got["unlock_level"].(float64)) != unlock {
		t.Errorf("unlock_level = %v, want %d", got["unlock_level"], unlock)
	}

	if unlock > 0 {
		rec = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/region/E5S5/entity?level=%d&x=%d&y=%d", unlock-1, cell.X, cell.Y), "")
		if got := decode(t, rec); got["present"] != false {
			t.Errorf("entity before its unlock level: %v", got)
		}
	}
}

func TestPerimeterAndLevel(t *testing.T) {
	f := setup(t, "", 0)

	rec := f.do(t, http.MethodGet, "/api/v1/region/E5S5/perimeter?x=0&y=0", "")
	if got := decode(t, rec); got["perimeter"] != false {
		t.Errorf("corner on the perimeter: %v", got)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/region/E5S5/level/99", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("level code %d: %s", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	rows, _ := got["rows"].([]any)
	if len(rows) != 40 {
		t.Fatalf("%d rows, want 40", len(rows))
	}
	if int(got["level"].(float64)) != f.res.Leveled.Levels()-1 {
		t.Errorf("level not clamped: %v", got["level"])
	}
}

func TestBadRequests(t *testing.T) {
	f := setup(t, "", 0)
	cases := []struct {
		method, path string
		code         int
	}{
		{http.MethodGet, "/api/v1/region/NOPE/entity?x=1&y=1", http.StatusNotFound},
		{http.MethodGet, "/api/v1/region/E5S5/entity?x=1", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/region/E5S5/entity?x=99&y=1", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/region/E5S5/level/abc", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/region/E5S5/bogus", http.StatusNotFound},
		{http.MethodGet, "/api/v1/region/E5S5/plan", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/runs?limit=-1", http.StatusBadRequest},
		{http.MethodPost, "/api/v1/region/E5S5/plan", http.StatusForbidden},
	}
	for _, tc := range cases {
		if rec := f.do(t, tc.method, tc.path, ""); rec.Code != tc.code {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.code)
		}
	}
}

func TestReplanAuthAndLimit(t *testing.T) {
	f := setup(t, "secret", 1)

	if rec := f.do(t, http.MethodPost, "/api/v1/region/E5S5/plan", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: code %d", rec.Code)
	}
	// The rejected attempt used the only token in this window.
	if rec := f.do(t, http.MethodPost, "/api/v1/region/E5S5/plan", "secret"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over limit: code %d", rec.Code)
	}

	f = setup(t, "secret", 5)
	rec := f.do(t, http.MethodPost, "/api/v1/region/E5S5/plan", "secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("replan code %d: %s", rec.Code, rec.Body.String())
	}
	got := decode(t, rec)
	if got["run_id"] == f.res.RunID || got["run_id"] == "" {
		t.Errorf("replan reused run id: %v", got["run_id"])
	}
	if rec := f.do(t, http.MethodPost, "/api/v1/region/NOPE/plan", "secret"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown region: code %d", rec.Code)
	}

	st := decode(t, f.do(t, http.MethodGet, "/api/v1/status", ""))
	if st["cached_plans"].(float64) != 1 {
		t.Errorf("replanned region not cached: %v", st)
	}
}

func TestHandlersShareOneLimiter(t *testing.T) {
	f := setup(t, "secret", 1)
	limiter := f.srv.planLimiter
	second := f.srv.Handler()
	if f.srv.planLimiter != limiter {
		t.Fatal("second Handler built a new limiter")
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/region/E5S5/plan", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: code %d", rec.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/region/E5S5/plan", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	second.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second handler ignored the spent budget: code %d", rec.Code)
	}

	f.srv.Close()
	select {
	case <-limiter.done:
	default:
		t.Error("Close left the sweeper running")
	}
}

func TestStreamPushesRunEvents(t *testing.T) {
	f := setup(t, "", 0)
	ts := httptest.NewServer(f.h)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/stream", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	feed := f.srv.Planner.Feed
	deadline := time.Now().Add(2 * time.Second)
	for feed.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := decode(t, f.do(t, http.MethodGet, "/api/v1/status", "")); st["listeners"].(float64) != 1 {
		t.Errorf("status listeners = %v, want 1", st["listeners"])
	}

	terrain, err := grid.ParseTerrain([]string{"#####", "#...#", "#...#", "#...#", "#####"})
	if err != nil {
		t.Fatalf("ParseTerrain: %v", err)
	}
	pocket, err := region.New("N0", terrain, []region.POI{
		{Kind: region.KindController, At: pt(1, 1)},
		{Kind: region.KindSource, At: pt(3, 3)},
	})
	if err != nil {
		t.Fatalf("region.New: %v", err)
	}
	if _, err := f.srv.Planner.Plan(context.Background(), pocket); err == nil {
		t.Fatal("pocket region planned")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev planner.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if ev.RegionID != "N0" || ev.Outcome != "failed" {
		t.Errorf("event = %+v", ev)
	}
}
