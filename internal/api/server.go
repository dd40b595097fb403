// Package api provides the HTTP API for querying stored plans.
// GET endpoints are public and read-only.
// POST endpoints require a bearer token and start a planning run.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/outpost/internal/codec"
	"github.com/talgya/outpost/internal/layout"
	"github.com/talgya/outpost/internal/persistence"
	"github.com/talgya/outpost/internal/phase"
	"github.com/talgya/outpost/internal/planner"
)

const maxStreamConns = 4

// Server serves stored plans over HTTP.
type Server struct {
	DB       *persistence.DB
	Planner  *planner.Service // nil disables re-planning
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Version  string

	// PlanLimit caps re-plans per client per hour; zero means 10.
	PlanLimit int

	// Decoded plans by region, filled on first query.
	mu    sync.Mutex
	cache map[string]*phase.Leveled

	started time.Time

	// Open run-event streams.
	streamConns int32

	planLimiter *RateLimiter
}

// Handler builds the routed, CORS-wrapped handler. Every handler of a
// Server shares one re-plan limiter.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	if s.planLimiter == nil {
		limit := s.PlanLimit
		if limit <= 0 {
			limit = 10
		}
		s.planLimiter = NewRateLimiter(limit, time.Hour)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/regions", s.handleRegions)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/region/", s.handleRegionRoutes(s.planLimiter))
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "replan", s.Planner != nil)

	handler := s.Handler()
	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Close stops the re-plan limiter's sweeper.
func (s *Server) Close() {
	if s.planLimiter != nil {
		s.planLimiter.Stop()
	}
}

// allowedOrigins lists frontend origins allowed to call the API.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func allowedOrigins() map[string]bool {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowed[origin] = true
			}
		}
	}
	return allowed
}

// corsMiddleware adds CORS headers for allowed frontend origins.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := allowedOrigins()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no OUTPOST_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ids, err := s.DB.RegionIDs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	plans, err := s.DB.Plans()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	last, err := s.DB.GetMeta("last_plan_at")
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	cached := len(s.cache)
	s.mu.Unlock()

	listeners := 0
	if s.Planner != nil && s.Planner.Feed != nil {
		listeners = s.Planner.Feed.Subscribers()
	}

	writeJSON(w, map[string]any{
		"name":         "Outpost",
		"version":      s.Version,
		"uptime":       time.Since(s.started).Round(time.Second).String(),
		"regions":      len(ids),
		"plans":        len(plans),
		"cached_plans": cached,
		"last_plan_at": last,
		"replan":       s.Planner != nil,
		"listeners":    listeners,
	})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	type regionSummary struct {
		ID        string `json:"id"`
		RunID     string `json:"run_id"`
		PlannedAt string `json:"planned_at"`
		Levels    int    `json:"levels"`
		AnchorX   int    `json:"anchor_x"`
		AnchorY   int    `json:"anchor_y"`
	}

	recs, err := s.DB.Plans()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]regionSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, regionSummary{
			ID:        rec.RegionID,
			RunID:     rec.RunID,
			PlannedAt: time.Unix(rec.PlannedAt, 0).UTC().Format(time.RFC3339),
			Levels:    rec.Levels,
			AnchorX:   rec.AnchorX,
			AnchorY:   rec.AnchorY,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.DB.RecentRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.RunRecord{}
	}
	writeJSON(w, runs)
}

// handleRegionRoutes dispatches /api/v1/region/{id}/{entity|perimeter|level/L|plan}.
func (s *Server) handleRegionRoutes(planLimiter *RateLimiter) http.HandlerFunc {
	replan := RateLimitMiddleware(planLimiter, s.adminOnly(s.handlePlan))
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/region/")
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		if len(parts) < 2 || parts[0] == "" {
			http.Error(w, "expected /api/v1/region/{id}/{query}", http.StatusNotFound)
			return
		}
		id := parts[0]

		switch {
		case parts[1] == "plan" && len(parts) == 2:
			if r.Method != http.MethodPost {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			replan(w, r)
			return
		case r.Method != http.MethodGet:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		case parts[1] == "entity" && len(parts) == 2:
			s.handleEntity(w, r, id)
		case parts[1] == "perimeter" && len(parts) == 2:
			s.handlePerimeter(w, r, id)
		case parts[1] == "level" && len(parts) == 3:
			s.handleLevel(w, r, id, parts[2])
		default:
			http.Error(w, "unknown region query", http.StatusNotFound)
		}
	}
}

// leveled returns the decoded plan of a region, loading it on first use.
func (s *Server) leveled(id string) (*phase.Leveled, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.cache[id]; ok {
		return l, nil
	}
	l, err := s.DB.LoadPlan(id, -1)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		s.cache = make(map[string]*phase.Leveled)
	}
	s.cache[id] = l
	return l, nil
}

func (s *Server) store(id string, l *phase.Leveled) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache == nil {
		s.cache = make(map[string]*phase.Leveled)
	}
	s.cache[id] = l
}

func (s *Server) planOrError(w http.ResponseWriter, id string) (*phase.Leveled, bool) {
	l, err := s.leveled(id)
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		http.Error(w, "no plan for region "+id, http.StatusNotFound)
		return nil, false
	case err != nil:
		slog.Error("plan load failed", "region", id, "error", err)
		http.Error(w, "plan unreadable", http.StatusInternalServerError)
		return nil, false
	}
	return l, true
}

// intParams reads required integer query parameters.
func intParams(r *http.Request, names ...string) ([]int, error) {
	q := r.URL.Query()
	out := make([]int, len(names))
	for i, n := range names {
		v := q.Get(n)
		if v == "" {
			return nil, fmt.Errorf("missing %s", n)
		}
		x, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s", n)
		}
		out[i] = x
	}
	return out, nil
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request, id string) {
	xy, err := intParams(r, "x", "y")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	l, ok := s.planOrError(w, id)
	if !ok {
		return
	}
	level := l.Levels() - 1
	if r.URL.Query().Get("level") != "" {
		v, err := intParams(r, "level")
		if err != nil || v[0] < 0 {
			http.Error(w, "invalid level", http.StatusBadRequest)
			return
		}
		level = v[0]
	}
	if wd, ht := l.Size(); xy[0] < 0 || xy[1] < 0 || xy[0] >= wd || xy[1] >= ht {
		http.Error(w, "cell outside the region", http.StatusBadRequest)
		return
	}

	t, present := l.EntityAt(level, xy[0], xy[1])
	resp := map[string]any{
		"region":  id,
		"x":       xy[0],
		"y":       xy[1],
		"level":   level,
		"entity":  t.String(),
		"present": present,
	}
	if at, ok := l.UnlockLevel(xy[0], xy[1]); ok {
		resp["unlock_level"] = at
	}
	writeJSON(w, resp)
}

func (s *Server) handlePerimeter(w http.ResponseWriter, r *http.Request, id string) {
	xy, err := intParams(r, "x", "y")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	l, ok := s.planOrError(w, id)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{
		"region":    id,
		"x":         xy[0],
		"y":         xy[1],
		"perimeter": l.PerimeterAt(xy[0], xy[1]),
	})
}

func (s *Server) handleLevel(w http.ResponseWriter, r *http.Request, id, raw string) {
	level, err := strconv.Atoi(raw)
	if err != nil || level < 0 {
		http.Error(w, "invalid level", http.StatusBadRequest)
		return
	}
	l, ok := s.planOrError(w, id)
	if !ok {
		return
	}
	reg, err := s.DB.LoadRegion(id)
	if err != nil {
		slog.Error("region load failed", "region", id, "error", err)
		http.Error(w, "region unreadable", http.StatusInternalServerError)
		return
	}
	if level >= l.Levels() {
		level = l.Levels() - 1
	}
	writeJSON(w, map[string]any{
		"region": id,
		"level":  level,
		"rows":   codec.Render(reg.Terrain, l, level),
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	id := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/region/"), "/")[0]
	if s.Planner == nil {
		http.Error(w, "re-planning disabled", http.StatusServiceUnavailable)
		return
	}
	reg, err := s.DB.LoadRegion(id)
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "unknown region "+id, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	res, err := s.Planner.Plan(r.Context(), reg)
	switch {
	case errors.Is(err, layout.ErrNoAnchor), errors.Is(err, layout.ErrInvariant):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		slog.Error("re-plan failed", "region", id, "error", err)
		http.Error(w, "planning failed", http.StatusInternalServerError)
		return
	}
	s.store(id, res.Leveled)
	slog.Info("region re-planned via API", "region", id, "run", res.RunID)

	writeJSON(w, map[string]any{
		"region":      id,
		"run_id":      res.RunID,
		"levels":      res.Leveled.Levels(),
		"anchor":      map[string]int{"x": res.Anchor.X, "y": res.Anchor.Y},
		"duration_ms": res.Duration.Milliseconds(),
	})
}

// handleStream pushes run events over a websocket until the client leaves.
// Concurrent streams are capped.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.Planner == nil || s.Planner.Feed == nil {
		http.Error(w, "run events disabled", http.StatusServiceUnavailable)
		return
	}
	current := atomic.AddInt32(&s.streamConns, 1)
	defer atomic.AddInt32(&s.streamConns, -1)
	if current > maxStreamConns {
		http.Error(w, "too many stream connections", http.StatusServiceUnavailable)
		return
	}

	allowed := allowedOrigins()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subID, events := s.Planner.Feed.Subscribe(64)
	defer s.Planner.Feed.Unsubscribe(subID)
	slog.Info("stream client connected", "sub_id", subID)

	// The reader only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-gone:
			slog.Info("stream client disconnected", "sub_id", subID)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
