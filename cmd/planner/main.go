// Command planner lays out outposts for regions, stores the phased plans and
// serves them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/talgya/outpost/internal/api"
	"github.com/talgya/outpost/internal/codec"
	"github.com/talgya/outpost/internal/config"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/persistence"
	"github.com/talgya/outpost/internal/planner"
	"github.com/talgya/outpost/internal/region"
	"github.com/talgya/outpost/internal/snapshot"
	"github.com/talgya/outpost/internal/stamp"
	"github.com/talgya/outpost/internal/world"
)

const version = "0.3.0"

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (defaults built in)")
		dbPath     = flag.String("db", "data/outpost.db", "SQLite database path")
		regionList = flag.String("region", "", "comma-separated region JSON files to plan")
		generate   = flag.Int("generate", 0, "generate and plan N synthetic regions")
		seed       = flag.Int64("seed", 42, "seed for -generate (0 = random)")
		exportPath = flag.String("export", "", "write every stored region and plan to a snapshot")
		importPath = flag.String("import", "", "load regions and plans from a snapshot")
		serve      = flag.Bool("serve", false, "serve the HTTP API until interrupted")
		port       = flag.Int("port", 8080, "HTTP API port")
		level      = flag.Int("level", -1, "print each planned region at this level")
		workers    = flag.Int("workers", 4, "regions planned concurrently")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Outpost layout planner", "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Configuration ────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		slog.Info("config loaded", "path", *configPath)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(*dbPath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	db, err := persistence.Open(*dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", *dbPath)

	// ── Snapshot import ──────────────────────────────────────────────
	if *importPath != "" {
		snap, err := snapshot.Read(*importPath)
		if err != nil {
			slog.Error("failed to read snapshot", "path", *importPath, "error", err)
			os.Exit(1)
		}
		n, err := snapshot.Import(db, snap)
		if err != nil {
			slog.Error("snapshot import failed", "imported", n, "error", err)
			os.Exit(1)
		}
		slog.Info("snapshot imported", "path", *importPath, "regions", n)
	}

	// ── Regions ──────────────────────────────────────────────────────
	regions, err := loadRegions(*regionList)
	if err != nil {
		slog.Error("failed to load regions", "error", err)
		os.Exit(1)
	}
	if *generate > 0 {
		gen := world.DefaultGenConfig()
		gen.Seed = *seed
		made, err := world.GenerateMany(*generate, gen)
		if err != nil {
			slog.Error("region generation failed", "error", err)
			os.Exit(1)
		}
		for _, r := range made {
			counts := world.TerrainCounts(r.Terrain)
			attrs := []any{"id", r.ID}
			for _, tt := range []grid.Terrain{grid.TerrainPlain, grid.TerrainRestricted, grid.TerrainBlocked} {
				attrs = append(attrs, strings.ToLower(grid.TerrainName(tt)), counts[tt])
			}
			slog.Info("region generated", attrs...)
		}
		regions = append(regions, made...)
	}

	// ── Planning ─────────────────────────────────────────────────────
	svc := &planner.Service{
		Config:  cfg,
		Catalog: stamp.DefaultCatalog(),
		DB:      db,
		Feed:    &planner.Feed{},
		Log:     logger,
	}
	failed := 0
	if len(regions) > 0 {
		slog.Info("planning", "regions", len(regions), "workers", *workers)
		results, errs := svc.PlanAll(ctx, regions, *workers)
		for i, err := range errs {
			if err != nil {
				failed++
				slog.Error("planning failed", "region", regions[i].ID, "error", err)
				continue
			}
			if *level >= 0 {
				printLevel(results[i], *level)
			}
		}
		slog.Info("planning done", "planned", len(regions)-failed, "failed", failed)
	} else if *level >= 0 {
		if err := printStored(db, *level); err != nil {
			slog.Error("failed to print stored plans", "error", err)
			os.Exit(1)
		}
	}

	// ── Snapshot export ──────────────────────────────────────────────
	if *exportPath != "" {
		snap, err := snapshot.Export(db, "outpost "+version)
		if err != nil {
			slog.Error("snapshot export failed", "error", err)
			os.Exit(1)
		}
		if err := snapshot.Write(*exportPath, snap); err != nil {
			slog.Error("snapshot write failed", "path", *exportPath, "error", err)
			os.Exit(1)
		}
		slog.Info("snapshot written", "path", *exportPath, "regions", snap.Header.Regions)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if *serve {
		adminKey := os.Getenv("OUTPOST_ADMIN_KEY")
		if adminKey == "" {
			slog.Warn("OUTPOST_ADMIN_KEY not set, re-plan endpoint disabled")
		}
		apiServer := &api.Server{
			DB:       db,
			Planner:  svc,
			Port:     *port,
			AdminKey: adminKey,
			Version:  version,
		}
		apiServer.Start()
		defer apiServer.Close()
		fmt.Printf("API: http://localhost:%d/api/v1/status\n", *port)
		fmt.Println("Serving plans... (Ctrl+C to stop)")
		<-ctx.Done()
		slog.Info("shutting down")
	}

	if failed > 0 {
		os.Exit(2)
	}
}

// loadRegions reads a comma-separated list of region documents.
func loadRegions(list string) ([]*region.Region, error) {
	var out []*region.Region
	for _, path := range strings.Split(list, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		r, err := region.Decode(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func printLevel(res *planner.Result, level int) {
	fmt.Printf("\n%s level %d (anchor %d,%d)\n", res.Region.ID, level, res.Anchor.X, res.Anchor.Y)
	for _, row := range codec.Render(res.Region.Terrain, res.Leveled, level) {
		fmt.Println(row)
	}
}

// printStored renders every stored plan at level.
func printStored(db *persistence.DB, level int) error {
	recs, err := db.Plans()
	if err != nil {
		return err
	}
	for _, rec := range recs {
		r, err := db.LoadRegion(rec.RegionID)
		if err != nil {
			return err
		}
		lv, err := db.LoadPlan(rec.RegionID, level)
		if errors.Is(err, persistence.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("\n%s level %d of %d\n", rec.RegionID, min(level, rec.Levels-1), rec.Levels)
		for _, row := range codec.Render(r.Terrain, lv, level) {
			fmt.Println(row)
		}
	}
	return nil
}
