package snapshot

import (
	"errors"
	"fmt"
	"time"

	"github.com/talgya/outpost/internal/codec"
	"github.com/talgya/outpost/internal/persistence"
)

// Export collects every stored region and its plan, if any.
func Export(db *persistence.DB, note string) (Snapshot, error) {
	snap := Snapshot{Header: Header{CreatedAt: time.Now().Unix(), Note: note}}
	ids, err := db.RegionIDs()
	if err != nil {
		return snap, fmt.Errorf("list regions: %w", err)
	}
	for _, id := range ids {
		r, err := db.LoadRegion(id)
		if err != nil {
			return snap, err
		}
		e := Entry{Region: r.Document()}
		rec, err := db.PlanRecord(id)
		switch {
		case errors.Is(err, persistence.ErrNotFound):
		case err != nil:
			return snap, err
		default:
			e.RunID, e.PlannedAt, e.Stream = rec.RunID, rec.PlannedAt, rec.Stream
			e.AnchorX, e.AnchorY = rec.AnchorX, rec.AnchorY
		}
		snap.Entries = append(snap.Entries, e)
	}
	snap.Header.Regions = len(snap.Entries)
	return snap, nil
}

// Import stores every entry of snap, replacing regions and plans with the
// same ID. Streams are decoded first so a corrupt entry is never stored.
func Import(db *persistence.DB, snap Snapshot) (int, error) {
	n := 0
	for _, e := range snap.Entries {
		r, err := e.Region.Region()
		if err != nil {
			return n, err
		}
		if e.Stream == "" {
			if err := db.SaveRegion(r); err != nil {
				return n, err
			}
			n++
			continue
		}
		lv, err := codec.Decode(e.Stream, -1)
		if err != nil {
			return n, fmt.Errorf("region %s: %w", r.ID, err)
		}
		if w, h := lv.Size(); w != r.Terrain.W || h != r.Terrain.H {
			return n, fmt.Errorf("region %s: plan is %dx%d, terrain %dx%d: %w",
				r.ID, w, h, r.Terrain.W, r.Terrain.H, codec.ErrMalformed)
		}
		rec := persistence.PlanRecord{
			RegionID:  r.ID,
			RunID:     e.RunID,
			PlannedAt: e.PlannedAt,
			Levels:    lv.Levels(),
			AnchorX:   e.AnchorX,
			AnchorY:   e.AnchorY,
			Stream:    e.Stream,
		}
		if err := db.SaveResult(r, rec); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
