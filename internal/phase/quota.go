// Package phase splits a finished layout into progression levels: each level
// unlocks a bounded number of structures of every type, stays road-connected,
// and contains every structure of the level before it.
package phase

import (
	"fmt"
	"sort"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
)

// QuotaTable holds, per entity type, the cumulative count unlocked at each
// level. Counts never decrease from one level to the next.
type QuotaTable struct {
	levels int
	counts [entity.Count][]int
}

// NewQuotaTable resolves and validates a name-keyed quota table.
func NewQuotaTable(levels int, raw map[string][]int) (*QuotaTable, error) {
	if levels < 1 {
		return nil, fmt.Errorf("quota: %d levels: %w", levels, grid.ErrInvariant)
	}
	q := &QuotaTable{levels: levels}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		counts := raw[name]
		t, err := entity.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("quota: %v: %w", err, grid.ErrInvariant)
		}
		if !t.Planned() {
			return nil, fmt.Errorf("quota: %s cannot be planned: %w", name, grid.ErrInvariant)
		}
		if len(counts) != levels {
			return nil, fmt.Errorf("quota: %s has %d levels, want %d: %w", name, len(counts), levels, grid.ErrInvariant)
		}
		for i, c := range counts {
			if c < 0 {
				return nil, fmt.Errorf("quota: %s level %d negative: %w", name, i, grid.ErrInvariant)
			}
			if i > 0 && c < counts[i-1] {
				return nil, fmt.Errorf("quota: %s decreases at level %d (%d < %d): %w", name, i, c, counts[i-1], grid.ErrInvariant)
			}
		}
		q.counts[t] = append([]int(nil), counts...)
	}
	return q, nil
}

// Levels returns the number of progression levels.
func (q *QuotaTable) Levels() int {
	return q.levels
}

// Has reports whether the table limits t.
func (q *QuotaTable) Has(t entity.Type) bool {
	return q.counts[t] != nil
}

// At returns the cumulative allowance of t at level. Types missing from the
// table are not limited.
func (q *QuotaTable) At(t entity.Type, level int) int {
	c := q.counts[t]
	if c == nil {
		return int(^uint(0) >> 1)
	}
	if level < 0 {
		return 0
	}
	if level >= len(c) {
		level = len(c) - 1
	}
	return c[level]
}

// Max returns the allowance at the last level.
func (q *QuotaTable) Max(t entity.Type) int {
	return q.At(t, q.levels-1)
}
