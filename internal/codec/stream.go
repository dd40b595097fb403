// Package codec turns a phased plan into the compact token stream stored per
// region, and back.
//
// A stream is a header "WxH" followed by one segment per level, each segment
// introduced by '|'. A segment lists only the cells that change at its level,
// in row-major order, as tokens of an optional decimal skip count and one
// type character. The skip counts cells passed over since the previous
// token. An uppercase character marks a cell that is also on the perimeter
// from that level on; 'A' is a perimeter cell with nothing built on it.
package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/phase"
)

// ErrMalformed is returned, wrapped, for streams that cannot be decoded.
var ErrMalformed = errors.New("malformed plan stream")

const sep = '|'

// Encode serializes every level of l.
func Encode(l *phase.Leveled) string {
	w, h := l.Size()
	var b strings.Builder
	fmt.Fprintf(&b, "%dx%d", w, h)
	for lvl := 0; lvl < l.Levels(); lvl++ {
		b.WriteByte(sep)
		cur, perim := l.Level(lvl), l.Perimeter(lvl)
		var prev *grid.Grid[entity.Type]
		var prevPerim *grid.Grid[bool]
		if lvl > 0 {
			prev, prevPerim = l.Level(lvl-1), l.Perimeter(lvl-1)
		}
		skip := 0
		cur.Each(func(p gruid.Point, t entity.Type) {
			on := perim.At(p)
			changed := t != entity.Empty || on
			if prev != nil {
				changed = t != prev.At(p) || on != prevPerim.At(p)
			}
			if !changed {
				skip++
				return
			}
			if skip > 0 {
				b.WriteString(strconv.Itoa(skip))
				skip = 0
			}
			c := t.Char()
			if on {
				c -= 'a' - 'A'
			}
			b.WriteByte(c)
		})
	}
	return b.String()
}

// Decode rebuilds the plan up to and including level upto by replaying the
// level segments in order. A negative upto, or one past the last level,
// decodes every level.
func Decode(s string, upto int) (*phase.Leveled, error) {
	head, body, ok := strings.Cut(s, string(sep))
	if !ok {
		return nil, fmt.Errorf("no level segments: %w", ErrMalformed)
	}
	w, h, err := parseSize(head)
	if err != nil {
		return nil, err
	}
	segments := strings.Split(body, string(sep))
	if upto < 0 || upto >= len(segments) {
		upto = len(segments) - 1
	}

	levels := make([]*grid.Grid[entity.Type], 0, upto+1)
	perims := make([]*grid.Grid[bool], 0, upto+1)
	cur := grid.New(w, h, entity.Empty)
	perim := grid.New(w, h, false)
	for lvl := 0; lvl <= upto; lvl++ {
		cur, perim = cur.Clone(), perim.Clone()
		if err := replay(segments[lvl], cur, perim); err != nil {
			return nil, fmt.Errorf("level %d: %w", lvl, err)
		}
		levels = append(levels, cur)
		perims = append(perims, perim)
	}
	l, err := phase.NewLeveled(levels, perims)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrMalformed)
	}
	return l, nil
}

func parseSize(head string) (int, int, error) {
	ws, hs, ok := strings.Cut(head, "x")
	if !ok {
		return 0, 0, fmt.Errorf("header %q: %w", head, ErrMalformed)
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil || w < 1 || h < 1 {
		return 0, 0, fmt.Errorf("header %q: %w", head, ErrMalformed)
	}
	return w, h, nil
}

// replay applies one segment's tokens on top of the previous level.
func replay(seg string, cur *grid.Grid[entity.Type], perim *grid.Grid[bool]) error {
	idx, skip, digits := 0, 0, false
	for i := 0; i < len(seg); i++ {
		c := seg[i]
		if c >= '0' && c <= '9' {
			skip = skip*10 + int(c-'0')
			digits = true
			if skip > cur.W*cur.H {
				return fmt.Errorf("skip overflows grid: %w", ErrMalformed)
			}
			continue
		}
		on := c >= 'A' && c <= 'Z'
		if on {
			c += 'a' - 'A'
		}
		t, ok := entity.FromChar(c)
		if !ok {
			return fmt.Errorf("unknown token %q: %w", seg[i], ErrMalformed)
		}
		idx += skip
		skip, digits = 0, false
		if idx >= cur.W*cur.H {
			return fmt.Errorf("token past the last cell: %w", ErrMalformed)
		}
		p := gruid.Point{X: idx % cur.W, Y: idx / cur.W}
		if t != entity.Empty {
			cur.Set(p, t)
		}
		if on {
			perim.Set(p, true)
		}
		idx++
	}
	if digits {
		return fmt.Errorf("dangling skip count: %w", ErrMalformed)
	}
	return nil
}
