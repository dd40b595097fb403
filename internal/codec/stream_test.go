package codec

import (
	"errors"
	"testing"

	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
	"github.com/talgya/outpost/internal/grid"
	"github.com/talgya/outpost/internal/phase"
)

func pt(x, y int) gruid.Point { return gruid.Point{X: x, Y: y} }

func sample(t *testing.T) *phase.Leveled {
	t.Helper()
	l0 := grid.New(3, 2, entity.Empty)
	l0.Set(pt(0, 0), entity.Road)
	l1 := l0.Clone()
	l1.Set(pt(2, 1), entity.Spawn)
	p0 := grid.New(3, 2, false)
	p1 := p0.Clone()
	p1.Set(pt(1, 0), true)
	l, err := phase.NewLeveled([]*grid.Grid[entity.Type]{l0, l1}, []*grid.Grid[bool]{p0, p1})
	if err != nil {
		t.Fatalf("NewLeveled: %v", err)
	}
	return l
}

func TestEncodeTokens(t *testing.T) {
	got := Encode(sample(t))
	if want := "3x2|r|1A3s"; got != want {
		t.Fatalf("Encode = %q, want %q", got, want)
	}
}

func TestDecodeReplaysLevels(t *testing.T) {
	l, err := Decode("3x2|r|1A3s", -1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if l.Levels() != 2 {
		t.Fatalf("levels = %d, want 2", l.Levels())
	}
	if et, ok := l.EntityAt(0, 0, 0); !ok || et != entity.Road {
		t.Error("level 0 misses the road")
	}
	if _, ok := l.EntityAt(0, 2, 1); ok {
		t.Error("spawn leaked into level 0")
	}
	if et, _ := l.EntityAt(1, 2, 1); et != entity.Spawn {
		t.Error("level 1 misses the spawn")
	}
	if !l.PerimeterAt(1, 0) || l.PerimeterAtLevel(0, 1, 0) {
		t.Error("perimeter bit decoded at the wrong level")
	}
}

func TestDecodePartial(t *testing.T) {
	l, err := Decode("3x2|r|1A3s", 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if l.Levels() != 1 {
		t.Fatalf("levels = %d, want 1", l.Levels())
	}
	if _, ok := l.EntityAt(0, 2, 1); ok {
		t.Error("partial decode replayed too far")
	}
}

func TestRoundTripUppercaseOnBuiltCell(t *testing.T) {
	g := grid.New(4, 4, entity.Empty)
	g.Set(pt(1, 1), entity.Extension)
	g.Set(pt(3, 3), entity.Tower)
	g2 := g.Clone()
	g2.Set(pt(0, 3), entity.Lab)
	p0 := grid.New(4, 4, false)
	p1 := p0.Clone()
	p1.Set(pt(1, 1), true)
	p1.Set(pt(2, 2), true)
	in, err := phase.NewLeveled([]*grid.Grid[entity.Type]{g, g2}, []*grid.Grid[bool]{p0, p1})
	if err != nil {
		t.Fatalf("NewLeveled: %v", err)
	}
	out, err := Decode(Encode(in), -1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for lvl := 0; lvl < 2; lvl++ {
		in.Level(lvl).Each(func(p gruid.Point, want entity.Type) {
			if got := out.Level(lvl).At(p); got != want {
				t.Errorf("level %d %v: %s, want %s", lvl, p, got, want)
			}
			if in.PerimeterAtLevel(lvl, p.X, p.Y) != out.PerimeterAtLevel(lvl, p.X, p.Y) {
				t.Errorf("level %d %v: perimeter mismatch", lvl, p)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"3x2",
		"3y2|r",
		"0x2|r",
		"3x2|r|9r",
		"3x2|r|2",
		"3x2|r|1?",
	} {
		if _, err := Decode(s, -1); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) err = %v, want ErrMalformed", s, err)
		}
	}
}
