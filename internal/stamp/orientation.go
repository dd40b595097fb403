package stamp

import (
	"codeberg.org/anaseto/gruid"

	"github.com/talgya/outpost/internal/entity"
)

// Orientation is a member of the dihedral group of the square: an optional
// horizontal mirror followed by 0–3 clockwise quarter turns.
type Orientation uint8

// OrientationCount is the order of the group.
const OrientationCount = 8

const mirrorBit Orientation = 4

// Mirrored reports whether the orientation mirrors before rotating.
func (o Orientation) Mirrored() bool {
	return o&mirrorBit != 0
}

// Turns returns the number of clockwise quarter turns.
func (o Orientation) Turns() int {
	return int(o & 3)
}

// Inverse returns the orientation that undoes o.
// Pure rotations invert by turning back; every mirrored element is its own
// inverse since M·R^k·M·R^k = identity.
func (o Orientation) Inverse() Orientation {
	if o.Mirrored() {
		return o
	}
	return Orientation((4 - o.Turns()) % 4)
}

// Point maps offset p of a w×h layout into the oriented layout.
func (o Orientation) Point(p gruid.Point, w, h int) gruid.Point {
	if o.Mirrored() {
		p.X = w - 1 - p.X
	}
	for i := 0; i < o.Turns(); i++ {
		p = gruid.Point{X: h - 1 - p.Y, Y: p.X}
		w, h = h, w
	}
	return p
}

// Size returns the dimensions of a w×h layout after orientation.
func (o Orientation) Size(w, h int) (int, int) {
	if o.Turns()%2 == 1 {
		return h, w
	}
	return w, h
}

// Orient returns a new template transformed by o. t is left untouched.
func (t Template) Orient(o Orientation) Template {
	w, h := o.Size(t.W, t.H)
	out := Template{
		Name:   t.Name,
		W:      w,
		H:      h,
		Anchor: o.Point(t.Anchor, t.W, t.H),
		Cells:  make([][]entity.Type, h),
	}
	for y := range out.Cells {
		out.Cells[y] = make([]entity.Type, w)
	}
	for y, row := range t.Cells {
		for x, et := range row {
			q := o.Point(gruid.Point{X: x, Y: y}, t.W, t.H)
			out.Cells[q.Y][q.X] = et
		}
	}
	if len(t.Clearance) > 0 {
		out.Clearance = make([]ClearancePoint, len(t.Clearance))
		for i, cp := range t.Clearance {
			out.Clearance[i] = ClearancePoint{Offset: o.Point(cp.Offset, t.W, t.H), Radius: cp.Radius}
		}
	}
	return out
}
