package stamp

import "codeberg.org/anaseto/gruid"

// Catalog is the set of stamps one planning run uses.
type Catalog struct {
	Core     *Stamp // placed first; its anchor becomes the plan anchor
	Combined *Stamp // spawn with surrounding extensions
	Plain    *Stamp // extension flower
	Labs     *Stamp
}

// Token characters: r road, s spawn, o storage, l link, m terminal,
// f factory, p power spawn, n nuker, e extension, b lab.
var (
	coreRows = []string{
		".rrr.",
		"rsolr",
		"rmrfr",
		"rprnr",
		".rrr.",
	}
	combinedRows = []string{
		".rrr.",
		"reser",
		"reeer",
		".rrr.",
	}
	plainRows = []string{
		"..r..",
		".rer.",
		"reeer",
		".rer.",
		"..r..",
	}
	labRows = []string{
		"rbb.",
		"brbb",
		"bbrb",
		".bbr",
	}
)

// DefaultCatalog returns the built-in stamps.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Core: NewStamp(MustParse("core", coreRows, gruid.Point{X: 2, Y: 2},
			ClearancePoint{Offset: gruid.Point{X: 2, Y: 2}, Radius: 2})),
		Combined: NewStamp(MustParse("spawn-pod", combinedRows, gruid.Point{X: 2, Y: 1},
			ClearancePoint{Offset: gruid.Point{X: 2, Y: 2}, Radius: 1})),
		Plain: NewStamp(MustParse("extension-pod", plainRows, gruid.Point{X: 2, Y: 2},
			ClearancePoint{Offset: gruid.Point{X: 2, Y: 2}, Radius: 1})),
		Labs: NewStamp(MustParse("labs", labRows, gruid.Point{X: 1, Y: 1},
			ClearancePoint{Offset: gruid.Point{X: 1, Y: 1}, Radius: 1})),
	}
}
