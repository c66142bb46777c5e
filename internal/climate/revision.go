package climate

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ArchiveKind is the trailing token of every raster archive filename.
const ArchiveKind = "bil.zip"

// RevisionMarker separates the scale tag from the revision number, as in 4kmD2.
const RevisionMarker = "D"

var scaleRevisionRe = regexp.MustCompile(`^(.+)` + RevisionMarker + `([0-9]+)$`)

// Parse reads a descriptor out of an archive filename such as
// PRISM_ppt_stable_4kmD2_20140101_bil.zip. Directory components are ignored.
func Parse(name string) (Descriptor, error) {
	base := filepath.Base(name)
	fail := func(reason string) (Descriptor, error) {
		return Descriptor{}, &ParseError{Name: base, Reason: reason}
	}

	tokens := strings.Split(base, "_")
	if len(tokens) != 6 {
		return fail("expected <product>_<variable>_<stability>_<scale+revision>_<date>_" + ArchiveKind)
	}
	product, variable, stability, scaleRev, date, kind := tokens[0], tokens[1], tokens[2], tokens[3], tokens[4], tokens[5]

	if kind != ArchiveKind {
		return fail("unexpected kind " + strconv.Quote(kind))
	}
	if product == "" {
		return fail("empty product")
	}

	v, err := ParseVariable(variable)
	if err != nil {
		return fail("unknown variable " + strconv.Quote(variable))
	}
	s, err := ParseStability(stability)
	if err != nil {
		return fail(err.Error())
	}

	m := scaleRevisionRe.FindStringSubmatch(scaleRev)
	if m == nil {
		return fail("no revision in " + strconv.Quote(scaleRev))
	}
	rev, err := strconv.Atoi(m[2])
	if err != nil || rev < 1 {
		return fail("invalid revision in " + strconv.Quote(scaleRev))
	}

	day, err := time.Parse(DateLayout, date)
	if err != nil {
		return fail("invalid date " + strconv.Quote(date))
	}

	return Descriptor{
		Product:   product,
		Variable:  v,
		Stability: s,
		Scale:     m[1],
		Revision:  rev,
		Date:      day,
		Tile:      TileCONUS,
		Filename:  base,
	}, nil
}

// Score orders revisions of the same key. Stability dominates, the revision
// number breaks ties within a tier.
type Score struct {
	Stability Stability `json:"stability"`
	Revision  int       `json:"revision"`
}

// ScoreOf returns the score of d.
func ScoreOf(d Descriptor) Score {
	return Score{Stability: d.Stability, Revision: d.Revision}
}

// Compare returns -1, 0 or 1 as s is lower than, equal to or higher than o.
func (s Score) Compare(o Score) int {
	switch {
	case s.Stability < o.Stability:
		return -1
	case s.Stability > o.Stability:
		return 1
	case s.Revision < o.Revision:
		return -1
	case s.Revision > o.Revision:
		return 1
	}
	return 0
}

// Less reports whether s ranks below o.
func (s Score) Less(o Score) bool { return s.Compare(o) < 0 }

func (s Score) String() string {
	return s.Stability.String() + "/" + RevisionMarker + strconv.Itoa(s.Revision)
}

// SameKey reports whether a and b describe the same (variable, date, tile).
func SameKey(a, b Descriptor) bool {
	return a.Variable == b.Variable && a.Tile == b.Tile && a.Date.Equal(b.Date)
}

// Supersedes reports whether candidate should replace incumbent. Descriptors
// for different keys never supersede each other, and equal scores never do.
func Supersedes(candidate, incumbent Descriptor) bool {
	if !SameKey(candidate, incumbent) {
		return false
	}
	return ScoreOf(incumbent).Less(ScoreOf(candidate))
}
