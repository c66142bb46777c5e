package climate

import (
	"path"
	"strings"
	"time"
)

// SelectionOutcome tags how a Selection was reached.
type SelectionOutcome int

const (
	// SelectionSingle means exactly one usable entry matched the date.
	SelectionSingle SelectionOutcome = iota + 1
	// SelectionBest means several entries matched and the highest score won.
	SelectionBest
)

func (o SelectionOutcome) String() string {
	switch o {
	case SelectionSingle:
		return "single"
	case SelectionBest:
		return "best"
	default:
		return "none"
	}
}

// Selection is the entry chosen among a remote listing.
type Selection struct {
	Outcome    SelectionOutcome
	Entry      string
	Descriptor Descriptor
	// Considered counts the usable entries of the variable for the date.
	Considered int
	// Skipped holds parse failures of entries that carried the date token.
	Skipped []error
}

// SelectBestCandidate keeps the listing entries of v for date and picks the
// one with the highest score. Entries that fail to parse are skipped and
// reported in Selection.Skipped; entries of other variables are ignored.
// Equal scores resolve to the lexicographically smallest filename. When
// nothing usable remains the error is a *NoCandidateError.
func SelectBestCandidate(entries []string, v Variable, date time.Time) (Selection, error) {
	token := DateToken(date)
	var (
		sel   Selection
		found bool
	)

	for _, raw := range entries {
		name := listingName(raw)
		if !hasDateToken(name, token) {
			continue
		}
		d, err := Parse(name)
		if err != nil {
			sel.Skipped = append(sel.Skipped, err)
			continue
		}
		if d.Variable != v {
			continue
		}
		sel.Considered++
		if !found || beats(d, sel.Descriptor) {
			sel.Entry = name
			sel.Descriptor = d
			found = true
		}
	}

	if !found {
		return sel, &NoCandidateError{Variable: v, Date: Day(date)}
	}
	sel.Outcome = SelectionSingle
	if sel.Considered > 1 {
		sel.Outcome = SelectionBest
	}
	return sel, nil
}

func beats(d, best Descriptor) bool {
	switch ScoreOf(d).Compare(ScoreOf(best)) {
	case 1:
		return true
	case 0:
		return d.Filename < best.Filename
	}
	return false
}

// listingName reduces a raw listing line to its filename: the last
// whitespace-separated field, without directory components.
func listingName(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return path.Base(fields[len(fields)-1])
}

func hasDateToken(name, token string) bool {
	for _, tok := range strings.Split(name, "_") {
		if tok == token {
			return true
		}
	}
	return false
}
