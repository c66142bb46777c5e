package climate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrParse is returned when an asset filename does not follow the archive convention.
	ErrParse = errors.New("malformed asset name")
	// ErrNoCandidate is returned when the requested date is not published upstream yet.
	ErrNoCandidate = errors.New("no candidate published")
	// ErrIncompleteWindow is returned when fewer than N days of a window are resolvable.
	ErrIncompleteWindow = errors.New("incomplete window")
	// ErrNotInstalled is returned when the archive holds no asset for a day.
	ErrNotInstalled = errors.New("asset not installed")
	// ErrInvalidArgument marks caller mistakes (bad window length, unknown variable).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransfer is returned when moving a remote file into staging fails.
	ErrTransfer = errors.New("transfer failed")
	// ErrGridMismatch is returned when aggregation inputs do not share one grid.
	ErrGridMismatch = errors.New("raster grids differ")
)

// ParseError describes why a filename was rejected.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrParse, e.Name, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// NoCandidateError carries the date that had nothing usable upstream.
type NoCandidateError struct {
	Variable Variable
	Date     time.Time
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("%v: %s on %s", ErrNoCandidate, e.Variable, DateToken(e.Date))
}

func (e *NoCandidateError) Unwrap() error { return ErrNoCandidate }

// IncompleteWindowError reports how many days of a window resolved.
type IncompleteWindowError struct {
	Found    int
	Required int
	Missing  []time.Time
}

func (e *IncompleteWindowError) Error() string {
	return fmt.Sprintf("%v: requires %d days, only %d found", ErrIncompleteWindow, e.Required, e.Found)
}

func (e *IncompleteWindowError) Unwrap() error { return ErrIncompleteWindow }

// TransferError wraps a transport failure for one remote entry.
type TransferError struct {
	Entry string
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrTransfer, e.Entry, e.Err)
}

func (e *TransferError) Unwrap() []error { return []error{ErrTransfer, e.Err} }
