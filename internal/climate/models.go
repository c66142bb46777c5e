package climate

import (
	"fmt"
	"strings"
	"time"
)

// Variable identifies the physical quantity carried by a raster.
type Variable string

const (
	VariablePrecipitation  Variable = "ppt"
	VariableMinTemperature Variable = "tmin"
	VariableMaxTemperature Variable = "tmax"
)

// Variables lists every variable the archive publishes.
var Variables = []Variable{VariablePrecipitation, VariableMinTemperature, VariableMaxTemperature}

// ParseVariable maps a short name (ppt, tmin, tmax) to a Variable.
func ParseVariable(s string) (Variable, error) {
	v := Variable(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VariablePrecipitation, VariableMinTemperature, VariableMaxTemperature:
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown variable %q", ErrInvalidArgument, s)
}

// Stability is the archive-assigned quality tier of a day's data.
// The numeric values define the order: Provisional < Early < Stable.
type Stability int

const (
	StabilityUnknown Stability = iota
	StabilityProvisional
	StabilityEarly
	StabilityStable
)

func (s Stability) String() string {
	switch s {
	case StabilityProvisional:
		return "provisional"
	case StabilityEarly:
		return "early"
	case StabilityStable:
		return "stable"
	default:
		return "unknown"
	}
}

// ParseStability maps the archive's tier name to a Stability.
func ParseStability(s string) (Stability, error) {
	switch strings.ToLower(s) {
	case "provisional":
		return StabilityProvisional, nil
	case "early":
		return StabilityEarly, nil
	case "stable":
		return StabilityStable, nil
	}
	return StabilityUnknown, fmt.Errorf("unknown stability %q", s)
}

// TileCONUS is the only tile of this archive: the whole coverage area.
const TileCONUS = "CONUS"

// ArchiveStart is the first observation date published by the archive.
var ArchiveStart = time.Date(1981, time.January, 1, 0, 0, 0, 0, time.UTC)

// DateLayout is the date token format used in filenames and paths.
const DateLayout = "20060102"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateToken formats a date the way the archive embeds it in filenames.
func DateToken(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Key is the natural key of an asset. At most one resolved asset is current per key.
type Key struct {
	Variable Variable  `json:"variable"`
	Date     time.Time `json:"date"`
	Tile     string    `json:"tile"`
}

func (k Key) String() string {
	return string(k.Variable) + ":" + k.Tile + ":" + DateToken(k.Date)
}

// Descriptor is everything the archive encodes in an asset filename.
type Descriptor struct {
	Product   string    `json:"product"`
	Variable  Variable  `json:"variable"`
	Stability Stability `json:"stability"`
	Scale     string    `json:"scale"`
	Revision  int       `json:"revision"`
	Date      time.Time `json:"date"`
	Tile      string    `json:"tile"`
	Filename  string    `json:"filename"`
}

// Key returns the descriptor's natural key.
func (d Descriptor) Key() Key {
	return Key{Variable: d.Variable, Date: d.Date, Tile: d.Tile}
}

// ResolvedAsset is a descriptor installed into the archive.
type ResolvedAsset struct {
	Descriptor  Descriptor          `json:"descriptor"`
	Location    string              `json:"location"`
	Files       map[Variable]string `json:"files"`
	InstalledAt time.Time           `json:"installedAt"`
}

// File returns the raster path for v, if the asset carries one.
func (a ResolvedAsset) File(v Variable) (string, bool) {
	p, ok := a.Files[v]
	return p, ok && p != ""
}

// DerivedProduct is an output raster plus the inputs that produced it.
type DerivedProduct struct {
	RequestID string       `json:"requestId"`
	Kind      string       `json:"kind"`
	Variable  Variable     `json:"variable"`
	Tile      string       `json:"tile"`
	Date      time.Time    `json:"date"`
	Days      int          `json:"days"`
	Reduction string       `json:"reduction"`
	Path      string       `json:"path"`
	Inputs    []Descriptor `json:"inputs"`
	CreatedAt time.Time    `json:"createdAt"`
}
