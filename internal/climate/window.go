package climate

import (
	"context"
	"fmt"
	"time"
)

// Window is a run of consecutive days ending at, and including, End.
type Window struct {
	Dates []time.Time
}

// Len returns the number of days in the window.
func (w Window) Len() int { return len(w.Dates) }

// Start returns the first day of the window.
func (w Window) Start() time.Time { return w.Dates[0] }

// End returns the target day of the window.
func (w Window) End() time.Time { return w.Dates[len(w.Dates)-1] }

// BuildWindow returns [target-(length-1) days, ..., target].
func BuildWindow(target time.Time, length int) (Window, error) {
	if length < 1 {
		return Window{}, fmt.Errorf("%w: window length must be at least 1, got %d", ErrInvalidArgument, length)
	}
	end := Day(target)
	dates := make([]time.Time, length)
	for i := range dates {
		dates[i] = end.AddDate(0, 0, i-(length-1))
	}
	return Window{Dates: dates}, nil
}

// WindowInput is the resolved raster for one day of a window.
type WindowInput struct {
	Date       time.Time
	Path       string
	Descriptor Descriptor
}

// ResolveInputs looks up the current asset of every day in w. A day without
// an asset, or whose asset carries no raster for v, counts as missing, and any
// missing day fails the whole window with an *IncompleteWindowError.
func ResolveInputs(ctx context.Context, cat Catalog, w Window, v Variable, tile string) ([]WindowInput, error) {
	if w.Len() == 0 {
		return nil, fmt.Errorf("%w: empty window", ErrInvalidArgument)
	}
	inputs := make([]WindowInput, 0, w.Len())
	var missing []time.Time
	for _, day := range w.Dates {
		asset, ok, err := cat.Lookup(ctx, v, day, tile)
		if err != nil {
			return nil, fmt.Errorf("lookup %s %s: %w", v, DateToken(day), err)
		}
		if !ok {
			missing = append(missing, day)
			continue
		}
		p, ok := asset.File(v)
		if !ok {
			missing = append(missing, day)
			continue
		}
		inputs = append(inputs, WindowInput{Date: day, Path: p, Descriptor: asset.Descriptor})
	}
	if len(missing) > 0 {
		return nil, &IncompleteWindowError{Found: len(inputs), Required: w.Len(), Missing: missing}
	}
	return inputs, nil
}
