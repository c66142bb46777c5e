package climate

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/i474232898/prism-archive/internal/raster"
)

// Reduction combines the values of one pixel across all inputs. Values are
// handed over sorted ascending, so every reduction is order-independent.
type Reduction interface {
	Name() string
	Reduce(sorted []float64) float64
}

type reduction struct {
	name string
	fn   func([]float64) float64
}

func (r reduction) Name() string                    { return r.name }
func (r reduction) Reduce(sorted []float64) float64 { return r.fn(sorted) }

var (
	// Sum adds all values; cumulative precipitation uses it.
	Sum Reduction = reduction{"sum", func(v []float64) float64 {
		var s float64
		for _, x := range v {
			s += x
		}
		return s
	}}
	// Mean averages all values.
	Mean Reduction = reduction{"mean", func(v []float64) float64 {
		return Sum.Reduce(v) / float64(len(v))
	}}
	// Min keeps the lowest value.
	Min Reduction = reduction{"min", func(v []float64) float64 { return v[0] }}
	// Max keeps the highest value.
	Max Reduction = reduction{"max", func(v []float64) float64 { return v[len(v)-1] }}
)

// ParseReduction maps a reduction name to a Reduction.
func ParseReduction(name string) (Reduction, error) {
	switch strings.ToLower(name) {
	case "", "sum":
		return Sum, nil
	case "mean":
		return Mean, nil
	case "min":
		return Min, nil
	case "max":
		return Max, nil
	}
	return nil, fmt.Errorf("%w: unknown reduction %q", ErrInvalidArgument, name)
}

// Aggregate streams inputs chunk by chunk and writes red of every pixel to
// out. A pixel that is nodata in any input is nodata in the output. All
// inputs and out must share one grid. out is neither closed nor aborted.
func Aggregate(ctx context.Context, inputs []raster.Reader, out raster.Writer, red Reduction, chunkRows int) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: no inputs to aggregate", ErrInvalidArgument)
	}
	h := out.Header()
	hdrs := make([]raster.Header, len(inputs))
	for i, in := range inputs {
		hdrs[i] = in.Header()
		if !raster.SameGrid(h, hdrs[i]) {
			return fmt.Errorf("%w: input %d", ErrGridMismatch, i)
		}
	}

	bufs := make([][]float32, len(inputs))
	values := make([]float64, len(inputs))
	var acc []float32

	for _, c := range raster.Chunks(h, chunkRows) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := c.Len(h)
		for i, in := range inputs {
			if cap(bufs[i]) < n {
				bufs[i] = make([]float32, n)
			}
			bufs[i] = bufs[i][:n]
			if err := in.ReadChunk(c, bufs[i]); err != nil {
				return fmt.Errorf("read input %d: %w", i, err)
			}
		}
		if cap(acc) < n {
			acc = make([]float32, n)
		}
		acc = acc[:n]

		for p := 0; p < n; p++ {
			nodata := false
			for i := range inputs {
				v := bufs[i][p]
				if hdrs[i].IsNoData(v) || math.IsNaN(float64(v)) {
					nodata = true
					break
				}
				values[i] = float64(v)
			}
			if nodata {
				acc[p] = float32(h.NoData)
				continue
			}
			slices.Sort(values)
			acc[p] = float32(red.Reduce(values))
		}

		if err := out.WriteChunk(c, acc); err != nil {
			return fmt.Errorf("write rows %d+%d: %w", c.Row, c.Rows, err)
		}
	}
	return nil
}
