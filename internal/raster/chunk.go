package raster

import "fmt"

// DefaultChunkRows bounds how many rows are held in memory per chunk.
const DefaultChunkRows = 128

// Chunk is a horizontal band of whole rows: [Row, Row+Rows).
type Chunk struct {
	Row  int
	Rows int
}

// Chunks splits h into bands of at most rows rows, top to bottom.
func Chunks(h Header, rows int) []Chunk {
	if rows <= 0 {
		rows = DefaultChunkRows
	}
	out := make([]Chunk, 0, (h.Rows+rows-1)/rows)
	for r := 0; r < h.Rows; r += rows {
		n := rows
		if r+n > h.Rows {
			n = h.Rows - r
		}
		out = append(out, Chunk{Row: r, Rows: n})
	}
	return out
}

// Len returns the number of pixels of c on grid h.
func (c Chunk) Len(h Header) int { return c.Rows * h.Cols }

func (c Chunk) check(h Header, n int) error {
	if c.Row < 0 || c.Rows <= 0 || c.Row+c.Rows > h.Rows {
		return fmt.Errorf("chunk rows [%d,%d) outside grid of %d rows", c.Row, c.Row+c.Rows, h.Rows)
	}
	if n != c.Len(h) {
		return fmt.Errorf("chunk buffer holds %d pixels, want %d", n, c.Len(h))
	}
	return nil
}

// Reader is a raster opened for chunked reads.
type Reader interface {
	Header() Header
	ReadChunk(c Chunk, dst []float32) error
	Close() error
}

// Writer is a raster opened for chunked writes. Close publishes the result,
// Abort discards it.
type Writer interface {
	Header() Header
	WriteChunk(c Chunk, src []float32) error
	Close() error
	Abort() error
}
