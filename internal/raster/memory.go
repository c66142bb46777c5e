package raster

// Memory is an in-memory raster, handy for tests and small grids.
type Memory struct {
	H    Header
	Data []float32
}

// NewMemory allocates a grid filled with v.
func NewMemory(h Header, v float32) *Memory {
	data := make([]float32, h.Pixels())
	for i := range data {
		data[i] = v
	}
	return &Memory{H: h, Data: data}
}

// Header returns the grid description.
func (m *Memory) Header() Header { return m.H }

// ReadChunk copies chunk c into dst.
func (m *Memory) ReadChunk(c Chunk, dst []float32) error {
	if err := c.check(m.H, len(dst)); err != nil {
		return err
	}
	copy(dst, m.Data[c.Row*m.H.Cols:])
	return nil
}

// WriteChunk copies src into chunk c.
func (m *Memory) WriteChunk(c Chunk, src []float32) error {
	if err := c.check(m.H, len(src)); err != nil {
		return err
	}
	if len(m.Data) != m.H.Pixels() {
		m.Data = make([]float32, m.H.Pixels())
	}
	copy(m.Data[c.Row*m.H.Cols:], src)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Abort is a no-op.
func (m *Memory) Abort() error { return nil }
