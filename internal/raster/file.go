package raster

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// File is a BIL raster on disk opened for reading.
type File struct {
	path string
	h    Header
	f    *os.File
	buf  []byte
}

// Open opens a .bil file and its .hdr sidecar.
func Open(path string) (*File, error) {
	h, err := ReadHeader(HeaderPath(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if want := int64(h.Pixels()) * 4; st.Size() < want {
		f.Close()
		return nil, fmt.Errorf("%s: %d bytes, header needs %d", path, st.Size(), want)
	}
	return &File{path: path, h: h, f: f}, nil
}

// Path returns the .bil path.
func (r *File) Path() string { return r.path }

// Header returns the grid description.
func (r *File) Header() Header { return r.h }

// ReadChunk decodes chunk c into dst, which must hold c.Len pixels.
func (r *File) ReadChunk(c Chunk, dst []float32) error {
	if err := c.check(r.h, len(dst)); err != nil {
		return err
	}
	n := len(dst) * 4
	if cap(r.buf) < n {
		r.buf = make([]byte, n)
	}
	buf := r.buf[:n]
	off := int64(c.Row) * int64(r.h.Cols) * 4
	if _, err := r.f.ReadAt(buf, off); err != nil {
		return fmt.Errorf("read %s rows %d+%d: %w", r.path, c.Row, c.Rows, err)
	}
	order := r.h.byteOrder()
	for i := range dst {
		dst[i] = math.Float32frombits(order.Uint32(buf[i*4:]))
	}
	return nil
}

// Close releases the file.
func (r *File) Close() error { return r.f.Close() }

// FileWriter writes a BIL raster into a temp file next to its destination
// and renames it into place on Close, so readers never see a partial grid.
type FileWriter struct {
	path string
	h    Header
	tmp  *os.File
	buf  []byte
	done bool
}

// Create starts writing a raster at path (.bil) with grid h.
func Create(path string, h Header) (*FileWriter, error) {
	if h.Rows <= 0 || h.Cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d grid", ErrUnsupported, h.Rows, h.Cols)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, err
	}
	if err := tmp.Truncate(int64(h.Pixels()) * 4); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	return &FileWriter{path: path, h: h, tmp: tmp}, nil
}

// Header returns the grid description.
func (w *FileWriter) Header() Header { return w.h }

// WriteChunk encodes src at chunk c.
func (w *FileWriter) WriteChunk(c Chunk, src []float32) error {
	if w.done {
		return errors.New("raster writer closed")
	}
	if err := c.check(w.h, len(src)); err != nil {
		return err
	}
	n := len(src) * 4
	if cap(w.buf) < n {
		w.buf = make([]byte, n)
	}
	buf := w.buf[:n]
	order := w.h.byteOrder()
	for i, v := range src {
		order.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	off := int64(c.Row) * int64(w.h.Cols) * 4
	_, err := w.tmp.WriteAt(buf, off)
	return err
}

// Close flushes the raster and atomically moves the .bil and .hdr into place.
func (w *FileWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	tmpName := w.tmp.Name()
	if err := w.tmp.Sync(); err != nil {
		w.tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := writeHeaderFile(HeaderPath(w.path), w.h); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Abort discards everything written so far.
func (w *FileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tmp.Close()
	return os.Remove(w.tmp.Name())
}

func writeHeaderFile(path string, h Header) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if err := EncodeHeader(tmp, h); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
