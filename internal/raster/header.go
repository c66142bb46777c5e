// Package raster reads and writes single-band float32 BIL grids, the format
// the PRISM archive ships inside its bil.zip files, in fixed row chunks.
package raster

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultNoData is the nodata value PRISM uses.
const DefaultNoData = -9999

// Header describes the grid of a BIL raster.
type Header struct {
	Rows      int
	Cols      int
	NoData    float64
	ULXMap    float64
	ULYMap    float64
	XDim      float64
	YDim      float64
	BigEndian bool
}

// ErrUnsupported is returned for BIL layouts other than one float32 band.
var ErrUnsupported = errors.New("unsupported raster layout")

// Pixels returns Rows*Cols.
func (h Header) Pixels() int { return h.Rows * h.Cols }

func (h Header) byteOrder() binary.ByteOrder {
	if h.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// IsNoData reports whether v is the grid's nodata value.
func (h Header) IsNoData(v float32) bool {
	return float64(v) == h.NoData
}

// SameGrid reports whether a and b cover the same cells.
func SameGrid(a, b Header) bool {
	return a.Rows == b.Rows && a.Cols == b.Cols &&
		a.ULXMap == b.ULXMap && a.ULYMap == b.ULYMap &&
		a.XDim == b.XDim && a.YDim == b.YDim
}

// HeaderPath returns the .hdr path paired with a .bil path.
func HeaderPath(bil string) string {
	return strings.TrimSuffix(bil, ".bil") + ".hdr"
}

// ReadHeader parses a BIL .hdr file.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()
	h, err := DecodeHeader(f)
	if err != nil {
		return Header{}, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// DecodeHeader parses the whitespace separated KEY VALUE lines of a .hdr.
func DecodeHeader(r io.Reader) (Header, error) {
	h := Header{NoData: DefaultNoData}
	bands, bits := 1, 32
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		key, val := strings.ToUpper(fields[0]), fields[1]
		var err error
		switch key {
		case "BYTEORDER":
			h.BigEndian = strings.EqualFold(val, "M")
		case "LAYOUT":
			if !strings.EqualFold(val, "BIL") {
				return h, fmt.Errorf("%w: layout %s", ErrUnsupported, val)
			}
		case "NROWS":
			h.Rows, err = strconv.Atoi(val)
		case "NCOLS":
			h.Cols, err = strconv.Atoi(val)
		case "NBANDS":
			bands, err = strconv.Atoi(val)
		case "NBITS":
			bits, err = strconv.Atoi(val)
		case "PIXELTYPE":
			if !strings.EqualFold(val, "FLOAT") {
				return h, fmt.Errorf("%w: pixel type %s", ErrUnsupported, val)
			}
		case "ULXMAP":
			h.ULXMap, err = strconv.ParseFloat(val, 64)
		case "ULYMAP":
			h.ULYMap, err = strconv.ParseFloat(val, 64)
		case "XDIM":
			h.XDim, err = strconv.ParseFloat(val, 64)
		case "YDIM":
			h.YDim, err = strconv.ParseFloat(val, 64)
		case "NODATA":
			h.NoData, err = strconv.ParseFloat(val, 64)
		}
		if err != nil {
			return h, fmt.Errorf("header %s: %w", key, err)
		}
	}
	if err := sc.Err(); err != nil {
		return h, err
	}
	if bands != 1 || bits != 32 {
		return h, fmt.Errorf("%w: %d bands of %d bits", ErrUnsupported, bands, bits)
	}
	if h.Rows <= 0 || h.Cols <= 0 {
		return h, fmt.Errorf("%w: %dx%d grid", ErrUnsupported, h.Rows, h.Cols)
	}
	return h, nil
}

// EncodeHeader writes h in .hdr form.
func EncodeHeader(w io.Writer, h Header) error {
	order := "I"
	if h.BigEndian {
		order = "M"
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	rowBytes := h.Cols * 4
	_, err := fmt.Fprintf(w,
		"BYTEORDER      %s\nLAYOUT         BIL\nNROWS          %d\nNCOLS          %d\nNBANDS         1\nNBITS          32\nBANDROWBYTES   %d\nTOTALROWBYTES  %d\nPIXELTYPE      FLOAT\nULXMAP         %s\nULYMAP         %s\nXDIM           %s\nYDIM           %s\nNODATA         %s\n",
		order, h.Rows, h.Cols, rowBytes, rowBytes, f(h.ULXMap), f(h.ULYMap), f(h.XDim), f(h.YDim), f(h.NoData))
	return err
}
