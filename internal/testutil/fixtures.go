// Package testutil provides shared test fixtures: PRISM-style bil.zip
// archives and an in-memory SourceProvider.
package testutil

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/i474232898/prism-archive/internal/archive"
	"github.com/i474232898/prism-archive/internal/climate"
	"github.com/i474232898/prism-archive/internal/raster"
)

// Compile-time interface satisfaction check.
var _ climate.SourceProvider = (*FakeProvider)(nil)

// Grid is a small grid shared by fixtures.
var Grid = raster.Header{
	Rows:   6,
	Cols:   4,
	NoData: raster.DefaultNoData,
	ULXMap: -125,
	ULYMap: 49.9,
	XDim:   0.04166666666667,
	YDim:   0.04166666666667,
}

// Date returns midnight UTC of the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AssetName returns a PRISM archive filename.
func AssetName(v climate.Variable, stability string, revision int, date time.Time) string {
	return fmt.Sprintf("PRISM_%s_%s_4kmD%d_%s_bil.zip", v, stability, revision, climate.DateToken(date))
}

// AssetZip builds the bytes of a bil.zip holding a uniform grid of value.
func AssetZip(t testing.TB, name string, h raster.Header, value float32) []byte {
	t.Helper()
	data := make([]float32, h.Pixels())
	for i := range data {
		data[i] = value
	}
	return AssetZipData(t, name, h, data)
}

// AssetZipData builds the bytes of a bil.zip holding data.
func AssetZipData(t testing.TB, name string, h raster.Header, data []float32) []byte {
	t.Helper()
	stem := strings.TrimSuffix(name, ".zip")

	var bil bytes.Buffer
	for _, v := range data {
		if err := binary.Write(&bil, binary.LittleEndian, math.Float32bits(v)); err != nil {
			t.Fatalf("encode bil: %v", err)
		}
	}
	var hdr bytes.Buffer
	if err := raster.EncodeHeader(&hdr, h); err != nil {
		t.Fatalf("encode hdr: %v", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	members := map[string][]byte{
		stem + ".bil": bil.Bytes(),
		stem + ".hdr": hdr.Bytes(),
		stem + ".prj": []byte(`GEOGCS["NAD83"]`),
	}
	for _, member := range []string{stem + ".bil", stem + ".hdr", stem + ".prj"} {
		w, err := zw.Create(member)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write(members[member]); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// WriteAssetZip writes a uniform bil.zip named name into dir and returns its path.
func WriteAssetZip(t testing.TB, dir, name string, value float32) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, AssetZip(t, name, Grid, value), 0o640); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// InstallUniform stages and installs a uniform asset into a.
func InstallUniform(t testing.TB, a *archive.Archive, v climate.Variable, stability string, revision int, date time.Time, value float32) climate.InstallResult {
	t.Helper()
	name := AssetName(v, stability, revision, date)
	staged := WriteAssetZip(t, t.TempDir(), name, value)
	d, err := climate.Parse(name)
	if err != nil {
		t.Fatalf("parse fixture name: %v", err)
	}
	res, err := a.Install(context.Background(), staged, d)
	if err != nil {
		t.Fatalf("install fixture: %v", err)
	}
	return res
}

// FakeProvider serves a fixed remote listing from memory.
type FakeProvider struct {
	mu sync.Mutex
	// Files maps a remote filename to its content.
	Files map[string][]byte
	// Extra listing entries without content (junk lines, other dates).
	Extra []string
	// ListErr and FetchErr, when set, are returned by the matching call.
	// FetchCandidate also fails once its context is done.
	ListErr  error
	FetchErr error
	// Fetched records the entries requested through FetchCandidate.
	Fetched []string
}

// NewFakeProvider creates an empty FakeProvider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{Files: make(map[string][]byte)}
}

// Add publishes a uniform asset and returns its filename.
func (p *FakeProvider) Add(t testing.TB, v climate.Variable, stability string, revision int, date time.Time, value float32) string {
	t.Helper()
	name := AssetName(v, stability, revision, date)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Files[name] = AssetZip(t, name, Grid, value)
	return name
}

func (p *FakeProvider) Name() string { return "fake" }

func (p *FakeProvider) ListRemoteCandidates(_ context.Context, v climate.Variable, date time.Time) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	prefix := "PRISM_" + string(v) + "_"
	year := fmt.Sprintf("_%d", date.Year())
	var out []string
	for name := range p.Files {
		if strings.HasPrefix(name, prefix) && strings.Contains(name, year) {
			out = append(out, name)
		}
	}
	return append(out, p.Extra...), nil
}

func (p *FakeProvider) FetchCandidate(ctx context.Context, _ climate.Variable, _ time.Time, entry string, w io.Writer) error {
	p.mu.Lock()
	p.Fetched = append(p.Fetched, entry)
	data, ok := p.Files[entry]
	fetchErr := p.FetchErr
	p.mu.Unlock()

	if fetchErr == nil {
		fetchErr = ctx.Err()
	}
	if fetchErr != nil {
		// write a partial body first, like a dropped connection would
		w.Write([]byte("partial"))
		return fetchErr
	}
	if !ok {
		return fmt.Errorf("550 %s: no such file", entry)
	}
	_, err := w.Write(data)
	return err
}

func (p *FakeProvider) ParseLocalDescriptor(path string) (climate.Descriptor, error) {
	return archive.ParseAssetDir(path)
}

// FetchCount returns how many transfers were requested.
func (p *FakeProvider) FetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Fetched)
}
