package climate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/prism-archive/internal/climate"
	"github.com/i474232898/prism-archive/internal/testutil"
)

type recordingInstaller struct {
	staged []string
	err    error
}

func (r *recordingInstaller) Install(_ context.Context, staged string, d climate.Descriptor) (climate.InstallResult, error) {
	r.staged = append(r.staged, staged)
	if r.err != nil {
		return climate.InstallResult{}, r.err
	}
	if _, err := os.Stat(staged); err != nil {
		return climate.InstallResult{}, err
	}
	return climate.InstallResult{Asset: climate.ResolvedAsset{Descriptor: d}, Installed: true}, nil
}

func selectionFor(t *testing.T, p *testutil.FakeProvider, name string) climate.Selection {
	t.Helper()
	d, err := climate.Parse(name)
	require.NoError(t, err)
	return climate.Selection{Outcome: climate.SelectionSingle, Entry: name, Descriptor: d, Considered: 1}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directories left behind in %s", dir)
}

func TestRetrieveInstallsStagedFile(t *testing.T) {
	p := testutil.NewFakeProvider()
	name := p.Add(t, climate.VariablePrecipitation, "stable", 1, testutil.Date(2014, 1, 1), 10)
	inst := &recordingInstaller{}
	stage := filepath.Join(t.TempDir(), "stage")

	res, err := climate.Retrieve(context.Background(), p, inst, stage, selectionFor(t, p, name))
	require.NoError(t, err)
	assert.True(t, res.Installed)

	require.Len(t, inst.staged, 1)
	assert.Equal(t, name, filepath.Base(inst.staged[0]))
	assert.Contains(t, filepath.Base(filepath.Dir(inst.staged[0])), "prismDownloader")
	assertEmptyDir(t, stage)
}

func TestRetrieveTransferFailureSkipsInstaller(t *testing.T) {
	p := testutil.NewFakeProvider()
	name := p.Add(t, climate.VariablePrecipitation, "stable", 1, testutil.Date(2014, 1, 1), 10)
	p.FetchErr = errors.New("connection reset")
	inst := &recordingInstaller{}
	stage := t.TempDir()

	_, err := climate.Retrieve(context.Background(), p, inst, stage, selectionFor(t, p, name))
	require.Error(t, err)
	assert.True(t, errors.Is(err, climate.ErrTransfer))
	assert.True(t, errors.Is(err, p.FetchErr))

	var te *climate.TransferError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, name, te.Entry)

	assert.Empty(t, inst.staged, "installer must not see a partial transfer")
	assertEmptyDir(t, stage)
}

func TestRetrieveInstallFailureCleansStaging(t *testing.T) {
	p := testutil.NewFakeProvider()
	name := p.Add(t, climate.VariablePrecipitation, "early", 2, testutil.Date(2014, 1, 1), 10)
	boom := errors.New("disk full")
	inst := &recordingInstaller{err: boom}
	stage := t.TempDir()

	_, err := climate.Retrieve(context.Background(), p, inst, stage, selectionFor(t, p, name))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.False(t, errors.Is(err, climate.ErrTransfer))
	assertEmptyDir(t, stage)
}

func TestRetrieveCancelledCleansStaging(t *testing.T) {
	p := testutil.NewFakeProvider()
	name := p.Add(t, climate.VariablePrecipitation, "stable", 1, testutil.Date(2014, 1, 1), 10)
	inst := &recordingInstaller{}
	stage := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := climate.Retrieve(ctx, p, inst, stage, selectionFor(t, p, name))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, climate.ErrTransfer))
	assert.Equal(t, 1, p.FetchCount())

	assert.Empty(t, inst.staged, "installer must not see a cancelled transfer")
	assertEmptyDir(t, stage)
}
