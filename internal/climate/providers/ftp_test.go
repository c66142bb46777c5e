package providers

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/prism-archive/internal/climate"
)

var jan1 = time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeConn struct {
	listed  []string
	files   map[string][]string
	listErr error
	quit    int
}

func (c *fakeConn) NameList(path string) ([]string, error) {
	c.listed = append(c.listed, path)
	if c.listErr != nil {
		return nil, c.listErr
	}
	names, ok := c.files[path]
	if !ok {
		return nil, errors.New("550 no such directory")
	}
	return names, nil
}

func (c *fakeConn) Retr(path string) (*ftp.Response, error) {
	return nil, errors.New("550 not available")
}

func (c *fakeConn) Quit() error {
	c.quit++
	return nil
}

func newFTP(t *testing.T, raw string, conn *fakeConn, dialErr error) *FTPProvider {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	p := NewFTPProvider(u, "me@example.com", time.Second)
	p.dial = func(context.Context) (ftpConn, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return conn, nil
	}
	return p
}

func TestNewFTPProvider(t *testing.T) {
	u, err := url.Parse("ftp://prism.nacse.org/daily/")
	require.NoError(t, err)
	p := NewFTPProvider(u, "", 0)
	assert.Equal(t, "prism.nacse.org:21", p.addr)
	assert.Equal(t, "/daily", p.root)
	assert.Equal(t, "ftp:prism.nacse.org", p.Name())
}

func TestFTPListRemoteCandidates(t *testing.T) {
	conn := &fakeConn{files: map[string][]string{
		"/daily/tmax/2014": {"PRISM_tmax_stable_4kmD1_20140101_bil.zip"},
		"/daily/tmin/2014": {"PRISM_tmin_stable_4kmD1_20140101_bil.zip"},
	}}
	p := newFTP(t, "ftp://prism.nacse.org/daily", conn, nil)

	names, err := p.ListRemoteCandidates(context.Background(), climate.VariableMaxTemperature, jan1)
	require.NoError(t, err)
	assert.Equal(t, []string{"PRISM_tmax_stable_4kmD1_20140101_bil.zip"}, names)
	assert.Equal(t, []string{"/daily/tmax/2014"}, conn.listed, "tmax lists its own directory")
	assert.Equal(t, 1, conn.quit)
}

func TestFTPListMissingDirectory(t *testing.T) {
	conn := &fakeConn{files: map[string][]string{}}
	p := newFTP(t, "ftp://prism.nacse.org/daily", conn, nil)

	names, err := p.ListRemoteCandidates(context.Background(), climate.VariablePrecipitation, jan1)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, 1, conn.quit)
}

func TestFTPListFailure(t *testing.T) {
	conn := &fakeConn{listErr: errors.New("421 too many users")}
	p := newFTP(t, "ftp://prism.nacse.org/daily", conn, nil)

	_, err := p.ListRemoteCandidates(context.Background(), climate.VariablePrecipitation, jan1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/daily/ppt/2014")
}

func TestFTPDialFailure(t *testing.T) {
	boom := errors.New("connection refused")
	p := newFTP(t, "ftp://prism.nacse.org/daily", nil, boom)

	_, err := p.ListRemoteCandidates(context.Background(), climate.VariablePrecipitation, jan1)
	assert.ErrorIs(t, err, boom)

	err = p.FetchCandidate(context.Background(), climate.VariablePrecipitation, jan1, "PRISM_ppt_stable_4kmD1_20140101_bil.zip", nil)
	assert.ErrorIs(t, err, boom)
}

func TestFTPRetrFailure(t *testing.T) {
	conn := &fakeConn{}
	p := newFTP(t, "ftp://prism.nacse.org/daily", conn, nil)
	err := p.FetchCandidate(context.Background(), climate.VariablePrecipitation, jan1, "PRISM_ppt_stable_4kmD1_20140101_bil.zip", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errNotFound))
	assert.Contains(t, err.Error(), "/daily/ppt/2014/PRISM_ppt_stable_4kmD1_20140101_bil.zip")
	assert.Equal(t, 1, conn.quit)
}

func TestNewDispatchesOnScheme(t *testing.T) {
	p, err := New(Settings{BaseURL: "ftp://prism.nacse.org/daily"})
	require.NoError(t, err)
	assert.IsType(t, &FTPProvider{}, p)

	p, err = New(Settings{BaseURL: "https://data.prism.oregonstate.edu/daily", Timeout: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &HTTPProvider{}, p)

	_, err = New(Settings{BaseURL: "s3://bucket/daily"})
	assert.Error(t, err)
}

func TestParseLocalDescriptor(t *testing.T) {
	p, err := New(Settings{BaseURL: "ftp://prism.nacse.org/daily"})
	require.NoError(t, err)
	d, err := p.ParseLocalDescriptor("/archive/assets/ppt/CONUS/2014/PRISM_ppt_stable_4kmD2_20140101_bil")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Revision)
	assert.Equal(t, "PRISM_ppt_stable_4kmD2_20140101_bil.zip", d.Filename)
}
