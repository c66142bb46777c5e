package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/prism-archive/internal/climate"
)

const indexPage = `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 3.2 Final//EN">
<html><head><title>Index of /daily/ppt/2014</title></head><body>
<h1>Index of /daily/ppt/2014</h1>
<table>
<tr><th><a href="?C=N;O=D">Name</a></th></tr>
<tr><td><a href="/daily/ppt/">Parent Directory</a></td></tr>
<tr><td><a href="PRISM_ppt_stable_4kmD2_20140101_bil.zip">PRISM_ppt_stable_4kmD2_20140101_bil.zip</a></td></tr>
<tr><td><a href="PRISM_ppt_stable_4kmD2_20140102_bil.zip">PRISM_ppt_stable_4kmD2_20140102_bil.zip</a></td></tr>
<tr><td><a href="/daily/ppt/2014/PRISM_ppt_stable_4kmD2_20140102_bil.zip">dup</a></td></tr>
</table></body></html>`

func newHTTP(t *testing.T, handler http.Handler) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL + "/daily/")
	require.NoError(t, err)
	return NewHTTPProvider(u, srv.Client())
}

func TestHTTPListRemoteCandidates(t *testing.T) {
	var gotPath string
	p := newHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, indexPage)
	}))

	names, err := p.ListRemoteCandidates(context.Background(), climate.VariablePrecipitation, jan1)
	require.NoError(t, err)
	assert.Equal(t, "/daily/ppt/2014/", gotPath)
	assert.Equal(t, []string{
		"PRISM_ppt_stable_4kmD2_20140101_bil.zip",
		"PRISM_ppt_stable_4kmD2_20140102_bil.zip",
	}, names)

	sel, err := climate.SelectBestCandidate(names, climate.VariablePrecipitation, jan1)
	require.NoError(t, err)
	assert.Equal(t, "PRISM_ppt_stable_4kmD2_20140101_bil.zip", sel.Entry)
}

func TestHTTPFetchCandidate(t *testing.T) {
	p := newHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/daily/tmin/2014/PRISM_tmin_early_4kmD1_20140101_bil.zip" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("zip-bytes"))
	}))

	var buf bytes.Buffer
	err := p.FetchCandidate(context.Background(), climate.VariableMinTemperature, jan1, "PRISM_tmin_early_4kmD1_20140101_bil.zip", &buf)
	require.NoError(t, err)
	assert.Equal(t, "zip-bytes", buf.String())

	err = p.FetchCandidate(context.Background(), climate.VariableMinTemperature, jan1, "missing.zip", &buf)
	assert.True(t, errors.Is(err, errNotFound))
}

func TestHTTPFetchRejectsPathEntries(t *testing.T) {
	p := newHTTP(t, http.NotFoundHandler())
	for _, entry := range []string{"", "..", "../secret", "a/b.zip"} {
		err := p.FetchCandidate(context.Background(), climate.VariablePrecipitation, jan1, entry, &bytes.Buffer{})
		assert.True(t, errors.Is(err, errBadEntry), "entry %q", entry)
	}
}

func TestHTTPServerErrorsTripBreaker(t *testing.T) {
	calls := 0
	p := newHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = p.ListRemoteCandidates(context.Background(), climate.VariablePrecipitation, jan1)
	}
	assert.True(t, errors.Is(lastErr, errCircuitOpen))
	assert.Less(t, calls, 10)
}

func TestHTTPMissingYearIsEmptyListing(t *testing.T) {
	p := newHTTP(t, http.NotFoundHandler())
	for i := 0; i < 10; i++ {
		names, err := p.ListRemoteCandidates(context.Background(), climate.VariablePrecipitation, jan1)
		require.NoError(t, err, "attempt %d", i)
		assert.Empty(t, names)
	}
}

func TestHTTPRespectsCancelledContext(t *testing.T) {
	p := newHTTP(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, indexPage)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ListRemoteCandidates(ctx, climate.VariablePrecipitation, jan1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexLinksIgnoresDirectoriesAndQueries(t *testing.T) {
	names, err := indexLinks(strings.NewReader(`<a href="sub/">sub</a><a href="?C=M">m</a><a href="a.zip">a</a><a name="x">x</a>`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.zip"}, names)
}
