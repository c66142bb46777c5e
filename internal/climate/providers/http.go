package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/html"

	"github.com/i474232898/prism-archive/internal/climate"
)

// HTTPProvider reads the archive from an HTTP(S) mirror that serves the same
// <variable>/<year>/ tree as auto-generated index pages.
type HTTPProvider struct {
	name    string
	base    *url.URL
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewHTTPProvider creates a provider for the mirror root u.
func NewHTTPProvider(u *url.URL, client *http.Client) *HTTPProvider {
	base := *u
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &HTTPProvider{
		name:    "http:" + u.Hostname(),
		base:    &base,
		client:  client,
		circuit: newBreaker("http:" + u.Hostname()),
	}
}

// Name returns the provider name.
func (p *HTTPProvider) Name() string {
	return p.name
}

func (p *HTTPProvider) url(elem ...string) string {
	u := *p.base
	u.Path = path.Join(append([]string{p.base.Path}, elem...)...)
	return u.String()
}

func (p *HTTPProvider) get(ctx context.Context, target string, consume func(io.Reader) error) error {
	if p.client == nil {
		return errNoHTTPClient
	}
	return execute(ctx, p.circuit, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", errNotFound, target)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %s", errServerError, resp.Status)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
		}
		return consume(resp.Body)
	})
}

// ListRemoteCandidates returns the file links of the year index page of date.
func (p *HTTPProvider) ListRemoteCandidates(ctx context.Context, v climate.Variable, date time.Time) ([]string, error) {
	dir := remoteDir("", v, date)
	var names []string
	err := p.get(ctx, p.url(dir)+"/", func(r io.Reader) error {
		var err error
		names, err = indexLinks(r)
		return err
	})
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return names, nil
}

// FetchCandidate downloads entry from the year directory of date into w.
func (p *HTTPProvider) FetchCandidate(ctx context.Context, v climate.Variable, date time.Time, entry string, w io.Writer) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	return p.get(ctx, p.url(remoteDir("", v, date), entry), func(r io.Reader) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// ParseLocalDescriptor parses an archived asset path.
func (p *HTTPProvider) ParseLocalDescriptor(path string) (climate.Descriptor, error) {
	return parseLocal(path)
}

// indexLinks extracts the plain file names linked from a directory index page.
func indexLinks(r io.Reader) ([]string, error) {
	var names []string
	seen := make(map[string]bool)
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return names, nil
			}
			return nil, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if link := hrefName(string(val)); link != "" && !seen[link] {
						seen[link] = true
						names = append(names, link)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

func hrefName(href string) string {
	u, err := url.Parse(href)
	if err != nil || u.RawQuery != "" || strings.HasSuffix(u.Path, "/") {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return ""
	}
	return name
}
