package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/prism-archive/internal/archive"
	"github.com/i474232898/prism-archive/internal/climate"
	"github.com/i474232898/prism-archive/internal/common"
)

var (
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
	errBadEntry     = errors.New("listing entry is not a plain filename")
	errNotFound     = errors.New("remote path not found")
)

// Settings configures a provider.
type Settings struct {
	// BaseURL is the remote root holding <variable>/<year>/ directories.
	BaseURL string
	// Email is sent as the anonymous FTP password.
	Email   string
	Timeout time.Duration
	Client  *http.Client
}

// New returns the provider matching the scheme of s.BaseURL (ftp or http(s)).
func New(s Settings) (climate.SourceProvider, error) {
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ftp":
		return NewFTPProvider(u, s.Email, s.Timeout), nil
	case "http", "https":
		client := s.Client
		if client == nil {
			client = &http.Client{Timeout: s.Timeout}
		}
		return NewHTTPProvider(u, client), nil
	}
	return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// execute runs fn through the circuit breaker. An open circuit is reported
// immediately; retrying is left to the caller's pipeline. A missing remote
// path is an answer from a healthy server and does not count as a failure.
func execute(ctx context.Context, cb *gobreaker.CircuitBreaker, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var missing error
	_, err := cb.Execute(func() (interface{}, error) {
		err := fn()
		if errors.Is(err, errNotFound) {
			missing = err
			return nil, nil
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", errCircuitOpen, err)
	}
	if err != nil {
		return err
	}
	return missing
}

// remoteDir is the directory holding the files of v for date's year.
func remoteDir(base string, v climate.Variable, date time.Time) string {
	return path.Join(base, string(v), strconv.Itoa(date.Year()))
}

// checkEntry rejects entries that would escape the listed directory.
func checkEntry(entry string) error {
	if entry == "" || entry != path.Base(entry) || entry == "." || entry == ".." {
		return fmt.Errorf("%w: %q", errBadEntry, entry)
	}
	return nil
}

// ftpNotFound reports whether an FTP reply says the path does not exist.
func ftpNotFound(err error) bool {
	return err != nil && common.ContainsAnyFold(err.Error(), "550", "no such file", "not found")
}

func parseLocal(p string) (climate.Descriptor, error) {
	return archive.ParseAssetDir(p)
}
