package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/sony/gobreaker"

	"github.com/i474232898/prism-archive/internal/climate"
)

const defaultFTPPort = "21"

// ftpConn is the part of *ftp.ServerConn the provider uses.
type ftpConn interface {
	NameList(path string) ([]string, error)
	Retr(path string) (*ftp.Response, error)
	Quit() error
}

// FTPProvider lists and downloads PRISM files from the archive's FTP server,
// e.g. ftp://prism.nacse.org/daily.
type FTPProvider struct {
	name    string
	addr    string
	root    string
	email   string
	timeout time.Duration
	circuit *gobreaker.CircuitBreaker

	dial func(ctx context.Context) (ftpConn, error)
}

// NewFTPProvider creates a provider for the FTP root u.
func NewFTPProvider(u *url.URL, email string, timeout time.Duration) *FTPProvider {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), defaultFTPPort)
	}
	p := &FTPProvider{
		name:    "ftp:" + u.Hostname(),
		addr:    addr,
		root:    path.Clean("/" + u.Path),
		email:   email,
		timeout: timeout,
		circuit: newBreaker("ftp:" + u.Hostname()),
	}
	p.dial = p.dialServer
	return p
}

// Name returns the provider name.
func (p *FTPProvider) Name() string {
	return p.name
}

func (p *FTPProvider) dialServer(ctx context.Context) (ftpConn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if p.timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(p.timeout))
	}
	c, err := ftp.Dial(p.addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.addr, err)
	}
	if err := c.Login("anonymous", p.email); err != nil {
		c.Quit()
		return nil, fmt.Errorf("login %s: %w", p.addr, err)
	}
	return c, nil
}

// ListRemoteCandidates returns the names in the year directory of date.
func (p *FTPProvider) ListRemoteCandidates(ctx context.Context, v climate.Variable, date time.Time) ([]string, error) {
	dir := remoteDir(p.root, v, date)
	var names []string
	err := execute(ctx, p.circuit, func() error {
		c, err := p.dial(ctx)
		if err != nil {
			return err
		}
		defer c.Quit()

		names, err = c.NameList(dir)
		if ftpNotFound(err) {
			return fmt.Errorf("list %s: %w: %v", dir, errNotFound, err)
		}
		if err != nil {
			return fmt.Errorf("list %s: %w", dir, err)
		}
		return nil
	})
	if errors.Is(err, errNotFound) {
		// the year directory appears with the first file of the year
		return nil, nil
	}
	return names, err
}

// FetchCandidate downloads entry from the year directory of date into w.
func (p *FTPProvider) FetchCandidate(ctx context.Context, v climate.Variable, date time.Time, entry string, w io.Writer) error {
	if err := checkEntry(entry); err != nil {
		return err
	}
	file := path.Join(remoteDir(p.root, v, date), entry)
	return execute(ctx, p.circuit, func() error {
		c, err := p.dial(ctx)
		if err != nil {
			return err
		}
		defer c.Quit()

		resp, err := c.Retr(file)
		if ftpNotFound(err) {
			return fmt.Errorf("retr %s: %w: %v", file, errNotFound, err)
		}
		if err != nil {
			return fmt.Errorf("retr %s: %w", file, err)
		}
		if _, err := io.Copy(w, resp); err != nil {
			resp.Close()
			return fmt.Errorf("download %s: %w", file, err)
		}
		return resp.Close()
	})
}

// ParseLocalDescriptor parses an archived asset path.
func (p *FTPProvider) ParseLocalDescriptor(path string) (climate.Descriptor, error) {
	return parseLocal(path)
}
