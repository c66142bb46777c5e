package climate

import (
	"context"
	"io"
	"time"
)

// SourceProvider abstracts a remote archive (the PRISM FTP server, its HTTPS
// mirror, ...). Implementations are composed by the Service.
type SourceProvider interface {
	Name() string
	// ListRemoteCandidates returns the raw listing entries of the directory
	// that holds date's files for v. Entries for other dates may be included.
	ListRemoteCandidates(ctx context.Context, v Variable, date time.Time) ([]string, error)
	// FetchCandidate streams one listing entry into w.
	FetchCandidate(ctx context.Context, v Variable, date time.Time, entry string, w io.Writer) error
	// ParseLocalDescriptor recovers the descriptor of an already archived file.
	ParseLocalDescriptor(path string) (Descriptor, error)
}

// InstallResult reports what an install did.
type InstallResult struct {
	Asset ResolvedAsset
	// Installed is false when the staged asset did not supersede the current one.
	Installed bool
	// Replaced is the asset that was superseded, if any.
	Replaced *ResolvedAsset
}

// Installer moves a staged asset into the archive. Installing an equal or
// lower scored asset must be a no-op.
type Installer interface {
	Install(ctx context.Context, staged string, d Descriptor) (InstallResult, error)
}

// Catalog maps a key to its current resolved asset.
type Catalog interface {
	Lookup(ctx context.Context, v Variable, date time.Time, tile string) (ResolvedAsset, bool, error)
}
