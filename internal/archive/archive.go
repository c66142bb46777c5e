// Package archive installs staged PRISM assets into a directory tree and keeps
// exactly one resolved asset per (variable, date, tile).
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/prism-archive/internal/climate"
	"github.com/i474232898/prism-archive/internal/metrics"
)

// Store records the current asset per key. Put only replaces an existing
// asset that the new one supersedes.
type Store interface {
	climate.Catalog
	Put(ctx context.Context, asset climate.ResolvedAsset) (PutResult, error)
	List(ctx context.Context, v climate.Variable, from, to time.Time) ([]climate.ResolvedAsset, error)
	Remove(ctx context.Context, key climate.Key) error
}

// PutResult reports the outcome of Store.Put.
type PutResult struct {
	Stored   bool
	Current  climate.ResolvedAsset
	Previous *climate.ResolvedAsset
}

// Archive is a filesystem archive rooted at a directory:
//
//	<root>/assets/<variable>/<tile>/<year>/<asset>/   installed assets
//	<root>/stage/                                   download staging
//	<root>/products/                                derived products
type Archive struct {
	root    string
	store   Store
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[climate.Key]*sync.Mutex
	now   func() time.Time
}

// New creates the archive directories under root.
func New(root string, store Store, m *metrics.Metrics, logger *zap.Logger) (*Archive, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, dir := range []string{"assets", "stage", "products"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o750); err != nil {
			return nil, fmt.Errorf("create archive %s dir: %w", dir, err)
		}
	}
	return &Archive{
		root:    root,
		store:   store,
		metrics: m,
		logger:  logger,
		locks:   make(map[climate.Key]*sync.Mutex),
		now:     time.Now,
	}, nil
}

// Root returns the archive root.
func (a *Archive) Root() string { return a.root }

// StageDir returns the staging root for downloads.
func (a *Archive) StageDir() string { return filepath.Join(a.root, "stage") }

// ProductDir returns the root of derived products.
func (a *Archive) ProductDir() string { return filepath.Join(a.root, "products") }

// AssetDirName is the directory an asset is extracted into: its archive
// filename without the .zip suffix.
func AssetDirName(d climate.Descriptor) string {
	return strings.TrimSuffix(d.Filename, ".zip")
}

// ParseAssetDir recovers a descriptor from an asset directory or archive filename.
func ParseAssetDir(path string) (climate.Descriptor, error) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".zip") {
		name += ".zip"
	}
	return climate.Parse(name)
}

func (a *Archive) assetDir(d climate.Descriptor) string {
	return filepath.Join(a.root, "assets", string(d.Variable), d.Tile,
		strconv.Itoa(d.Date.Year()), AssetDirName(d))
}

func (a *Archive) keyLock(k climate.Key) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.locks[k]
	if !ok {
		l = &sync.Mutex{}
		a.locks[k] = l
	}
	return l
}

// Lookup returns the current asset for (v, date, tile).
func (a *Archive) Lookup(ctx context.Context, v climate.Variable, date time.Time, tile string) (climate.ResolvedAsset, bool, error) {
	return a.store.Lookup(ctx, v, climate.Day(date), tile)
}

// List returns the current assets of v between from and to, inclusive.
func (a *Archive) List(ctx context.Context, v climate.Variable, from, to time.Time) ([]climate.ResolvedAsset, error) {
	return a.store.List(ctx, v, climate.Day(from), climate.Day(to))
}

// Install extracts the staged archive next to its final location and renames
// it into place, then points the store at it and removes the asset it
// superseded. Installing an equal or lower scored asset changes nothing.
func (a *Archive) Install(ctx context.Context, staged string, d climate.Descriptor) (climate.InstallResult, error) {
	var res climate.InstallResult
	key := d.Key()
	l := a.keyLock(key)
	l.Lock()
	defer l.Unlock()

	log := a.logger.With(zap.String("key", key.String()), zap.String("asset", d.Filename))

	current, ok, err := a.store.Lookup(ctx, d.Variable, d.Date, d.Tile)
	if err != nil {
		return res, fmt.Errorf("lookup current: %w", err)
	}
	if ok && !climate.Supersedes(d, current.Descriptor) {
		log.Debug("install skipped, current asset is equal or better",
			zap.String("current", current.Descriptor.Filename))
		a.metrics.IncInstall(string(d.Variable), "unchanged")
		res.Asset = current
		return res, nil
	}

	final := a.assetDir(d)
	if err := os.MkdirAll(filepath.Dir(final), 0o750); err != nil {
		return res, err
	}
	tmp, err := os.MkdirTemp(filepath.Dir(final), ".install-")
	if err != nil {
		return res, err
	}
	defer os.RemoveAll(tmp)

	members, err := extract(staged, tmp)
	if err != nil {
		a.metrics.IncInstall(string(d.Variable), "failed")
		return res, fmt.Errorf("extract %s: %w", filepath.Base(staged), err)
	}
	band, err := bandFile(members, d.Variable)
	if err != nil {
		a.metrics.IncInstall(string(d.Variable), "failed")
		return res, err
	}

	if _, err := os.Stat(final); err == nil {
		// another process may have recorded this very directory since our lookup
		current, ok, err := a.store.Lookup(ctx, d.Variable, d.Date, d.Tile)
		if err != nil {
			return res, fmt.Errorf("lookup current: %w", err)
		}
		if ok && current.Location == final {
			log.Debug("install skipped, asset already in place")
			a.metrics.IncInstall(string(d.Variable), "unchanged")
			res.Asset = current
			return res, nil
		}
		// left behind by an interrupted install; the store never pointed here
		if err := os.RemoveAll(final); err != nil {
			return res, err
		}
	}
	if err := os.Rename(tmp, final); err != nil {
		a.metrics.IncInstall(string(d.Variable), "failed")
		return res, fmt.Errorf("move asset into place: %w", err)
	}

	asset := climate.ResolvedAsset{
		Descriptor:  d,
		Location:    final,
		Files:       map[climate.Variable]string{d.Variable: filepath.Join(final, band)},
		InstalledAt: a.now().UTC(),
	}
	put, err := a.store.Put(ctx, asset)
	if err != nil {
		os.RemoveAll(final)
		a.metrics.IncInstall(string(d.Variable), "failed")
		return res, fmt.Errorf("record asset: %w", err)
	}
	if !put.Stored {
		// another writer recorded an equal or better asset meanwhile
		if put.Current.Location != final {
			os.RemoveAll(final)
		}
		a.metrics.IncInstall(string(d.Variable), "unchanged")
		res.Asset = put.Current
		return res, nil
	}

	if put.Previous != nil && put.Previous.Location != final {
		if err := os.RemoveAll(put.Previous.Location); err != nil {
			log.Warn("failed to remove superseded asset", zap.String("location", put.Previous.Location), zap.Error(err))
		}
	}
	a.metrics.IncInstall(string(d.Variable), "installed")
	log.Info("asset installed", zap.String("location", final))

	res.Asset = asset
	res.Installed = true
	res.Replaced = put.Previous
	return res, nil
}
