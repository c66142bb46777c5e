package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/i474232898/prism-archive/internal/climate"
)

// DescriptorParser recovers a descriptor from an archived asset path.
type DescriptorParser func(path string) (climate.Descriptor, error)

// Rescan walks the installed assets, records the best one per key in the
// store and removes superseded or half-installed leftovers. Catalog rows
// pointing at directories that are no longer on disk are dropped first, so
// those days can be fetched again. It returns the number of assets recorded.
// A nil parse uses ParseAssetDir.
func (a *Archive) Rescan(ctx context.Context, parse DescriptorParser) (int, error) {
	if parse == nil {
		parse = ParseAssetDir
	}
	pattern := filepath.Join(a.root, "assets", "*", "*", "*", "*")
	dirs, err := filepath.Glob(pattern)
	if err != nil {
		return 0, err
	}

	best := make(map[climate.Key]climate.ResolvedAsset)
	var losers []string
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if strings.HasPrefix(filepath.Base(dir), ".install-") {
			losers = append(losers, dir)
			continue
		}
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			continue
		}
		d, err := parse(dir)
		if err != nil {
			a.logger.Warn("unrecognised asset directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		asset, err := a.loadAsset(dir, d)
		if err != nil {
			a.logger.Warn("unusable asset directory", zap.String("dir", dir), zap.Error(err))
			continue
		}
		prev, ok := best[d.Key()]
		switch {
		case !ok:
			best[d.Key()] = asset
		case climate.Supersedes(d, prev.Descriptor),
			climate.ScoreOf(d) == climate.ScoreOf(prev.Descriptor) && d.Filename < prev.Descriptor.Filename:
			losers = append(losers, prev.Location)
			best[d.Key()] = asset
		default:
			losers = append(losers, dir)
		}
	}

	scanned := make(map[string]bool, len(best))
	for _, asset := range best {
		scanned[asset.Location] = true
	}
	if err := a.forgetMissing(ctx, scanned); err != nil {
		return 0, err
	}

	recorded := 0
	for _, asset := range best {
		put, err := a.store.Put(ctx, asset)
		if err != nil {
			return recorded, err
		}
		if put.Stored {
			recorded++
			continue
		}
		if put.Current.Location != asset.Location {
			losers = append(losers, asset.Location)
		}
	}
	for _, dir := range losers {
		a.logger.Info("removing superseded asset", zap.String("dir", dir))
		if err := os.RemoveAll(dir); err != nil {
			a.logger.Warn("remove failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	return recorded, nil
}

// forgetMissing removes every catalog row whose location is not in scanned.
func (a *Archive) forgetMissing(ctx context.Context, scanned map[string]bool) error {
	to := climate.Day(a.now()).AddDate(1, 0, 0)
	for _, v := range climate.Variables {
		assets, err := a.List(ctx, v, climate.ArchiveStart, to)
		if err != nil {
			return fmt.Errorf("list %s catalog: %w", v, err)
		}
		for _, asset := range assets {
			if scanned[asset.Location] {
				continue
			}
			a.logger.Warn("forgetting asset missing from disk",
				zap.String("key", asset.Descriptor.Key().String()),
				zap.String("location", asset.Location))
			if err := a.store.Remove(ctx, asset.Descriptor.Key()); err != nil {
				return fmt.Errorf("remove %s: %w", asset.Descriptor.Key(), err)
			}
		}
	}
	return nil
}

func (a *Archive) loadAsset(dir string, d climate.Descriptor) (climate.ResolvedAsset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return climate.ResolvedAsset{}, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	band, err := bandFile(names, d.Variable)
	if err != nil {
		return climate.ResolvedAsset{}, err
	}
	installed := a.now().UTC()
	if st, err := os.Stat(dir); err == nil {
		installed = st.ModTime().UTC()
	}
	return climate.ResolvedAsset{
		Descriptor:  d,
		Location:    dir,
		Files:       map[climate.Variable]string{d.Variable: filepath.Join(dir, band)},
		InstalledAt: installed,
	}, nil
}
