package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/prism-archive/internal/archive"
	"github.com/i474232898/prism-archive/internal/climate"
)

// MemoryStore is a concurrency-safe in-memory catalog of resolved assets.
type MemoryStore struct {
	mu sync.RWMutex

	// key: natural key, value: current asset
	data map[climate.Key]climate.ResolvedAsset
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[climate.Key]climate.ResolvedAsset),
	}
}

func memKey(v climate.Variable, date time.Time, tile string) climate.Key {
	return climate.Key{Variable: v, Date: climate.Day(date), Tile: tile}
}

// Lookup returns the current asset for (v, date, tile).
func (s *MemoryStore) Lookup(_ context.Context, v climate.Variable, date time.Time, tile string) (climate.ResolvedAsset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.data[memKey(v, date, tile)]
	return asset, ok, nil
}

// Put records asset when its key is empty or when it supersedes the current one.
func (s *MemoryStore) Put(_ context.Context, asset climate.ResolvedAsset) (archive.PutResult, error) {
	d := asset.Descriptor
	key := memKey(d.Variable, d.Date, d.Tile)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[key]
	if ok && !climate.Supersedes(d, current.Descriptor) {
		return archive.PutResult{Current: current}, nil
	}
	s.data[key] = asset

	res := archive.PutResult{Stored: true, Current: asset}
	if ok {
		prev := current
		res.Previous = &prev
	}
	return res, nil
}

// Remove forgets the asset recorded for key.
func (s *MemoryStore) Remove(_ context.Context, key climate.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, memKey(key.Variable, key.Date, key.Tile))
	return nil
}

// List returns the assets of v dated between from and to (inclusive), oldest first.
func (s *MemoryStore) List(_ context.Context, v climate.Variable, from, to time.Time) ([]climate.ResolvedAsset, error) {
	from, to = climate.Day(from), climate.Day(to)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []climate.ResolvedAsset
	for key, asset := range s.data {
		if key.Variable != v {
			continue
		}
		if (key.Date.Equal(from) || key.Date.After(from)) &&
			(key.Date.Equal(to) || key.Date.Before(to)) {
			result = append(result, asset)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Descriptor.Date.Before(result[j].Descriptor.Date)
	})
	return result, nil
}
