package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/prism-archive/internal/archive"
	"github.com/i474232898/prism-archive/internal/climate"
)

func asset(t *testing.T, name string) climate.ResolvedAsset {
	t.Helper()
	d, err := climate.Parse(name)
	require.NoError(t, err)
	return climate.ResolvedAsset{
		Descriptor: d,
		Location:   "/archive/" + name,
		Files:      map[climate.Variable]string{d.Variable: "/archive/" + name + "/x.bil"},
	}
}

// Compile-time interface satisfaction checks.
var (
	_ archive.Store = (*MemoryStore)(nil)
	_ archive.Store = (*PostgresStore)(nil)
)

func TestMemoryStorePutAndLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := asset(t, "PRISM_ppt_early_4kmD1_20140101_bil.zip")

	res, err := s.Put(ctx, a)
	require.NoError(t, err)
	assert.True(t, res.Stored)
	assert.Nil(t, res.Previous)

	got, ok, err := s.Lookup(ctx, climate.VariablePrecipitation, time.Date(2014, 1, 1, 15, 0, 0, 0, time.UTC), climate.TileCONUS)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.Location, got.Location)

	_, ok, err = s.Lookup(ctx, climate.VariableMaxTemperature, a.Descriptor.Date, climate.TileCONUS)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStorePutOnlySupersedes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	stable := asset(t, "PRISM_ppt_stable_4kmD1_20140101_bil.zip")
	early := asset(t, "PRISM_ppt_early_4kmD4_20140101_bil.zip")
	stable2 := asset(t, "PRISM_ppt_stable_4kmD2_20140101_bil.zip")

	_, err := s.Put(ctx, stable)
	require.NoError(t, err)

	res, err := s.Put(ctx, early)
	require.NoError(t, err)
	assert.False(t, res.Stored)
	assert.Equal(t, stable.Location, res.Current.Location)

	res, err = s.Put(ctx, stable)
	require.NoError(t, err)
	assert.False(t, res.Stored, "equal score is not stored again")

	res, err = s.Put(ctx, stable2)
	require.NoError(t, err)
	assert.True(t, res.Stored)
	require.NotNil(t, res.Previous)
	assert.Equal(t, stable.Location, res.Previous.Location)
}

func TestMemoryStoreConcurrentPut(t *testing.T) {
	s := NewMemoryStore()
	names := []string{
		"PRISM_ppt_provisional_4kmD1_20140101_bil.zip",
		"PRISM_ppt_early_4kmD1_20140101_bil.zip",
		"PRISM_ppt_stable_4kmD3_20140101_bil.zip",
		"PRISM_ppt_stable_4kmD1_20140101_bil.zip",
		"PRISM_ppt_early_4kmD9_20140101_bil.zip",
	}
	assets := make([]climate.ResolvedAsset, len(names))
	for i, n := range names {
		assets[i] = asset(t, n)
	}

	var wg sync.WaitGroup
	for _, a := range assets {
		wg.Add(1)
		go func(a climate.ResolvedAsset) {
			defer wg.Done()
			s.Put(context.Background(), a)
		}(a)
	}
	wg.Wait()

	got, ok, _ := s.Lookup(context.Background(), climate.VariablePrecipitation, assets[0].Descriptor.Date, climate.TileCONUS)
	require.True(t, ok)
	assert.Equal(t, "PRISM_ppt_stable_4kmD3_20140101_bil.zip", got.Descriptor.Filename)
}

func TestMemoryStoreListAndRemove(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, n := range []string{
		"PRISM_ppt_stable_4kmD1_20140103_bil.zip",
		"PRISM_ppt_stable_4kmD1_20140101_bil.zip",
		"PRISM_ppt_stable_4kmD1_20140105_bil.zip",
		"PRISM_tmin_stable_4kmD1_20140102_bil.zip",
	} {
		_, err := s.Put(ctx, asset(t, n))
		require.NoError(t, err)
	}

	from := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2014, 1, 3, 0, 0, 0, 0, time.UTC)
	list, err := s.List(ctx, climate.VariablePrecipitation, from, to)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Descriptor.Date.Equal(from))
	assert.True(t, list[1].Descriptor.Date.Equal(to))

	require.NoError(t, s.Remove(ctx, list[0].Descriptor.Key()))
	_, ok, _ := s.Lookup(ctx, climate.VariablePrecipitation, from, climate.TileCONUS)
	assert.False(t, ok)
}
