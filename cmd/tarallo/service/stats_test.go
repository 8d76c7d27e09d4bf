package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/cache"
	"github.com/weeeopen/tarallo/common/config"
	"github.com/weeeopen/tarallo/common/feature"
	"github.com/weeeopen/tarallo/common/logger"
)

type fakeStatsStore struct {
	StatsStore
	calls int
	match *feature.Feature
}

func (f *fakeStatsStore) LocationsByItems(context.Context) ([]models.CountEntry, error) {
	f.calls++
	return []models.CountEntry{{Key: "Chernobyl", Count: 2}}, nil
}

func (f *fakeStatsStore) CountByFeature(_ context.Context, _ string, match *feature.Feature, _ models.StatsFilter) ([]models.CountEntry, error) {
	f.calls++
	f.match = match
	return []models.CountEntry{}, nil
}

func TestStats_CachesUntilMutation(t *testing.T) {
	ctx := context.Background()
	log := logger.Discard()
	mem := cache.NewMemoryCache(log)
	t.Cleanup(func() { mem.Close() })

	store := &fakeStatsStore{}
	stats := NewStatsService(store, feature.Default(), mem, config.StatsConfig{CacheTTL: 1 << 40, DefaultLimit: 100}, log, nil)
	items := newItemService(&fakeItemStore{}, mem)

	for i := 0; i < 3; i++ {
		out, err := stats.LocationsByItems(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.CountEntry{{Key: "Chernobyl", Count: 2}}, out)
	}
	assert.Equal(t, 1, store.calls)

	require.NoError(t, items.MoveItem(ctx, "alice", "PC42", "Polito"))

	_, err := stats.LocationsByItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestStats_CoercesMatch(t *testing.T) {
	store := &fakeStatsStore{}
	stats := NewStatsService(store, feature.Default(), nil, config.StatsConfig{DefaultLimit: 100}, logger.Discard(), nil)

	_, err := stats.CountByFeature(context.Background(), "type", &models.FeatureMatch{Name: "frequency-hertz", Value: "3000000"}, models.StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, &feature.Feature{Name: "frequency-hertz", Value: feature.IntValue(3000000)}, store.match)

	_, err = stats.CountByFeature(context.Background(), "warp", nil, models.StatsFilter{})
	var unknown *feature.UnknownFeatureError
	assert.ErrorAs(t, err, &unknown)

	_, err = stats.ModifiedItems(context.Background(), "spaceship", models.StatsFilter{}, true, 10)
	var invalid *feature.InvalidFeatureValueError
	assert.ErrorAs(t, err, &invalid)

	_, err = stats.RollupCountByFeature(context.Background(), nil, nil, models.StatsFilter{})
	var invalidArg *models.InvalidArgumentError
	assert.ErrorAs(t, err, &invalidArg)
}
