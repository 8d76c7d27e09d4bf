package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/logger"
)

type fakeStats struct {
	StatsAPI
	filter  models.StatsFilter
	match   *models.FeatureMatch
	names   []string
	missing string
	calls   int
}

func (f *fakeStats) CountByFeature(_ context.Context, _ string, m *models.FeatureMatch, filter models.StatsFilter) ([]models.CountEntry, error) {
	f.calls++
	f.match = m
	f.filter = filter
	return []models.CountEntry{{Key: "black", Count: 3}}, nil
}

func (f *fakeStats) ItemsWithoutFeature(_ context.Context, m models.FeatureMatch, missing string, _ models.StatsFilter, _ int) ([]string, error) {
	f.calls++
	f.match = &m
	f.missing = missing
	return []string{"HDD1"}, nil
}

func (f *fakeStats) ModifiedItems(context.Context, string, models.StatsFilter, bool, int) ([]models.ModifiedItem, error) {
	f.calls++
	return []models.ModifiedItem{}, nil
}

func (f *fakeStats) RollupCountByFeature(_ context.Context, _ *models.FeatureMatch, names []string, _ models.StatsFilter) ([]models.RollupRow, error) {
	f.calls++
	f.names = names
	return []models.RollupRow{}, nil
}

func statsServer(stats StatsAPI) *echo.Echo {
	e := echo.New()
	h := NewStatsHandler(stats, logger.Discard())

	g := e.Group("/v2/stats")
	g.GET("/modified", h.ModifiedItems)
	g.GET("/features/:name/count", h.CountByFeature)
	g.GET("/features/:name/missing", h.ItemsWithoutFeature)
	g.GET("/rollup", h.RollupCountByFeature)
	return e
}

func TestCountByFeature_Filters(t *testing.T) {
	stats := &fakeStats{}

	rec := do(statsServer(stats), http.MethodGet,
		"/v2/stats/features/color/count?match=type=case&location=Chernobyl&created_after=2024-01-01T00:00:00Z&include_deleted=true", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, &models.FeatureMatch{Name: "type", Value: "case"}, stats.match)
	require.NotNil(t, stats.filter.Location)
	assert.Equal(t, "Chernobyl", *stats.filter.Location)
	require.NotNil(t, stats.filter.CreatedAfter)
	assert.True(t, stats.filter.CreatedAfter.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, stats.filter.IncludeDeleted)
	assert.Equal(t, "color", decode(t, rec)["feature"])
}

func TestStats_RejectsBadParameters(t *testing.T) {
	tests := map[string]string{
		"bad match":     "/v2/stats/features/color/count?match=type",
		"bad time":      "/v2/stats/features/color/count?created_after=yesterday",
		"bad bool":      "/v2/stats/features/color/count?include_deleted=maybe",
		"missing match": "/v2/stats/features/sn/missing",
		"missing type":  "/v2/stats/modified",
		"bad limit":     "/v2/stats/modified?type=case&limit=ten",
	}
	for name, target := range tests {
		t.Run(name, func(t *testing.T) {
			stats := &fakeStats{}

			rec := do(statsServer(stats), http.MethodGet, target, "", "")

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, stats.calls)
		})
	}
}

func TestItemsWithoutFeature(t *testing.T) {
	stats := &fakeStats{}

	rec := do(statsServer(stats), http.MethodGet, "/v2/stats/features/sn/missing?match=type=hdd", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sn", stats.missing)
	assert.Equal(t, &models.FeatureMatch{Name: "type", Value: "hdd"}, stats.match)
}

func TestRollup_SplitsFeatures(t *testing.T) {
	stats := &fakeStats{}

	rec := do(statsServer(stats), http.MethodGet, "/v2/stats/rollup?features=type,+color,,working", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"type", "color", "working"}, stats.names)
}
