package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/cache"
	"github.com/weeeopen/tarallo/common/config"
	"github.com/weeeopen/tarallo/common/feature"
	"github.com/weeeopen/tarallo/common/logger"
	"github.com/weeeopen/tarallo/common/telemetry"
)

// StatsStore runs aggregate queries
type StatsStore interface {
	LocationsByItems(ctx context.Context) ([]models.CountEntry, error)
	DuplicateSerials(ctx context.Context) ([]models.CountEntry, error)
	ModifiedItems(ctx context.Context, itemType string, f models.StatsFilter, recent bool, limit int) ([]models.ModifiedItem, error)
	CountByFeature(ctx context.Context, name string, match *feature.Feature, f models.StatsFilter) ([]models.CountEntry, error)
	ItemsByFeature(ctx context.Context, match feature.Feature, f models.StatsFilter, limit int) ([]string, error)
	ItemsWithoutFeature(ctx context.Context, match feature.Feature, missing string, f models.StatsFilter, limit int) ([]string, error)
	RollupCountByFeature(ctx context.Context, match *feature.Feature, names []string, f models.StatsFilter) ([]models.RollupRow, error)
}

// StatsService validates stats requests and caches their answers
type StatsService struct {
	store   StatsStore
	catalog *feature.Catalog
	cache   cache.Cache
	cfg     config.StatsConfig
	log     *logger.Logger
	tel     *telemetry.Telemetry
}

// NewStatsService creates a new stats service. A nil cache disables caching.
func NewStatsService(store StatsStore, catalog *feature.Catalog, c cache.Cache, cfg config.StatsConfig, log *logger.Logger, tel *telemetry.Telemetry) *StatsService {
	return &StatsService{store: store, catalog: catalog, cache: c, cfg: cfg, log: log, tel: tel}
}

// cached serves key from the cache or computes and stores it.
// Cache failures degrade to computing.
func cached[T any](ctx context.Context, s *StatsService, key string, compute func() (T, error)) (T, error) {
	key = statsCachePrefix + key
	if s.cache != nil {
		data, found, err := s.cache.Get(ctx, key)
		if err == nil && found {
			var v T
			if err := json.Unmarshal(data, &v); err == nil {
				return v, nil
			}
		}
	}

	v, err := compute()
	if err != nil {
		return v, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(v); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cfg.CacheTTL); err != nil {
				s.log.WithContext(ctx).Debug("failed to cache stats", "key", key, "error", err)
			}
		}
	}
	return v, nil
}

func filterKey(f models.StatsFilter) string {
	var b strings.Builder
	if f.Location != nil {
		fmt.Fprintf(&b, "loc=%s;", *f.Location)
	}
	if f.CreatedAfter != nil {
		fmt.Fprintf(&b, "after=%d;", f.CreatedAfter.UnixNano())
	}
	fmt.Fprintf(&b, "deleted=%t", f.IncludeDeleted)
	return b.String()
}

func (s *StatsService) limit(limit int) int {
	if limit == 0 {
		return s.cfg.DefaultLimit
	}
	return limit
}

// match validates a raw name = value filter. Values go through the same
// coercion as search values, so "frequency-hertz=3000000" works.
func (s *StatsService) match(m *models.FeatureMatch) (*feature.Feature, error) {
	if m == nil {
		return nil, nil
	}
	v, err := s.catalog.Coerce(m.Name, m.Value)
	if err != nil {
		return nil, err
	}
	return &feature.Feature{Name: m.Name, Value: v}, nil
}

func matchKey(m *models.FeatureMatch) string {
	if m == nil {
		return "-"
	}
	return m.Name + "=" + m.Value
}

// LocationsByItems counts the items in every location
func (s *StatsService) LocationsByItems(ctx context.Context) (out []models.CountEntry, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "stats_locations", start, err) }(time.Now())
	return cached(ctx, s, "locations", func() ([]models.CountEntry, error) {
		return s.store.LocationsByItems(ctx)
	})
}

// DuplicateSerials lists serial numbers shared by more than one item
func (s *StatsService) DuplicateSerials(ctx context.Context) (out []models.CountEntry, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "stats_duplicate_serials", start, err) }(time.Now())
	return cached(ctx, s, "serials", func() ([]models.CountEntry, error) {
		return s.store.DuplicateSerials(ctx)
	})
}

// ModifiedItems ranks items of a type by their latest change
func (s *StatsService) ModifiedItems(ctx context.Context, itemType string, f models.StatsFilter, recent bool, limit int) (out []models.ModifiedItem, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "stats_modified", start, err) }(time.Now())

	if _, err := s.catalog.Validate("type", itemType); err != nil {
		return nil, err
	}
	limit = s.limit(limit)
	key := fmt.Sprintf("modified:%s:%t:%d:%s", itemType, recent, limit, filterKey(f))
	return cached(ctx, s, key, func() ([]models.ModifiedItem, error) {
		return s.store.ModifiedItems(ctx, itemType, f, recent, limit)
	})
}

// CountByFeature counts items per value of a feature
func (s *StatsService) CountByFeature(ctx context.Context, name string, m *models.FeatureMatch, f models.StatsFilter) (out []models.CountEntry, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "stats_count_by_feature", start, err) }(time.Now())

	if _, err := s.catalog.ResolveType(name); err != nil {
		return nil, err
	}
	match, err := s.match(m)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("count:%s:%s:%s", name, matchKey(m), filterKey(f))
	return cached(ctx, s, key, func() ([]models.CountEntry, error) {
		return s.store.CountByFeature(ctx, name, match, f)
	})
}

// ItemsByFeature lists items having a feature value
func (s *StatsService) ItemsByFeature(ctx context.Context, m models.FeatureMatch, f models.StatsFilter, limit int) (out []string, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "stats_items_by_feature", start, err) }(time.Now())

	match, err := s.match(&m)
	if err != nil {
		return nil, err
	}
	limit = s.limit(limit)
	key := fmt.Sprintf("by:%s:%d:%s", matchKey(&m), limit, filterKey(f))
	return cached(ctx, s, key, func() ([]string, error) {
		return s.store.ItemsByFeature(ctx, *match, f, limit)
	})
}

// ItemsWithoutFeature lists items matching m that lack the feature missing
func (s *StatsService) ItemsWithoutFeature(ctx context.Context, m models.FeatureMatch, missing string, f models.StatsFilter, limit int) (out []string, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "stats_items_without_feature", start, err) }(time.Now())

	match, err := s.match(&m)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.ResolveType(missing); err != nil {
		return nil, err
	}
	limit = s.limit(limit)
	key := fmt.Sprintf("without:%s:%s:%d:%s", matchKey(&m), missing, limit, filterKey(f))
	return cached(ctx, s, key, func() ([]string, error) {
		return s.store.ItemsWithoutFeature(ctx, *match, missing, f, limit)
	})
}

// RollupCountByFeature counts items grouped by every prefix of names
func (s *StatsService) RollupCountByFeature(ctx context.Context, m *models.FeatureMatch, names []string, f models.StatsFilter) (out []models.RollupRow, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "stats_rollup", start, err) }(time.Now())

	if len(names) == 0 {
		return nil, &models.InvalidArgumentError{Argument: "features", Reason: "at least one feature is required"}
	}
	for _, name := range names {
		if _, err := s.catalog.ResolveType(name); err != nil {
			return nil, err
		}
	}
	match, err := s.match(m)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("rollup:%s:%s:%s", strings.Join(names, ","), matchKey(m), filterKey(f))
	return cached(ctx, s, key, func() ([]models.RollupRow, error) {
		return s.store.RollupCountByFeature(ctx, match, names, f)
	})
}
