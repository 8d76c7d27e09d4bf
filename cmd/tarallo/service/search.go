package service

import (
	"context"
	"strings"
	"time"

	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/config"
	"github.com/weeeopen/tarallo/common/feature"
	"github.com/weeeopen/tarallo/common/logger"
	"github.com/weeeopen/tarallo/common/telemetry"
)

// SearchStore persists search result sets
type SearchStore interface {
	Search(ctx context.Context, owner string, q models.Query, previous *int64) (int64, error)
	GetResults(ctx context.Context, id int64, page, perPage, depth int) ([]*models.Item, error)
	GetResultsCount(ctx context.Context, id int64) (int64, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// SearchService turns search requests into validated queries
type SearchService struct {
	store   SearchStore
	catalog *feature.Catalog
	cfg     config.SearchConfig
	log     *logger.Logger
	tel     *telemetry.Telemetry
}

// NewSearchService creates a new search service
func NewSearchService(store SearchStore, catalog *feature.Catalog, cfg config.SearchConfig, log *logger.Logger, tel *telemetry.Telemetry) *SearchService {
	return &SearchService{store: store, catalog: catalog, cfg: cfg, log: log, tel: tel}
}

// Search validates in completely before touching storage, then creates
// a new search or refines in.Previous. It returns the search id.
func (s *SearchService) Search(ctx context.Context, user string, in *models.SearchInput) (id int64, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "search", start, err) }(time.Now())

	q, err := s.BuildQuery(in)
	if err != nil {
		return 0, err
	}

	id, err = s.store.Search(ctx, user, q, in.Previous)
	if err != nil {
		return 0, err
	}

	s.log.WithContext(ctx).Info("search stored",
		"search_id", id,
		"user", user,
		"predicates", len(q.Predicates),
		"refined", in.Previous != nil,
	)
	return id, nil
}

// BuildQuery converts a request into typed predicates
func (s *SearchService) BuildQuery(in *models.SearchInput) (models.Query, error) {
	var q models.Query
	if in == nil {
		return q, &models.InvalidArgumentError{Argument: "search", Reason: "missing"}
	}
	if in.Previous != nil && *in.Previous <= 0 {
		return q, &models.InvalidArgumentError{Argument: "previous", Reason: "must be positive"}
	}

	for _, p := range in.Features {
		fp, err := s.featurePredicate(p)
		if err != nil {
			return q, err
		}
		q.Predicates = append(q.Predicates, fp)
	}

	for _, code := range in.Locations {
		code = strings.TrimSpace(code)
		if code == "" {
			return q, &models.InvalidArgumentError{Argument: "locations", Reason: "empty location code"}
		}
		q.Predicates = append(q.Predicates, models.LocationPredicate{Code: code})
	}

	for _, p := range in.Ancestors {
		fp, err := s.featurePredicate(p)
		if err != nil {
			return q, err
		}
		q.Predicates = append(q.Predicates, models.AncestorPredicate{FeaturePredicate: fp})
	}

	if in.Code != nil {
		if *in.Code == "" {
			return q, &models.InvalidArgumentError{Argument: "code", Reason: "empty pattern"}
		}
		q.Predicates = append(q.Predicates, models.CodePredicate{Pattern: *in.Code})
	}

	if in.Sort != nil {
		if _, err := s.catalog.ResolveType(in.Sort.Feature); err != nil {
			return q, err
		}
		q.Sort = &models.Sort{Feature: in.Sort.Feature, Descending: in.Sort.Descending}
	}

	return q, nil
}

func (s *SearchService) featurePredicate(p models.PredicateInput) (models.FeaturePredicate, error) {
	op, err := feature.ParseOperator(p.Operator)
	if err != nil {
		return models.FeaturePredicate{}, &models.InvalidArgumentError{Argument: "op", Reason: err.Error()}
	}
	if _, err := s.catalog.CheckOperator(p.Name, op); err != nil {
		return models.FeaturePredicate{}, err
	}

	var v feature.Value
	if op == feature.OpLike || op == feature.OpNotLike {
		// patterns are matched as-is, without check rules
		str, ok := p.Value.(string)
		if !ok || str == "" {
			return models.FeaturePredicate{}, &feature.InvalidFeatureValueError{Name: p.Name, Value: p.Value, Reason: "expected a pattern"}
		}
		v = feature.StringValue(str)
	} else if v, err = s.catalog.Coerce(p.Name, p.Value); err != nil {
		return models.FeaturePredicate{}, err
	}

	return models.FeaturePredicate{Name: p.Name, Operator: op, Value: v}, nil
}

// GetResults returns one page of results. perPage 0 means the configured default.
func (s *SearchService) GetResults(ctx context.Context, id int64, page, perPage, depth int) (items []*models.Item, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "get_results", start, err) }(time.Now())

	if perPage == 0 {
		perPage = s.cfg.DefaultPerPage
	}
	if perPage > s.cfg.MaxPerPage {
		return nil, &models.InvalidArgumentError{Argument: "per_page", Reason: "above the maximum page size"}
	}
	return s.store.GetResults(ctx, id, page, perPage, depth)
}

// GetResultsCount returns the number of results of a search
func (s *SearchService) GetResultsCount(ctx context.Context, id int64) (count int64, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "get_results_count", start, err) }(time.Now())
	return s.store.GetResultsCount(ctx, id)
}

// PurgeExpired drops searches past their retention
func (s *SearchService) PurgeExpired(ctx context.Context) (purged int64, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "purge_searches", start, err) }(time.Now())

	purged, err = s.store.PurgeExpired(ctx)
	if err != nil {
		return 0, err
	}
	s.log.WithContext(ctx).Info("purged expired searches", "count", purged)
	return purged, nil
}
