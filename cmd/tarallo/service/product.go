package service

import (
	"context"
	"strings"
	"time"

	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/cache"
	"github.com/weeeopen/tarallo/common/feature"
	"github.com/weeeopen/tarallo/common/logger"
	"github.com/weeeopen/tarallo/common/telemetry"
)

// ProductStore persists products
type ProductStore interface {
	Create(ctx context.Context, p *models.Product) error
	Get(ctx context.Context, ref models.ProductRef) (*models.Product, error)
}

// ProductService handles product operations
type ProductService struct {
	store   ProductStore
	catalog *feature.Catalog
	cache   cache.Cache
	log     *logger.Logger
	tel     *telemetry.Telemetry
}

// NewProductService creates a new product service
func NewProductService(store ProductStore, catalog *feature.Catalog, c cache.Cache, log *logger.Logger, tel *telemetry.Telemetry) *ProductService {
	return &ProductService{store: store, catalog: catalog, cache: c, log: log, tel: tel}
}

// CreateProduct validates and stores a product. Items already carrying its
// brand, model and variant pick up the defaults on their next read.
func (s *ProductService) CreateProduct(ctx context.Context, in *models.ProductInput) (p *models.Product, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "create_product", start, err) }(time.Now())

	if in == nil {
		return nil, &models.InvalidArgumentError{Argument: "product", Reason: "missing"}
	}
	ref := models.ProductRef{
		Brand:   strings.TrimSpace(in.Brand),
		Model:   strings.TrimSpace(in.Model),
		Variant: strings.TrimSpace(in.Variant),
	}
	if ref.Brand == "" || ref.Model == "" || ref.Variant == "" {
		return nil, &models.InvalidArgumentError{Argument: "product", Reason: "brand, model and variant are required"}
	}

	features, err := s.catalog.ValidateSet(in.Features)
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"brand", "model", "variant"} {
		if _, ok := features[key]; ok {
			return nil, &models.InvalidArgumentError{Argument: key, Reason: "is part of the product key, not a default feature"}
		}
	}

	p = &models.Product{ProductRef: ref, Features: features}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	invalidateStats(ctx, s.cache, s.log)

	s.log.WithContext(ctx).Info("created product",
		"brand", ref.Brand,
		"model", ref.Model,
		"variant", ref.Variant,
	)
	return p, nil
}

// GetProduct retrieves a product by brand, model and variant
func (s *ProductService) GetProduct(ctx context.Context, ref models.ProductRef) (p *models.Product, err error) {
	defer func(start time.Time) { observe(ctx, s.log, s.tel, "get_product", start, err) }(time.Now())
	return s.store.Get(ctx, ref)
}
