package container

import (
	"fmt"

	"github.com/weeeopen/tarallo/cmd/tarallo/repository"
	"github.com/weeeopen/tarallo/cmd/tarallo/service"
	"github.com/weeeopen/tarallo/common/bootstrap"
	"github.com/weeeopen/tarallo/common/feature"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Catalog    *feature.Catalog

	// Repositories
	ItemRepo    *repository.ItemRepository
	TreeRepo    *repository.TreeRepository
	AuditRepo   *repository.AuditRepository
	ProductRepo *repository.ProductRepository
	SearchRepo  *repository.SearchRepository
	StatsRepo   *repository.StatsRepository

	// Services
	ItemService    *service.ItemService
	ProductService *service.ProductService
	SearchService  *service.SearchService
	StatsService   *service.StatsService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	if components.DB == nil {
		return nil, fmt.Errorf("container requires a database")
	}

	catalog, err := feature.Load(components.Config.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load feature catalog: %w", err)
	}

	cfg := components.Config
	log := components.Logger
	tel := components.Telemetry

	// Initialize repositories
	itemRepo := repository.NewItemRepository(components.DB, catalog)
	treeRepo := repository.NewTreeRepository(components.DB)
	auditRepo := repository.NewAuditRepository(components.DB)
	productRepo := repository.NewProductRepository(components.DB)
	searchRepo := repository.NewSearchRepository(components.DB, cfg.Search.Retention)
	statsRepo := repository.NewStatsRepository(components.DB, catalog)

	// Initialize services
	itemService := service.NewItemService(itemRepo, auditRepo, treeRepo, catalog, components.Cache, log, tel)
	productService := service.NewProductService(productRepo, catalog, components.Cache, log, tel)
	searchService := service.NewSearchService(searchRepo, catalog, cfg.Search, log, tel)
	statsService := service.NewStatsService(statsRepo, catalog, components.Cache, cfg.Stats, log, tel)

	log.Info("feature catalog loaded", "features", len(catalog.Definitions()))

	return &Container{
		Components:     components,
		Catalog:        catalog,
		ItemRepo:       itemRepo,
		TreeRepo:       treeRepo,
		AuditRepo:      auditRepo,
		ProductRepo:    productRepo,
		SearchRepo:     searchRepo,
		StatsRepo:      statsRepo,
		ItemService:    itemService,
		ProductService: productService,
		SearchService:  searchService,
		StatsService:   statsService,
	}, nil
}
