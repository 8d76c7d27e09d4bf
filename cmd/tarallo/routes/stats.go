package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/container"
	"github.com/weeeopen/tarallo/cmd/tarallo/handlers"
)

// RegisterStatsRoutes registers read-only stats routes
func RegisterStatsRoutes(v2 *echo.Group, c *container.Container) {
	h := handlers.NewStatsHandler(c.StatsService, c.Components.Logger)

	stats := v2.Group("/stats")
	{
		stats.GET("/locations", h.LocationsByItems)                 // GET /v2/stats/locations
		stats.GET("/serials/duplicates", h.DuplicateSerials)        // GET /v2/stats/serials/duplicates
		stats.GET("/modified", h.ModifiedItems)                     // GET /v2/stats/modified?type=case&recent=true
		stats.GET("/features/:name/count", h.CountByFeature)        // GET /v2/stats/features/color/count?match=type=case
		stats.GET("/features/:name/items", h.ItemsByFeature)        // GET /v2/stats/features/sn/items?value=123
		stats.GET("/features/:name/missing", h.ItemsWithoutFeature) // GET /v2/stats/features/sn/missing?match=type=hdd
		stats.GET("/rollup", h.RollupCountByFeature)                // GET /v2/stats/rollup?features=type,working
	}
}
