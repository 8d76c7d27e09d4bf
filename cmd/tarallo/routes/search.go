package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/container"
	"github.com/weeeopen/tarallo/cmd/tarallo/handlers"
)

// RegisterSearchRoutes registers search routes
func RegisterSearchRoutes(v2 *echo.Group, c *container.Container) {
	h := handlers.NewSearchHandler(c.SearchService, c.Components.Logger)

	searches := v2.Group("/searches")
	{
		searches.POST("", h.Search, searchLimit(c)...) // POST /v2/searches
		searches.GET("/:id/results", h.GetResults)     // GET /v2/searches/7/results?page=1
		searches.GET("/:id/count", h.GetResultsCount)  // GET /v2/searches/7/count
		searches.DELETE("/expired", h.PurgeExpired)    // DELETE /v2/searches/expired
	}
}
