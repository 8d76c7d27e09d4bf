package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/container"
	"github.com/weeeopen/tarallo/cmd/tarallo/handlers"
	"github.com/weeeopen/tarallo/cmd/tarallo/middleware"
)

// RegisterItemRoutes registers item, shared item and admin routes
func RegisterItemRoutes(e *echo.Echo, v2 *echo.Group, c *container.Container) {
	h := handlers.NewItemHandler(c.ItemService, c.Components.Logger)

	items := v2.Group("/items")
	{
		items.POST("", h.AddItem)                       // POST /v2/items?parent=Chernobyl
		items.GET("/:code", h.GetItem)                  // GET /v2/items/PC42?depth=2
		items.DELETE("/:code", h.DeleteItem)            // DELETE /v2/items/SATAna1
		items.POST("/:code/move", h.MoveItem)           // POST /v2/items/PC42/move
		items.POST("/:code/lose", h.LoseItem)           // POST /v2/items/SATAna1/lose
		items.POST("/:code/restore", h.RestoreItem)     // POST /v2/items/SATAna1/restore
		items.PATCH("/:code/features", h.PatchFeatures) // PATCH /v2/items/PC42/features
		items.GET("/:code/history", h.History)          // GET /v2/items/PC42/history
	}

	// Token holders need no identity
	shared := e.Group("/v2/shared/items")
	shared.Use(middleware.ExtractUsername())
	{
		shared.GET("/:code", h.GetSharedItem) // GET /v2/shared/items/PC42?token=...
	}

	admin := v2.Group("/admin")
	{
		admin.GET("/closure", h.VerifyClosure) // GET /v2/admin/closure
	}
}
