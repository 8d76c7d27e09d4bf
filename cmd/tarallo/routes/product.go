package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/container"
	"github.com/weeeopen/tarallo/cmd/tarallo/handlers"
)

// RegisterProductRoutes registers product routes
func RegisterProductRoutes(v2 *echo.Group, c *container.Container) {
	h := handlers.NewProductHandler(c.ProductService, c.Components.Logger)

	products := v2.Group("/products")
	{
		products.POST("", h.CreateProduct)                    // POST /v2/products
		products.GET("/:brand/:model/:variant", h.GetProduct) // GET /v2/products/eMac/EZ1600/default
	}
}
