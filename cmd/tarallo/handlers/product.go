package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/logger"
)

// ProductAPI is what the product handler needs from the product service
type ProductAPI interface {
	CreateProduct(ctx context.Context, in *models.ProductInput) (*models.Product, error)
	GetProduct(ctx context.Context, ref models.ProductRef) (*models.Product, error)
}

// ProductHandler handles product requests
type ProductHandler struct {
	products ProductAPI
	log      *logger.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(products ProductAPI, log *logger.Logger) *ProductHandler {
	return &ProductHandler{products: products, log: log}
}

// CreateProduct stores a product
// POST /v2/products
func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req models.ProductInput
	if err := decodeBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	p, err := h.products.CreateProduct(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// GetProduct returns a product
// GET /v2/products/:brand/:model/:variant
func (h *ProductHandler) GetProduct(c echo.Context) error {
	ref := models.ProductRef{
		Brand:   c.Param("brand"),
		Model:   c.Param("model"),
		Variant: c.Param("variant"),
	}

	p, err := h.products.GetProduct(c.Request().Context(), ref)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, p)
}
