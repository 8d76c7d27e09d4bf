package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/middleware"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/logger"
)

// SearchAPI is what the search handler needs from the search service
type SearchAPI interface {
	Search(ctx context.Context, user string, in *models.SearchInput) (int64, error)
	GetResults(ctx context.Context, id int64, page, perPage, depth int) ([]*models.Item, error)
	GetResultsCount(ctx context.Context, id int64) (int64, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// SearchHandler handles search requests
type SearchHandler struct {
	searches SearchAPI
	log      *logger.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(searches SearchAPI, log *logger.Logger) *SearchHandler {
	return &SearchHandler{searches: searches, log: log}
}

// Search creates a search, or refines the one named by "previous"
// POST /v2/searches
func (h *SearchHandler) Search(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	var req models.SearchInput
	if err := decodeBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	id, err := h.searches.Search(c.Request().Context(), username, &req)
	if err != nil {
		return respondError(c, h.log, err)
	}

	status := http.StatusCreated
	if req.Previous != nil {
		status = http.StatusOK
	}
	return c.JSON(status, map[string]interface{}{
		"id": id,
	})
}

// GetResults returns one page of results
// GET /v2/searches/:id/results?page=1&per_page=20&depth=0
func (h *SearchHandler) GetResults(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return respondError(c, h.log, err)
	}
	perPage, err := queryInt(c, "per_page", 0)
	if err != nil {
		return respondError(c, h.log, err)
	}
	depth, err := queryInt(c, "depth", 0)
	if err != nil {
		return respondError(c, h.log, err)
	}

	items, err := h.searches.GetResults(c.Request().Context(), id, page, perPage, depth)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":    id,
		"page":  page,
		"items": items,
	})
}

// GetResultsCount returns the size of a result set
// GET /v2/searches/:id/count
func (h *SearchHandler) GetResultsCount(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return respondError(c, h.log, err)
	}

	count, err := h.searches.GetResultsCount(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":    id,
		"count": count,
	})
}

// PurgeExpired deletes expired searches
// DELETE /v2/searches/expired
func (h *SearchHandler) PurgeExpired(c echo.Context) error {
	purged, err := h.searches.PurgeExpired(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"purged": purged,
	})
}
