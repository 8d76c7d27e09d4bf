package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/middleware"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/feature"
	"github.com/weeeopen/tarallo/common/logger"
	"github.com/weeeopen/tarallo/common/tree"
)

const (
	defaultDepth        = 10
	defaultHistoryLimit = 50
)

// ItemAPI is what the item handler needs from the item service
type ItemAPI interface {
	AddItem(ctx context.Context, actor string, in *models.ItemInput, parent *string) (string, error)
	GetItem(ctx context.Context, code string, depth int, token *string) (*models.Item, error)
	MoveItem(ctx context.Context, actor, code, newParent string) error
	DeleteItem(ctx context.Context, actor, code string) error
	LoseItem(ctx context.Context, actor, code string) error
	Undelete(ctx context.Context, actor, code string) error
	PatchFeatures(ctx context.Context, actor, code string, patch []byte) (feature.Set, error)
	History(ctx context.Context, code string, limit int) ([]models.AuditEntry, error)
	VerifyClosure(ctx context.Context) ([]tree.Problem, error)
}

// ItemHandler handles item requests
type ItemHandler struct {
	items ItemAPI
	log   *logger.Logger
}

// NewItemHandler creates a new item handler
func NewItemHandler(items ItemAPI, log *logger.Logger) *ItemHandler {
	return &ItemHandler{items: items, log: log}
}

// AddItem creates an item tree
// POST /v2/items?parent=CODE
func (h *ItemHandler) AddItem(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	var req models.ItemInput
	if err := decodeBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}

	code, err := h.items.AddItem(c.Request().Context(), username, &req, queryString(c, "parent"))
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"code": code,
	})
}

// GetItem returns an item with its contents
// GET /v2/items/:code?depth=N
func (h *ItemHandler) GetItem(c echo.Context) error {
	depth, err := queryInt(c, "depth", defaultDepth)
	if err != nil {
		return respondError(c, h.log, err)
	}

	item, err := h.items.GetItem(c.Request().Context(), c.Param("code"), depth, nil)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, item)
}

// GetSharedItem returns an item to anyone holding its token
// GET /v2/shared/items/:code?token=T&depth=N
func (h *ItemHandler) GetSharedItem(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return badRequest(c, "token is required")
	}
	depth, err := queryInt(c, "depth", defaultDepth)
	if err != nil {
		return respondError(c, h.log, err)
	}

	item, err := h.items.GetItem(c.Request().Context(), c.Param("code"), depth, &token)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, item)
}

// MoveItem places an item inside another one
// POST /v2/items/:code/move {"parent": "CODE"}
func (h *ItemHandler) MoveItem(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	var req struct {
		Parent string `json:"parent"`
	}
	if err := decodeBody(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.Parent == "" {
		return badRequest(c, "parent is required")
	}

	code := c.Param("code")
	if err := h.items.MoveItem(c.Request().Context(), username, code, req.Parent); err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":   code,
		"parent": req.Parent,
	})
}

// DeleteItem deletes a leaf item
// DELETE /v2/items/:code
func (h *ItemHandler) DeleteItem(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	if err := h.items.DeleteItem(c.Request().Context(), username, c.Param("code")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LoseItem marks a leaf item as lost
// POST /v2/items/:code/lose
func (h *ItemHandler) LoseItem(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	if err := h.items.LoseItem(c.Request().Context(), username, c.Param("code")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RestoreItem undeletes an item
// POST /v2/items/:code/restore
func (h *ItemHandler) RestoreItem(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	if err := h.items.Undelete(c.Request().Context(), username, c.Param("code")); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// PatchFeatures merges a JSON merge patch into the item's features
// PATCH /v2/items/:code/features
func (h *ItemHandler) PatchFeatures(c echo.Context) error {
	username, err := middleware.RequireUsername(c)
	if err != nil {
		return err
	}

	patch, err := io.ReadAll(c.Request().Body)
	if err != nil || len(patch) == 0 {
		return badRequest(c, "a JSON merge patch body is required")
	}

	code := c.Param("code")
	features, err := h.items.PatchFeatures(c.Request().Context(), username, code, patch)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":     code,
		"features": features.Natives(),
	})
}

// History returns the audit log of an item
// GET /v2/items/:code/history?limit=N
func (h *ItemHandler) History(c echo.Context) error {
	limit, err := queryInt(c, "limit", defaultHistoryLimit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	code := c.Param("code")
	entries, err := h.items.History(c.Request().Context(), code, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    code,
		"history": entries,
	})
}

// VerifyClosure checks the closure table
// GET /v2/admin/closure
func (h *ItemHandler) VerifyClosure(c echo.Context) error {
	problems, err := h.items.VerifyClosure(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}

	if problems == nil {
		problems = []tree.Problem{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"consistent": len(problems) == 0,
		"problems":   problems,
	})
}
