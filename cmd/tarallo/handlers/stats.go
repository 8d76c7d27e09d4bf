package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/logger"
)

// StatsAPI is what the stats handler needs from the stats service
type StatsAPI interface {
	LocationsByItems(ctx context.Context) ([]models.CountEntry, error)
	DuplicateSerials(ctx context.Context) ([]models.CountEntry, error)
	ModifiedItems(ctx context.Context, itemType string, f models.StatsFilter, recent bool, limit int) ([]models.ModifiedItem, error)
	CountByFeature(ctx context.Context, name string, m *models.FeatureMatch, f models.StatsFilter) ([]models.CountEntry, error)
	ItemsByFeature(ctx context.Context, m models.FeatureMatch, f models.StatsFilter, limit int) ([]string, error)
	ItemsWithoutFeature(ctx context.Context, m models.FeatureMatch, missing string, f models.StatsFilter, limit int) ([]string, error)
	RollupCountByFeature(ctx context.Context, m *models.FeatureMatch, names []string, f models.StatsFilter) ([]models.RollupRow, error)
}

// StatsHandler handles stats requests. Every endpoint accepts
// ?location=, ?created_after= and ?include_deleted= filters.
type StatsHandler struct {
	stats StatsAPI
	log   *logger.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(stats StatsAPI, log *logger.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, log: log}
}

// LocationsByItems
// GET /v2/stats/locations
func (h *StatsHandler) LocationsByItems(c echo.Context) error {
	out, err := h.stats.LocationsByItems(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"locations": out})
}

// DuplicateSerials
// GET /v2/stats/serials/duplicates
func (h *StatsHandler) DuplicateSerials(c echo.Context) error {
	out, err := h.stats.DuplicateSerials(c.Request().Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"serials": out})
}

// ModifiedItems
// GET /v2/stats/modified?type=case&recent=true&limit=N
func (h *StatsHandler) ModifiedItems(c echo.Context) error {
	f, err := statsFilter(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	recent, err := queryBool(c, "recent")
	if err != nil {
		return respondError(c, h.log, err)
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return respondError(c, h.log, err)
	}
	itemType := c.QueryParam("type")
	if itemType == "" {
		return badRequest(c, "type is required")
	}

	out, err := h.stats.ModifiedItems(c.Request().Context(), itemType, f, recent, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": out})
}

// CountByFeature
// GET /v2/stats/features/:name/count?match=type=hdd
func (h *StatsHandler) CountByFeature(c echo.Context) error {
	f, err := statsFilter(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	m, err := parseMatch(c.QueryParam("match"))
	if err != nil {
		return respondError(c, h.log, err)
	}

	name := c.Param("name")
	out, err := h.stats.CountByFeature(c.Request().Context(), name, m, f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"feature": name, "counts": out})
}

// ItemsByFeature
// GET /v2/stats/features/:name/items?value=V&limit=N
func (h *StatsHandler) ItemsByFeature(c echo.Context) error {
	f, err := statsFilter(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return respondError(c, h.log, err)
	}
	value := c.QueryParam("value")
	if value == "" {
		return badRequest(c, "value is required")
	}

	m := models.FeatureMatch{Name: c.Param("name"), Value: value}
	out, err := h.stats.ItemsByFeature(c.Request().Context(), m, f, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": out})
}

// ItemsWithoutFeature
// GET /v2/stats/features/:name/missing?match=type=hdd&limit=N
func (h *StatsHandler) ItemsWithoutFeature(c echo.Context) error {
	f, err := statsFilter(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return respondError(c, h.log, err)
	}
	m, err := parseMatch(c.QueryParam("match"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if m == nil {
		return badRequest(c, "match is required")
	}

	out, err := h.stats.ItemsWithoutFeature(c.Request().Context(), *m, c.Param("name"), f, limit)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": out})
}

// RollupCountByFeature
// GET /v2/stats/rollup?features=type,color&match=working=yes
func (h *StatsHandler) RollupCountByFeature(c echo.Context) error {
	f, err := statsFilter(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	m, err := parseMatch(c.QueryParam("match"))
	if err != nil {
		return respondError(c, h.log, err)
	}

	var names []string
	for _, name := range strings.Split(c.QueryParam("features"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	out, err := h.stats.RollupCountByFeature(c.Request().Context(), m, names, f)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"features": names, "rows": out})
}
