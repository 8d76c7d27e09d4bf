package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
)

// decodeBody decodes a JSON body keeping numbers exact, so large integer
// features are not rounded through float64
func decodeBody(c echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &models.InvalidArgumentError{Argument: name, Reason: "not an integer"}
	}
	return n, nil
}

func queryBool(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &models.InvalidArgumentError{Argument: name, Reason: "not a boolean"}
	}
	return b, nil
}

func queryString(c echo.Context, name string) *string {
	if raw := c.QueryParam(name); raw != "" {
		return &raw
	}
	return nil
}

func paramID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &models.InvalidArgumentError{Argument: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

// statsFilter reads ?location=, ?created_after= (RFC 3339) and ?include_deleted=
func statsFilter(c echo.Context) (models.StatsFilter, error) {
	f := models.StatsFilter{Location: queryString(c, "location")}

	if raw := c.QueryParam("created_after"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, &models.InvalidArgumentError{Argument: "created_after", Reason: "expected an RFC 3339 time"}
		}
		f.CreatedAfter = &t
	}

	includeDeleted, err := queryBool(c, "include_deleted")
	if err != nil {
		return f, err
	}
	f.IncludeDeleted = includeDeleted
	return f, nil
}

// parseMatch reads "name=value"
func parseMatch(raw string) (*models.FeatureMatch, error) {
	if raw == "" {
		return nil, nil
	}
	name, value, ok := strings.Cut(raw, "=")
	if !ok || name == "" || value == "" {
		return nil, &models.InvalidArgumentError{Argument: "match", Reason: "expected name=value"}
	}
	return &models.FeatureMatch{Name: name, Value: value}, nil
}
