package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/common/logger"
	"github.com/weeeopen/tarallo/common/telemetry"
)

// RequestContext copies the request id set by echo's RequestID middleware
// into the request context, where logger.WithContext finds it
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(context.WithValue(req.Context(), logger.RequestIDKey, id)))
			}
			return next(c)
		}
	}
}

// Metrics counts requests by method, route template and status
func Metrics(tel *telemetry.Telemetry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) && !c.Response().Committed {
				status = he.Code
			} else if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
			}

			tel.RecordRequest(c.Request().Method, c.Path(), status)
			return err
		}
	}
}
