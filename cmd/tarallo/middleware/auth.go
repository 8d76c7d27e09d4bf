package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	commonmw "github.com/weeeopen/tarallo/common/middleware"
)

// UserHeader carries the identity set by the authenticating proxy
const UserHeader = "X-User-ID"

// ExtractUsername stores the X-User-ID header in the request context.
// Requests without it pass through anonymous.
//
// Accessing in handlers:
//
//	username := middleware.GetUsername(c)
func ExtractUsername() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if username := c.Request().Header.Get(UserHeader); username != "" {
				c.Set(commonmw.UsernameContextKey, username)
			}
			return next(c)
		}
	}
}

// ExtractUsernameStrict rejects requests without X-User-ID.
// Every /v2 route except shared item links uses it.
func ExtractUsernameStrict() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get(UserHeader)
			if username == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "X-User-ID header is required",
				})
			}

			c.Set(commonmw.UsernameContextKey, username)
			return next(c)
		}
	}
}

// GetUsername retrieves the username from the request context
// Returns empty string if not set
func GetUsername(c echo.Context) string {
	username, _ := c.Get(commonmw.UsernameContextKey).(string)
	return username
}

// RequireUsername ensures a username exists in context
// Returns an error response if not found
func RequireUsername(c echo.Context) (string, error) {
	username := GetUsername(c)
	if username == "" {
		err := c.JSON(http.StatusUnauthorized, map[string]interface{}{
			"error": "authentication required (X-User-ID header missing)",
		})
		if err == nil {
			err = echo.ErrUnauthorized
		}
		return "", err
	}
	return username, nil
}
