package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/weeeopen/tarallo/cmd/tarallo/models"
	"github.com/weeeopen/tarallo/common/logger"
)

// statusFor maps an error kind to its HTTP status
func statusFor(kind string) int {
	switch kind {
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindDuplicate:
		return http.StatusConflict
	case models.KindValidation, models.KindInvalidArgument, models.KindUnknownFeature,
		models.KindInvalidValue, models.KindUnsupportedOp:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes the JSON error body for err. Storage failures are
// logged and reported without detail.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	kind := models.ErrorKind(err)
	status := statusFor(kind)

	message := err.Error()
	if status == http.StatusInternalServerError {
		log.WithContext(c.Request().Context()).WithFields(map[string]any{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error("request failed", "error", err)
		message = "internal error"
	}

	return c.JSON(status, map[string]interface{}{
		"error":   kind,
		"message": message,
	})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"error":   models.KindInvalidArgument,
		"message": message,
	})
}
