package controllers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
)

const internalMessage = "Error interno del servidor"

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func respondMessage(c *gin.Context, status int, message string, data any) {
	body := gin.H{"success": true, "message": message}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// respondError writes err as {success:false, message, errors?, data?}.
// Errors that are not *apperr.Error are logged and hidden behind a 500.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind == apperr.KindInternal {
		logger.ErrorContext(c.Request.Context(), "Request failed", "path", c.FullPath(), logging.ErrAttr(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "message": internalMessage})
		return
	}
	body := gin.H{"success": false, "message": ae.Message}
	if len(ae.Details) > 0 {
		body["errors"] = ae.Details
	}
	if ae.Data != nil {
		body["data"] = ae.Data
	}
	c.AbortWithStatusJSON(ae.Status(), body)
}
