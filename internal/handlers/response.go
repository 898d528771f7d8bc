package handlers

import (
	"errors"
	"net/http"

	"trendforge/internal/clients"
	"trendforge/internal/models"
	"trendforge/internal/service"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every JSON endpoint returns.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: "success", Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Code: status, Message: message})
}

// failErr maps domain errors to HTTP status codes.
func failErr(c *gin.Context, err error) {
	fail(c, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrItemNotFound), errors.Is(err, service.ErrNothingToExport):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidForm),
		errors.Is(err, models.ErrInvalidStatus),
		errors.Is(err, models.ErrUnknownTarget),
		errors.Is(err, service.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrStaleTransition),
		errors.Is(err, models.ErrIllegalTransition),
		errors.Is(err, service.ErrIngestRunning):
		return http.StatusConflict
	case errors.Is(err, clients.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
