package handlers

import (
	"path/filepath"
	"strings"

	"trendforge/internal/models"
	"trendforge/internal/service"

	"github.com/gin-gonic/gin"
)

type ExportHandler struct {
	service service.ExportService
}

func NewExportHandler(service service.ExportService) *ExportHandler {
	return &ExportHandler{service: service}
}

// Export serves GET /export?format=csv|xlsx&status=completed,finished as a download.
func (h *ExportHandler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")

	var statuses []models.Status
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := models.ParseStatus(part)
			if err != nil {
				failErr(c, err)
				return
			}
			statuses = append(statuses, status)
		}
	}

	path, err := h.service.Export(c.Request.Context(), format, statuses)
	if err != nil {
		failErr(c, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if strings.HasSuffix(path, ".xlsx") {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	c.Header("Content-Type", contentType)
	c.FileAttachment(path, filepath.Base(path))
}
