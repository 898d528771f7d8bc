package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"trendforge/internal/service"

	"github.com/gin-gonic/gin"
)

type IngestHandler struct {
	service service.IngestService
}

func NewIngestHandler(service service.IngestService) *IngestHandler {
	return &IngestHandler{service: service}
}

type ingestRequest struct {
	Sources []string `json:"sources"`
}

// Trigger runs one ingestion synchronously. An empty body uses the configured sources.
func (h *IngestHandler) Trigger(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.service.Ingest(c.Request.Context(), req.Sources)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, report)
}

func (h *IngestHandler) Runs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.service.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, runs)
}
