package handlers

import (
	"net/http"
	"strconv"

	"trendforge/internal/models"
	"trendforge/internal/service"

	"github.com/gin-gonic/gin"
)

type ItemHandler struct {
	service service.CurationService
}

func NewItemHandler(service service.CurationService) *ItemHandler {
	return &ItemHandler{service: service}
}

type idRequest struct {
	ID string `json:"id" binding:"required"`
}

type idsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type formRequest struct {
	ID   string                `json:"id" binding:"required"`
	Form models.GenerationForm `json:"form"`
}

// ListItems serves GET /items. The status filter defaults to New; "all" lifts it.
func (h *ItemHandler) ListItems(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	filter := models.ItemFilter{Source: c.Query("source")}
	if raw := c.DefaultQuery("status", "0"); raw != "all" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			failErr(c, err)
			return
		}
		filter.Status = &status
	}

	result, err := h.service.ListItems(c.Request.Context(), filter, page, size)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, result)
}

func (h *ItemHandler) GetCreationInfo(c *gin.Context) {
	info, err := h.service.GetCreationInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, info)
}

func (h *ItemHandler) GetGenerateForm(c *gin.Context) {
	form, err := h.service.GetGenerateForm(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, form)
}

func (h *ItemHandler) SubmitForm(c *gin.Context) {
	var req formRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.SubmitForm(c.Request.Context(), req.ID, req.Form); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"id": req.ID, "status": models.StatusQueuedForGeneration})
}

func (h *ItemHandler) CancelGeneration(c *gin.Context) {
	var req idRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.service.CancelGeneration(c.Request.Context(), req.ID); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"id": req.ID, "status": models.StatusNew})
}

func (h *ItemHandler) BatchFinish(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.service.FinishMany(c.Request.Context(), req.IDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"updated": n})
}

func (h *ItemHandler) BatchDelete(c *gin.Context) {
	var req idsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	n, err := h.service.DeleteMany(c.Request.Context(), req.IDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"updated": n})
}

func (h *ItemHandler) Purge(c *gin.Context) {
	if err := h.service.Purge(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, gin.H{"id": c.Param("id")})
}
