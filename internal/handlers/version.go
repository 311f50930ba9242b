package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lessonforge/lessonforge-backend/internal/middleware"
	"github.com/lessonforge/lessonforge-backend/internal/services"
)

type VersionHandler struct {
	svc services.VersionHistoryService
}

func NewVersionHandler(svc services.VersionHistoryService) *VersionHandler {
	return &VersionHandler{svc: svc}
}

// GET /api/documents/:type/:id/versions
func (h *VersionHandler) History(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	res := h.svc.GetVersionHistory(c.Request.Context(), services.HistoryQuery{
		DocumentID:   c.Param("id"),
		DocumentType: c.Param("type"),
		Limit:        limit,
		Offset:       offset,
	})
	c.JSON(http.StatusOK, res)
}

// GET /api/versions/:versionId
func (h *VersionHandler) Get(c *gin.Context) {
	version, err := h.svc.GetVersion(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		if errors.Is(err, services.ErrVersionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": version})
}

type restoreRequest struct {
	CreatedBy     string `json:"created_by"`
	CreatedByType string `json:"created_by_type"`
	CreatedByName string `json:"created_by_name"`
}

// POST /api/versions/:versionId/restore
func (h *VersionHandler) Restore(c *gin.Context) {
	var req restoreRequest
	_ = c.ShouldBindJSON(&req)

	attribution := services.Attribution{
		CreatedBy:     req.CreatedBy,
		CreatedByType: req.CreatedByType,
		CreatedByName: req.CreatedByName,
	}
	if attribution.CreatedBy == "" {
		attribution = middleware.ActorFromContext(c)
	}

	res := h.svc.RestoreVersion(c.Request.Context(), c.Param("versionId"), attribution)
	if !res.Success {
		c.JSON(http.StatusNotFound, gin.H{"error": res.Error})
		return
	}
	c.JSON(http.StatusOK, res)
}
