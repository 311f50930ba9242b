package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lessonforge/lessonforge-backend/internal/middleware"
	"github.com/lessonforge/lessonforge-backend/internal/services"
)

type SessionHandler struct {
	mgr *services.SessionManager
}

func NewSessionHandler(mgr *services.SessionManager) *SessionHandler {
	return &SessionHandler{mgr: mgr}
}

type openSessionRequest struct {
	Content     string `json:"content"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	ContentType string `json:"content_type"`
}

// POST /api/documents/:type/:id/session
func (h *SessionHandler) Open(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session := h.mgr.Open(c.Param("type"), c.Param("id"), req.Content, services.EditSessionOptions{
		Title:       req.Title,
		Category:    req.Category,
		ContentType: req.ContentType,
		Attribution: middleware.ActorFromContext(c),
	})
	c.JSON(http.StatusOK, session.Snapshot())
}

// GET /api/documents/:type/:id/session
func (h *SessionHandler) Status(c *gin.Context) {
	session, ok := h.mgr.Get(c.Param("type"), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session for document"})
		return
	}
	c.JSON(http.StatusOK, session.Snapshot())
}

// DELETE /api/documents/:type/:id/session
func (h *SessionHandler) Close(c *gin.Context) {
	if !h.mgr.Close(c.Param("type"), c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session for document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

type pushContentRequest struct {
	Content string `json:"content"`
}

// POST /api/documents/:type/:id/content
func (h *SessionHandler) PushContent(c *gin.Context) {
	session, ok := h.mgr.Get(c.Param("type"), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session for document"})
		return
	}

	var req pushContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session.PushContent(req.Content)
	c.JSON(http.StatusAccepted, session.Snapshot())
}

type manualSaveRequest struct {
	Description string `json:"description"`
}

// POST /api/documents/:type/:id/save
func (h *SessionHandler) ManualSave(c *gin.Context) {
	session, ok := h.mgr.Get(c.Param("type"), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session for document"})
		return
	}

	var req manualSaveRequest
	_ = c.ShouldBindJSON(&req)

	res := session.SaveManualVersion(c.Request.Context(), req.Description)
	if !res.Success {
		c.JSON(http.StatusBadRequest, gin.H{"error": res.Error})
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /api/documents/:type/:id/session/load-more
func (h *SessionHandler) LoadMore(c *gin.Context) {
	session, ok := h.mgr.Get(c.Param("type"), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session for document"})
		return
	}
	session.LoadMore(c.Request.Context())
	c.JSON(http.StatusOK, session.Snapshot())
}

// POST /api/documents/:type/:id/session/refresh
func (h *SessionHandler) Refresh(c *gin.Context) {
	session, ok := h.mgr.Get(c.Param("type"), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session for document"})
		return
	}
	session.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, session.Snapshot())
}
