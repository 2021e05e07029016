package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHistoryRoutes registers the production history endpoints.
func RegisterHistoryRoutes(r *gin.Engine, h *Handler) {
	g := r.Group("/api/history")
	g.GET("", h.handleListHistory)
	g.DELETE("", h.handleClearHistory)
	g.POST("/:id/restore", h.handleRestoreHistory)
}

func (h *Handler) handleListHistory(c *gin.Context) {
	entries, err := h.history.Load(c.Request.Context())
	if err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "History unavailable", err)
		return
	}
	respondWithSuccess(c, http.StatusOK, "ok", entries)
}

func (h *Handler) handleClearHistory(c *gin.Context) {
	if err := h.history.Clear(c.Request.Context()); err != nil {
		h.respondWithError(c, http.StatusInternalServerError, "History not cleared", err)
		return
	}
	respondWithSuccess(c, http.StatusOK, "History cleared", nil)
}

// handleRestoreHistory reopens a saved script as a new production.
func (h *Handler) handleRestoreHistory(c *gin.Context) {
	id, err := h.productions.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondWithError(c, statusFor(err), "History entry not restored", err)
		return
	}
	respondWithSuccess(c, http.StatusCreated, "Production restored", gin.H{"id": id})
}
