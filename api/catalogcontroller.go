package api

import (
	"net/http"

	"clipfarm/types"

	"github.com/gin-gonic/gin"
)

// RegisterCatalogRoutes registers the voice and music catalogue endpoints.
func RegisterCatalogRoutes(r *gin.Engine, h *Handler) {
	r.GET("/api/voices", handleListVoices)
	r.GET("/api/music", h.handleListMusic)
}

func handleListVoices(c *gin.Context) {
	respondWithSuccess(c, http.StatusOK, "ok", types.AvailableVoices)
}

func (h *Handler) handleListMusic(c *gin.Context) {
	respondWithSuccess(c, http.StatusOK, "ok", h.music.Tracks())
}
