package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterFeedRoutes registers product feed endpoints.
func RegisterFeedRoutes(r *gin.Engine, h *Handler) {
	g := r.Group("/api/feeds")
	g.POST("/refresh", h.handleFeedRefresh)
}

// handleFeedRefresh polls the configured product feeds and queues new
// products. It runs asynchronously and returns 202 Accepted immediately.
func (h *Handler) handleFeedRefresh(c *gin.Context) {
	if h.feeds == nil {
		h.respondWithError(c, http.StatusServiceUnavailable, "No product feeds configured", errors.New("FEED_URLS is empty"))
		return
	}
	go func() {
		n, err := h.feeds.RunOnce(context.Background())
		if err != nil {
			h.logger.Error("Feed refresh failed", zap.Error(err))
			return
		}
		h.logger.Info("Feed refresh complete", zap.Int("queued", n))
	}()
	respondWithSuccess(c, http.StatusAccepted, "Refresh started", nil)
}
