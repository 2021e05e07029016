package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"clipfarm/audio"
	"clipfarm/history"
	"clipfarm/production"
	"clipfarm/video"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FeedRefresher polls product feeds on demand.
type FeedRefresher interface {
	RunOnce(ctx context.Context) (int, error)
}

// Handler carries the dependencies of every route.
type Handler struct {
	productions *production.Service
	history     *history.History
	music       *audio.MusicLibrary
	feeds       FeedRefresher
	logger      *zap.Logger
}

// NewHandler wires the route handlers. feeds may be nil.
func NewHandler(productions *production.Service, hist *history.History, music *audio.MusicLibrary, feeds FeedRefresher, logger *zap.Logger) *Handler {
	return &Handler{
		productions: productions,
		history:     hist,
		music:       music,
		feeds:       feeds,
		logger:      logger,
	}
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(ginLogger(h.logger))
	r.Use(gin.Recovery())

	// Register resource routers
	RegisterHealthRoutes(r)
	RegisterProductionRoutes(r, h)
	RegisterHistoryRoutes(r, h)
	RegisterCatalogRoutes(r, h)
	RegisterFeedRoutes(r, h)
	return r
}

// Response is the envelope of every JSON answer.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// respondWithError sends an error response
func (h *Handler) respondWithError(c *gin.Context, statusCode int, message string, err error) {
	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
		h.logger.Warn("API error",
			zap.String("path", c.FullPath()),
			zap.Int("status", statusCode),
			zap.String("message", message),
			zap.Error(err))
	}

	c.JSON(statusCode, response)
}

// respondWithSuccess sends a success response
func respondWithSuccess(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, production.ErrNotFound),
		errors.Is(err, production.ErrNoArtifact),
		errors.Is(err, history.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, production.ErrSegmentIndex):
		return http.StatusBadRequest
	case errors.Is(err, production.ErrNoScript),
		errors.Is(err, production.ErrNoAudioTrack),
		errors.Is(err, production.ErrNoRender),
		errors.Is(err, video.ErrRenderBusy):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// ginLogger is a custom logger middleware.
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
