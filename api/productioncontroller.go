package api

import (
	"fmt"
	"net/http"
	"strconv"

	"clipfarm/audio"
	"clipfarm/config"
	"clipfarm/types"
	"clipfarm/video"

	"github.com/gin-gonic/gin"
)

// RegisterProductionRoutes registers the production pipeline endpoints.
func RegisterProductionRoutes(r *gin.Engine, h *Handler) {
	g := r.Group("/api/productions")
	g.POST("", h.handleCreateProduction)
	g.GET("", h.handleListProductions)
	g.GET("/:id", h.handleGetProduction)
	g.PATCH("/:id/segments/:idx", h.handleUpdateSegment)
	g.POST("/:id/segments/:idx/image", h.handleRegenerateImage)
	g.GET("/:id/segments/:idx/image", h.handleGetSegmentImage)
	g.POST("/:id/audio", h.handleProduceAudio)
	g.GET("/:id/audio.wav", h.handleGetAudio)
	g.POST("/:id/render", h.handleRender)
	g.DELETE("/:id/render", h.handleCancelRender)
	g.GET("/:id/video", h.handleGetVideo)
}

// CreateProductionRequest starts a production. ProductImage is a data URL.
type CreateProductionRequest struct {
	URL             string `json:"url" binding:"required"`
	DurationSeconds int    `json:"durationSeconds"`
	Tone            string `json:"tone"`
	ProductImage    string `json:"productImage"`
}

type UpdateSegmentRequest struct {
	Dialogue string `json:"dialogue" binding:"required"`
}

type RegenerateImageRequest struct {
	Prompt string `json:"prompt"`
}

// ProduceAudioRequest configures narration. NarrationPCM optionally carries
// base64 s16le 24 kHz mono speech that replaces synthesis.
type ProduceAudioRequest struct {
	Voice             string   `json:"voice"`
	BackgroundTrackID string   `json:"backgroundTrackId"`
	BackgroundGain    *float64 `json:"backgroundGain"`
	MoodHint          string   `json:"moodHint"`
	NarrationPCM      string   `json:"narrationPcm"`
}

type RenderRequest struct {
	Clock string `json:"clock"`
	// Force supersedes a render already running for the production
	Force bool `json:"force"`
}

func (h *Handler) handleCreateProduction(c *gin.Context) {
	var req CreateProductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}

	params := types.GenerateParams{
		URL:             req.URL,
		DurationSeconds: req.DurationSeconds,
		Tone:            types.Tone(req.Tone),
	}
	if params.Tone != "" && !params.Tone.Valid() {
		h.respondWithError(c, http.StatusBadRequest, "Unknown tone", fmt.Errorf("tone %q", req.Tone))
		return
	}
	if req.ProductImage != "" {
		img, err := types.ParseDataURL(req.ProductImage)
		if err != nil {
			h.respondWithError(c, http.StatusBadRequest, "Invalid product image", err)
			return
		}
		params.ProductImage = img
	}

	id, err := h.productions.Submit(c.Request.Context(), params)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid production request", err)
		return
	}
	respondWithSuccess(c, http.StatusAccepted, "Production started", gin.H{"id": id})
}

func (h *Handler) handleListProductions(c *gin.Context) {
	respondWithSuccess(c, http.StatusOK, "ok", h.productions.List())
}

func (h *Handler) handleGetProduction(c *gin.Context) {
	snap, err := h.productions.Status(c.Param("id"))
	if err != nil {
		h.respondWithError(c, statusFor(err), "Production unavailable", err)
		return
	}
	respondWithSuccess(c, http.StatusOK, "ok", snap)
}

func segmentIndex(c *gin.Context) (int, error) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil {
		return 0, fmt.Errorf("segment index %q is not a number", c.Param("idx"))
	}
	return idx, nil
}

func (h *Handler) handleUpdateSegment(c *gin.Context) {
	idx, err := segmentIndex(c)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid segment", err)
		return
	}
	var req UpdateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}
	if err := h.productions.UpdateDialogue(c.Param("id"), idx, req.Dialogue); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		h.respondWithError(c, status, "Dialogue not updated", err)
		return
	}
	snap, _ := h.productions.Status(c.Param("id"))
	respondWithSuccess(c, http.StatusOK, "Dialogue updated", snap)
}

func (h *Handler) handleRegenerateImage(c *gin.Context) {
	idx, err := segmentIndex(c)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid segment", err)
		return
	}
	var req RegenerateImageRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondWithError(c, http.StatusBadRequest, "Invalid JSON payload", err)
			return
		}
	}
	img, err := h.productions.RegenerateImage(c.Request.Context(), c.Param("id"), idx, req.Prompt)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		h.respondWithError(c, status, "Image generation failed", err)
		return
	}
	respondWithSuccess(c, http.StatusOK, "Image regenerated", gin.H{"image": img.DataURL()})
}

func (h *Handler) handleGetSegmentImage(c *gin.Context) {
	idx, err := segmentIndex(c)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid segment", err)
		return
	}
	img, err := h.productions.SegmentImage(c.Param("id"), idx)
	if err != nil {
		h.respondWithError(c, statusFor(err), "Image unavailable", err)
		return
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	c.Data(http.StatusOK, mime, img.Data)
}

func (h *Handler) handleProduceAudio(c *gin.Context) {
	var req ProduceAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid JSON payload", err)
		return
	}
	voice, err := types.ParseVoice(req.Voice)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Unknown voice", err)
		return
	}

	mix := audio.DefaultMixConfiguration()
	if req.BackgroundTrackID != "" {
		if req.BackgroundTrackID != audio.TrackAuto {
			if _, err := h.music.Lookup(req.BackgroundTrackID); err != nil {
				h.respondWithError(c, http.StatusBadRequest, "Unknown background track", err)
				return
			}
		}
		mix.BackgroundTrackID = req.BackgroundTrackID
	}
	if req.BackgroundGain != nil {
		mix.BackgroundGain = *req.BackgroundGain
	}
	mix.MoodHint = req.MoodHint

	id := c.Param("id")
	if req.NarrationPCM != "" {
		narration, derr := audio.DecodeBase64PCM(req.NarrationPCM, config.NarrationSampleRate, config.NarrationChannels)
		if derr != nil {
			h.respondWithError(c, http.StatusBadRequest, "Invalid narration payload", derr)
			return
		}
		err = h.productions.MixNarration(c.Request.Context(), id, narration, mix)
	} else {
		err = h.productions.ProduceAudio(c.Request.Context(), id, voice, mix)
	}
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		h.respondWithError(c, status, "Audio production failed", err)
		return
	}

	snap, _ := h.productions.Status(id)
	respondWithSuccess(c, http.StatusOK, "Audio ready", snap)
}

func (h *Handler) handleGetAudio(c *gin.Context) {
	wav, err := h.productions.AudioWAV(c.Param("id"))
	if err != nil {
		h.respondWithError(c, statusFor(err), "Audio unavailable", err)
		return
	}
	c.Data(http.StatusOK, "audio/wav", wav)
}

func (h *Handler) handleRender(c *gin.Context) {
	var req RenderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.respondWithError(c, http.StatusBadRequest, "Invalid JSON payload", err)
			return
		}
	}
	mode, err := video.ParseClockMode(req.Clock)
	if err != nil {
		h.respondWithError(c, http.StatusBadRequest, "Invalid clock", err)
		return
	}

	rd, err := h.productions.Render(c.Request.Context(), c.Param("id"), mode, req.Force)
	if err != nil {
		h.respondWithError(c, statusFor(err), "Render not started", err)
		return
	}
	respondWithSuccess(c, http.StatusAccepted, "Render started", rd.Status())
}

func (h *Handler) handleCancelRender(c *gin.Context) {
	id := c.Param("id")
	if err := h.productions.CancelRender(id); err != nil {
		h.respondWithError(c, statusFor(err), "Render not cancelled", err)
		return
	}
	snap, _ := h.productions.Status(id)
	respondWithSuccess(c, http.StatusOK, "Render cancelled", snap)
}

func (h *Handler) handleGetVideo(c *gin.Context) {
	artifact, err := h.productions.Artifact(c.Param("id"))
	if err != nil {
		h.respondWithError(c, statusFor(err), "Video unavailable", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.FileName))
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}
