package production

import (
	"context"
	"fmt"

	"clipfarm/audio"
	"clipfarm/types"
	"clipfarm/video"

	"go.uber.org/zap"
)

// Request is a complete unattended production: generate, voice, render.
type Request struct {
	Params  types.GenerateParams   `json:"params"`
	Voice   types.Voice            `json:"voice,omitempty"`
	Mix     audio.MixConfiguration `json:"mix"`
	Publish bool                   `json:"publish,omitempty"`
}

// Publisher uploads a finished video somewhere public.
type Publisher interface {
	Publish(ctx context.Context, script *types.ProductScript, artifact *video.Artifact) (string, error)
}

// Result is the outcome of Run.
type Result struct {
	ID           string
	Artifact     *video.Artifact
	PublishedURL string
}

// Run drives one production through every stage and waits for the video.
// Scenes whose image failed render black rather than aborting the run.
func (s *Service) Run(ctx context.Context, req Request, publisher Publisher) (*Result, error) {
	id, err := s.Generate(ctx, req.Params)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("production_id", id))

	if p, err := s.Get(id); err == nil {
		if n := len(p.SegmentResults()); n > 0 {
			log.Warn("Continuing with missing scene images", zap.Int("missing", n))
		}
	}

	if err := s.ProduceAudio(ctx, id, req.Voice, req.Mix); err != nil {
		return &Result{ID: id}, err
	}

	rd, err := s.Render(ctx, id, video.ClockVirtual, true)
	if err != nil {
		return &Result{ID: id}, fmt.Errorf("render failed to start: %w", err)
	}
	artifact, err := rd.Wait(ctx)
	if err != nil {
		return &Result{ID: id}, fmt.Errorf("render failed: %w", err)
	}
	res := &Result{ID: id, Artifact: artifact}

	if req.Publish && publisher != nil {
		p, _ := s.Get(id)
		url, err := publisher.Publish(ctx, p.Script(), artifact)
		if err != nil {
			log.Error("Publish failed", zap.Error(err))
			p.AddLog("Publish failed: %v", err)
			return res, fmt.Errorf("publish failed: %w", err)
		}
		p.setPublishedURL(url)
		p.AddLog("Published to %s", url)
		res.PublishedURL = url
	}
	return res, nil
}
