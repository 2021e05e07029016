package production

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"clipfarm/audio"
	"clipfarm/history"
	"clipfarm/studio"
	"clipfarm/types"
	"clipfarm/video"

	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned for an unknown production id
	ErrNotFound = errors.New("production not found")

	// ErrNoScript is returned when an operation needs a finished script
	ErrNoScript = errors.New("production has no script yet")

	// ErrNoAudioTrack is returned when rendering before audio was produced
	ErrNoAudioTrack = errors.New("production has no audio track")

	// ErrSegmentIndex is returned for a scene index outside the script
	ErrSegmentIndex = errors.New("segment index out of range")

	// ErrNoArtifact is returned when no finished video exists
	ErrNoArtifact = errors.New("production has no finished video")

	// ErrNoRender is returned when cancelling with no render in progress
	ErrNoRender = errors.New("production has no render in progress")
)

// AudioProducer turns narration into the final soundtrack.
type AudioProducer interface {
	Produce(ctx context.Context, narration *audio.AudioBuffer, cfg audio.MixConfiguration) (*audio.AudioBuffer, error)
}

// ImageFetcher downloads a reference image by URL.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (*types.InlineImage, error)
}

// ArtifactStore publishes a finished video and returns where it lives.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Dependencies are the collaborators a Service drives. Heroes, History and
// Artifacts are optional.
type Dependencies struct {
	Scripts    studio.ScriptGenerator
	Images     studio.ImageGenerator
	Speech     studio.SpeechSynthesizer
	Heroes     ImageFetcher
	Mixer      AudioProducer
	History    *history.History
	Compositor *video.Compositor
	Encoders   video.EncoderFactory
	Artifacts  ArtifactStore
}

// Service runs productions: script, scene images, narration mix, video.
type Service struct {
	deps   Dependencies
	logger *zap.Logger

	mu          sync.RWMutex
	productions map[string]*Production
}

func NewService(deps Dependencies, logger *zap.Logger) *Service {
	return &Service{
		deps:        deps,
		logger:      logger,
		productions: make(map[string]*Production),
	}
}

func (s *Service) create(params types.GenerateParams) *Production {
	p := newProduction(history.NewID(), params)
	s.mu.Lock()
	s.productions[p.ID] = p
	s.mu.Unlock()
	p.AddLog("Production created for %s", params.URL)
	return p
}

// Get returns the production with the given id.
func (s *Service) Get(id string) (*Production, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.productions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// List returns snapshots of every production, newest first.
func (s *Service) List() []Snapshot {
	s.mu.RLock()
	all := make([]*Production, 0, len(s.productions))
	for _, p := range s.productions {
		all = append(all, p)
	}
	s.mu.RUnlock()

	out := make([]Snapshot, len(all))
	for i, p := range all {
		out[i] = p.Snapshot()
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Status returns a snapshot of one production.
func (s *Service) Status(id string) (Snapshot, error) {
	p, err := s.Get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return p.Snapshot(), nil
}

// Generate runs the script and image pass synchronously and returns the
// production id. The id is returned even when generation fails so the
// failure can be inspected.
func (s *Service) Generate(ctx context.Context, params types.GenerateParams) (string, error) {
	params, err := params.Normalize()
	if err != nil {
		return "", err
	}
	p := s.create(params)
	return p.ID, s.generate(ctx, p)
}

// Submit starts generation in the background and returns the production id.
func (s *Service) Submit(ctx context.Context, params types.GenerateParams) (string, error) {
	params, err := params.Normalize()
	if err != nil {
		return "", err
	}
	p := s.create(params)
	go func() {
		_ = s.generate(context.WithoutCancel(ctx), p)
	}()
	return p.ID, nil
}

func (s *Service) generate(ctx context.Context, p *Production) error {
	log := s.logger.With(zap.String("production_id", p.ID))
	params := p.Params()

	p.SetStage(StageScripting)
	p.AddLog("Analyzing product page")
	script, err := s.deps.Scripts.GenerateScript(ctx, params)
	if err != nil {
		err = fmt.Errorf("script generation failed: %w", err)
		log.Error("Script generation failed", zap.Error(err))
		p.Fail(err, StageFailed)
		return err
	}
	p.setScript(script)
	p.AddLog("Script ready: %q with %d segments", script.Title, len(script.Segments))
	log.Info("Script generated", zap.String("title", script.Title), zap.Int("segments", len(script.Segments)))

	ref := params.ProductImage
	if ref.Empty() && script.HeroImageURL != "" && s.deps.Heroes != nil {
		hero, err := s.deps.Heroes.FetchImage(ctx, script.HeroImageURL)
		if err != nil {
			log.Warn("Hero image unavailable", zap.String("url", script.HeroImageURL), zap.Error(err))
			p.AddLog("Hero image unavailable: %v", err)
		} else {
			ref = hero
		}
	}
	p.setHero(ref)

	p.SetStage(StageImaging)
	for i, seg := range script.Segments {
		if err := ctx.Err(); err != nil {
			p.Fail(err, StageFailed)
			return err
		}
		img, err := s.deps.Images.GenerateImage(ctx, seg.ImagePrompt, script.VisualSpecs, ref)
		if err != nil {
			log.Warn("Segment visual failed", zap.Int("segment", i), zap.Error(err))
			p.setSegmentFailed(i, err)
			p.AddLog("Segment %d visual failed: %v", i+1, err)
			continue
		}
		p.setSegmentImage(i, img)
		p.AddLog("Segment %d/%d visual ready", i+1, len(script.Segments))
	}

	s.saveHistory(ctx, p)
	p.SetStage(StageReady)
	return nil
}

// saveHistory persists the production. Failures are logged, never returned.
func (s *Service) saveHistory(ctx context.Context, p *Production) {
	if s.deps.History == nil {
		return
	}
	script := p.Script()
	if script == nil {
		return
	}
	entry := types.SavedScript{
		ID:        p.ID,
		Timestamp: p.CreatedAt.UnixMilli(),
		Params:    p.Params(),
		Script:    *script,
	}
	if _, err := s.deps.History.Add(ctx, entry); err != nil {
		s.logger.Warn("Failed to save history", zap.String("production_id", p.ID), zap.Error(err))
	}
}

// Restore reopens a history entry as a new production ready for edits.
// Images are not persisted in history, so every scene starts without one.
func (s *Service) Restore(ctx context.Context, historyID string) (string, error) {
	if s.deps.History == nil {
		return "", ErrNotFound
	}
	entry, err := s.deps.History.Get(ctx, historyID)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	p := newProduction(history.NewID(), entry.Params)
	script := entry.Script
	p.setScript(&script)
	p.SetStage(StageReady)
	p.AddLog("Restored from history entry %s", historyID)

	s.mu.Lock()
	s.productions[p.ID] = p
	s.mu.Unlock()
	return p.ID, nil
}

func (s *Service) scriptOf(id string) (*Production, *types.ProductScript, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, nil, err
	}
	script := p.Script()
	if script == nil {
		return nil, nil, ErrNoScript
	}
	return p, script, nil
}

// UpdateDialogue replaces one scene's narration line. An existing mix no
// longer matches the script and is discarded.
func (s *Service) UpdateDialogue(id string, index int, dialogue string) error {
	p, script, err := s.scriptOf(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(script.Segments) {
		return ErrSegmentIndex
	}
	dialogue = strings.TrimSpace(dialogue)
	if dialogue == "" {
		return fmt.Errorf("dialogue cannot be empty")
	}

	p.mu.Lock()
	p.script.Segments[index].Dialogue = dialogue
	p.mu.Unlock()

	if p.invalidateAudio() {
		p.AddLog("Segment %d dialogue changed, audio must be produced again", index+1)
	} else {
		p.AddLog("Segment %d dialogue updated", index+1)
	}
	p.SetStage(StageReady)
	return nil
}

// RegenerateImage renders one scene again, with a new prompt when given.
func (s *Service) RegenerateImage(ctx context.Context, id string, index int, prompt string) (*types.InlineImage, error) {
	p, script, err := s.scriptOf(id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(script.Segments) {
		return nil, ErrSegmentIndex
	}
	if prompt = strings.TrimSpace(prompt); prompt == "" {
		prompt = script.Segments[index].ImagePrompt
	}

	img, err := s.deps.Images.GenerateImage(ctx, prompt, script.VisualSpecs, p.Hero())
	if err != nil {
		s.logger.Warn("Segment visual failed", zap.String("production_id", id), zap.Int("segment", index), zap.Error(err))
		p.setSegmentFailed(index, err)
		p.AddLog("Segment %d visual failed: %v", index+1, err)
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	p.mu.Lock()
	p.script.Segments[index].ImagePrompt = prompt
	p.mu.Unlock()
	p.setSegmentImage(index, img)
	p.AddLog("Segment %d visual regenerated", index+1)
	return img, nil
}

// SegmentImage returns the current image of one scene.
func (s *Service) SegmentImage(id string, index int) (*types.InlineImage, error) {
	_, script, err := s.scriptOf(id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(script.Segments) {
		return nil, ErrSegmentIndex
	}
	img := script.Segments[index].Image
	if img.Empty() {
		return nil, ErrNotFound
	}
	return img, nil
}

// ProduceAudio synthesizes the whole narration in one speech call and mixes
// it with the configured background track.
func (s *Service) ProduceAudio(ctx context.Context, id string, voice types.Voice, mix audio.MixConfiguration) error {
	p, script, err := s.scriptOf(id)
	if err != nil {
		return err
	}
	if voice == "" {
		voice = types.DefaultVoice
	}

	p.SetStage(StageVoicing)
	if narration := p.cachedNarration(voice); narration != nil {
		p.AddLog("Reusing narration with voice %s", voice)
		return s.mixNarration(ctx, p, narration, voice, mix)
	}
	p.AddLog("Synthesizing narration with voice %s", voice)
	narration, err := s.deps.Speech.Synthesize(ctx, script.Narration(), voice)
	if err != nil {
		err = fmt.Errorf("speech synthesis failed: %w", err)
		s.logger.Error("Speech synthesis failed", zap.String("production_id", id), zap.Error(err))
		p.Fail(err, StageReady)
		return err
	}
	return s.mixNarration(ctx, p, narration, voice, mix)
}

// MixNarration uses caller supplied narration instead of synthesizing it.
func (s *Service) MixNarration(ctx context.Context, id string, narration *audio.AudioBuffer, mix audio.MixConfiguration) error {
	p, _, err := s.scriptOf(id)
	if err != nil {
		return err
	}
	p.SetStage(StageVoicing)
	return s.mixNarration(ctx, p, narration, "", mix)
}

func (s *Service) mixNarration(ctx context.Context, p *Production, narration *audio.AudioBuffer, voice types.Voice, mix audio.MixConfiguration) error {
	mix = mix.Normalize()
	if mix.MoodHint == "" {
		if script := p.Script(); script != nil {
			mix.MoodHint = script.Title + ". " + script.Description
		}
	}

	mixed, err := s.deps.Mixer.Produce(ctx, narration, mix)
	if err != nil {
		err = fmt.Errorf("audio mix failed: %w", err)
		s.logger.Error("Audio mix failed", zap.String("production_id", p.ID), zap.Error(err))
		p.Fail(err, StageReady)
		return err
	}
	wav, err := audio.EncodeWAV(mixed)
	if err != nil {
		err = fmt.Errorf("audio encode failed: %w", err)
		p.Fail(err, StageReady)
		return err
	}

	p.setAudio(narration, wav, mixed.Seconds(), voice, mix)
	p.clearError()
	p.SetStage(StageReady)
	p.AddLog("Audio ready: %.1fs, track %s", mixed.Seconds(), mix.BackgroundTrackID)
	s.logger.Info("Audio produced",
		zap.String("production_id", p.ID),
		zap.Float64("seconds", mixed.Seconds()),
		zap.String("track", mix.BackgroundTrackID))
	return nil
}

// Render starts a video render of the current scenes and mix. With force a
// render already running for this production is superseded; otherwise
// video.ErrRenderBusy is returned. A previous artifact is discarded.
func (s *Service) Render(ctx context.Context, id string, clock video.ClockMode, force bool) (*video.Render, error) {
	p, script, err := s.scriptOf(id)
	if err != nil {
		return nil, err
	}
	wav := p.AudioWAV()
	if wav == nil {
		return nil, ErrNoAudioTrack
	}

	images := make([][]byte, len(script.Segments))
	for i, seg := range script.Segments {
		if !seg.Image.Empty() {
			images[i] = seg.Image.Data
		}
	}
	job := video.RenderJob{Title: script.Title, Images: images, AudioWAV: wav, Clock: clock}

	renderer := p.rendererFor(func() *video.Renderer {
		return video.NewRenderer(s.deps.Compositor, s.deps.Encoders, s.logger.With(zap.String("production_id", id)))
	})
	start := renderer.TryStart
	if force {
		start = renderer.Start
	}
	rd, err := start(ctx, job)
	if err != nil {
		return nil, err
	}

	p.startRender(rd)
	p.AddLog("Rendering %d scenes over %.1fs", len(images), p.Snapshot().AudioSeconds)
	go s.finishRender(context.WithoutCancel(ctx), p, rd, script)
	return rd, nil
}

// CancelRender stops the render in progress. The production returns to
// ready with no video.
func (s *Service) CancelRender(id string) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	renderer, rd := p.detachRender()
	if rd == nil {
		return ErrNoRender
	}
	renderer.Cancel()
	p.AddLog("Render %s cancelled", rd.ID())
	p.SetStage(StageReady)
	s.logger.Info("Render cancelled", zap.String("production_id", id), zap.String("render_id", rd.ID()))
	return nil
}

func (s *Service) finishRender(ctx context.Context, p *Production, rd *video.Render, script *types.ProductScript) {
	artifact, err := rd.Wait(ctx)
	if !p.currentRender(rd) {
		return
	}
	if err != nil {
		if errors.Is(err, video.ErrSuperseded) {
			return
		}
		s.logger.Error("Render failed", zap.String("production_id", p.ID), zap.Error(err))
		p.Fail(fmt.Errorf("render failed: %w", err), StageReady)
		return
	}
	p.setArtifact(artifact)

	if s.deps.Artifacts == nil {
		return
	}
	key := p.ID + "/" + artifact.FileName
	putCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	url, err := s.deps.Artifacts.Put(putCtx, key, artifact.Data, artifact.ContentType)
	if err != nil {
		s.logger.Warn("Failed to publish artifact", zap.String("production_id", p.ID), zap.Error(err))
		p.AddLog("Artifact upload failed: %v", err)
		return
	}
	p.setVideoURL(url)
	p.AddLog("Artifact stored at %s", url)
	s.logger.Info("Artifact stored", zap.String("production_id", p.ID), zap.String("url", url), zap.String("title", script.Title))
}

// Artifact returns the finished video of a production.
func (s *Service) Artifact(id string) (*video.Artifact, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	a := p.Artifact()
	if a == nil {
		return nil, ErrNoArtifact
	}
	return a, nil
}

// AudioWAV returns the final narration mix of a production.
func (s *Service) AudioWAV(id string) ([]byte, error) {
	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	wav := p.AudioWAV()
	if wav == nil {
		return nil, ErrNoAudioTrack
	}
	return wav, nil
}
