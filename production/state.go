package production

import (
	"fmt"
	"sync"
	"time"

	"clipfarm/audio"
	"clipfarm/config"
	"clipfarm/types"
	"clipfarm/video"
)

// Stage is where a production is in the pipeline
type Stage string

const (
	StageScripting Stage = "scripting"
	StageImaging   Stage = "imaging"
	StageReady     Stage = "ready"
	StageVoicing   Stage = "voicing"
	StageRendering Stage = "rendering"
	StageComplete  Stage = "complete"
	StageFailed    Stage = "failed"
)

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// SegmentResult records a scene whose image could not be produced
type SegmentResult struct {
	Index int    `json:"index"`
	Err   string `json:"error"`
}

type SegmentStatus struct {
	Index    int    `json:"index"`
	HasImage bool   `json:"hasImage"`
	Error    string `json:"error,omitempty"`
}

// Snapshot is a point-in-time copy of a production, without binary payloads.
type Snapshot struct {
	ID           string                 `json:"id"`
	Stage        Stage                  `json:"stage"`
	CreatedAt    time.Time              `json:"createdAt"`
	Params       types.GenerateParams   `json:"params"`
	Script       *types.ProductScript   `json:"script,omitempty"`
	Segments     []SegmentStatus        `json:"segments"`
	HasHero      bool                   `json:"hasHeroImage"`
	Voice        types.Voice            `json:"voice,omitempty"`
	Mix          audio.MixConfiguration `json:"mix"`
	HasAudio     bool                   `json:"hasAudio"`
	AudioSeconds float64                `json:"audioSeconds"`
	Render       *video.Status          `json:"render,omitempty"`
	VideoURL     string                 `json:"videoUrl,omitempty"`
	PublishedURL string                 `json:"publishedUrl,omitempty"`
	Logs         []LogEntry             `json:"logs"`
	Error        string                 `json:"error,omitempty"`
}

// Production owns everything produced by one attempt: the script, its scene
// images, the narration mix and the rendered video. All access is
// thread-safe.
type Production struct {
	ID        string
	CreatedAt time.Time

	mu sync.RWMutex

	stage  Stage
	params types.GenerateParams
	script *types.ProductScript
	hero   *types.InlineImage
	failed map[int]string

	voice        types.Voice
	mix          audio.MixConfiguration
	narration    *audio.AudioBuffer
	audioWAV     []byte
	audioSeconds float64

	renderer     *video.Renderer
	render       *video.Render
	artifact     *video.Artifact
	videoURL     string
	publishedURL string

	// Logs (ring buffer)
	logs    []LogEntry
	maxLogs int
	lastErr error
}

func newProduction(id string, params types.GenerateParams) *Production {
	return &Production{
		ID:        id,
		CreatedAt: time.Now(),
		stage:     StageScripting,
		params:    params,
		failed:    make(map[int]string),
		mix:       audio.DefaultMixConfiguration(),
		logs:      make([]LogEntry, 0),
		maxLogs:   config.MaxLogEntries,
	}
}

// appendLog must be called with the lock held
func (p *Production) appendLog(message string) {
	p.logs = append(p.logs, LogEntry{Timestamp: time.Now(), Message: message})
	if len(p.logs) > p.maxLogs {
		p.logs = p.logs[len(p.logs)-p.maxLogs:]
	}
}

func (p *Production) AddLog(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendLog(fmt.Sprintf(format, args...))
}

func (p *Production) SetStage(stage Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
}

func (p *Production) Stage() Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stage
}

// Fail records err and moves to the given stage, which is where the user can
// pick up again.
func (p *Production) Fail(err error, next Stage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = next
	p.lastErr = err
	p.appendLog(fmt.Sprintf("Error: %v", err))
}

func (p *Production) clearError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = nil
}

func (p *Production) Params() types.GenerateParams {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.params
}

// Script returns a copy of the script including scene images.
func (p *Production) Script() *types.ProductScript {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.script.Clone()
}

func (p *Production) setScript(script *types.ProductScript) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.script = script
}

func (p *Production) Hero() *types.InlineImage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hero
}

func (p *Production) setHero(img *types.InlineImage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hero = img
}

func (p *Production) setSegmentImage(i int, img *types.InlineImage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.script == nil || i < 0 || i >= len(p.script.Segments) {
		return
	}
	p.script.Segments[i].Image = img
	delete(p.failed, i)
}

func (p *Production) setSegmentFailed(i int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[i] = err.Error()
}

// SegmentResults lists scenes whose image generation failed, in order.
func (p *Production) SegmentResults() []SegmentResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []SegmentResult
	if p.script == nil {
		return out
	}
	for i := range p.script.Segments {
		if msg, ok := p.failed[i]; ok {
			out = append(out, SegmentResult{Index: i, Err: msg})
		}
	}
	return out
}

func (p *Production) setAudio(narration *audio.AudioBuffer, wav []byte, seconds float64, voice types.Voice, mix audio.MixConfiguration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.narration = narration
	p.audioWAV = wav
	p.audioSeconds = seconds
	p.voice = voice
	p.mix = mix
}

// invalidateAudio drops the mix and video after a script edit. A render
// still running from the old mix is cancelled and its result ignored.
func (p *Production) invalidateAudio() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	had := p.audioWAV != nil
	p.narration = nil
	p.audioWAV = nil
	p.audioSeconds = 0
	p.artifact = nil
	p.videoURL = ""
	if p.render != nil {
		p.render = nil
		if p.renderer != nil {
			p.renderer.Cancel()
		}
	}
	return had
}

// AudioWAV returns the final mix, or nil before audio production.
func (p *Production) AudioWAV() []byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.audioWAV
}

// cachedNarration returns the synthesized narration when it was produced
// with voice and the script has not changed since.
func (p *Production) cachedNarration(voice types.Voice) *audio.AudioBuffer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.narration == nil || p.voice != voice {
		return nil
	}
	return p.narration
}

func (p *Production) rendererFor(create func() *video.Renderer) *video.Renderer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.renderer == nil {
		p.renderer = create()
	}
	return p.renderer
}

func (p *Production) startRender(rd *video.Render) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render = rd
	p.artifact = nil
	p.videoURL = ""
	p.lastErr = nil
	p.stage = StageRendering
}

// detachRender forgets a render that is still running and returns the
// renderer driving it. Both are nil when nothing is running.
func (p *Production) detachRender() (*video.Renderer, *video.Render) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rd := p.render
	if rd == nil {
		return nil, nil
	}
	select {
	case <-rd.Done():
		return nil, nil
	default:
	}
	p.render = nil
	return p.renderer, rd
}

// currentRender reports whether rd is still the production's latest render.
func (p *Production) currentRender(rd *video.Render) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.render == rd
}

func (p *Production) setArtifact(a *video.Artifact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.artifact = a
	p.stage = StageComplete
	p.appendLog(fmt.Sprintf("Video ready: %s (%d bytes)", a.FileName, a.Size))
}

// Artifact returns the finished video, or nil.
func (p *Production) Artifact() *video.Artifact {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.artifact
}

func (p *Production) setVideoURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.videoURL = url
}

func (p *Production) setPublishedURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishedURL = url
}

// Snapshot returns a copy of the current state (thread-safe)
func (p *Production) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := Snapshot{
		ID:           p.ID,
		Stage:        p.stage,
		CreatedAt:    p.CreatedAt,
		Params:       p.params,
		HasHero:      !p.hero.Empty(),
		Voice:        p.voice,
		Mix:          p.mix,
		HasAudio:     p.audioWAV != nil,
		AudioSeconds: p.audioSeconds,
		VideoURL:     p.videoURL,
		PublishedURL: p.publishedURL,
		Logs:         append([]LogEntry{}, p.logs...), // Copy slice
	}
	snap.Params.ProductImage = nil

	if p.script != nil {
		slim := p.script.Clone()
		snap.Segments = make([]SegmentStatus, len(slim.Segments))
		for i := range slim.Segments {
			snap.Segments[i] = SegmentStatus{
				Index:    i,
				HasImage: !slim.Segments[i].Image.Empty(),
				Error:    p.failed[i],
			}
			slim.Segments[i].Image = nil
		}
		snap.Script = slim
	}
	if p.render != nil {
		st := p.render.Status()
		snap.Render = &st
	}
	if p.lastErr != nil {
		snap.Error = p.lastErr.Error()
	}
	return snap
}
