package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sync"
	"time"

	"clipfarm/audio"
	"clipfarm/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

// Render is the handle of one render cycle.
type Render struct {
	id         string
	generation uint64
	startedAt  time.Time
	done       chan struct{}

	mu       sync.RWMutex
	state    State
	progress float64
	frames   int
	err      error
	artifact *Artifact
}

func newRender(gen uint64) *Render {
	return &Render{
		id:         uuid.NewString(),
		generation: gen,
		startedAt:  time.Now(),
		done:       make(chan struct{}),
		state:      StateRendering,
	}
}

func (r *Render) ID() string { return r.id }

// Done is closed once the render reaches a terminal state.
func (r *Render) Done() <-chan struct{} { return r.done }

// Wait blocks until the render finishes or ctx ends.
func (r *Render) Wait(ctx context.Context) (*Artifact, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.artifact, r.err
}

// Status returns a snapshot of the render.
func (r *Render) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Status{
		ID:        r.id,
		State:     r.state,
		Progress:  r.progress,
		Frames:    r.frames,
		StartedAt: r.startedAt,
		Elapsed:   time.Since(r.startedAt),
		Artifact:  r.artifact,
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

func (r *Render) frame(progress float64) {
	r.mu.Lock()
	r.progress = progress
	r.frames++
	r.mu.Unlock()
}

func (r *Render) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Render) complete(a *Artifact) {
	r.mu.Lock()
	r.state = StateComplete
	r.progress = 100
	r.artifact = a
	r.mu.Unlock()
	close(r.done)
}

func (r *Render) fail(err error) {
	r.mu.Lock()
	r.state = StateFailed
	r.err = err
	r.mu.Unlock()
	close(r.done)
}

// Renderer runs at most one render cycle at a time. Starting a new cycle
// bumps the generation; the previous loop notices on its next frame, aborts
// its encoder and fails with ErrSuperseded.
type Renderer struct {
	compositor *Compositor
	encoders   EncoderFactory
	fps        int
	logger     *zap.Logger

	mu         sync.Mutex
	generation uint64
	active     *Render
	cancel     context.CancelFunc
}

func NewRenderer(compositor *Compositor, encoders EncoderFactory, logger *zap.Logger) *Renderer {
	return &Renderer{
		compositor: compositor,
		encoders:   encoders,
		fps:        config.FrameRate,
		logger:     logger,
	}
}

// State reports the state of the latest cycle, or idle when none is active.
func (r *Renderer) State() State {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active == nil {
		return StateIdle
	}
	return active.Status().State
}

// Start begins a new cycle, superseding any active one.
func (r *Renderer) Start(ctx context.Context, job RenderJob) (*Render, error) {
	return r.start(ctx, job, true)
}

// TryStart begins a new cycle only when no other cycle is active.
func (r *Renderer) TryStart(ctx context.Context, job RenderJob) (*Render, error) {
	return r.start(ctx, job, false)
}

func (r *Renderer) start(ctx context.Context, job RenderJob, supersede bool) (*Render, error) {
	scene, err := r.prepare(job)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.active != nil && !supersede {
		r.mu.Unlock()
		return nil, ErrRenderBusy
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.generation++
	gen := r.generation
	rd := newRender(gen)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.active, r.cancel = rd, cancel
	r.mu.Unlock()

	enc, err := r.encoders.NewEncoder(runCtx, EncoderConfig{
		Width:     r.compositor.width,
		Height:    r.compositor.height,
		FrameRate: r.fps,
		AudioWAV:  job.AudioWAV,
	})
	if err != nil {
		err = fmt.Errorf("encoder init failed: %w", err)
		rd.fail(err)
		r.release(gen)
		cancel()
		return rd, nil
	}

	r.logger.Info("Render started",
		zap.String("render_id", rd.id),
		zap.Uint64("generation", gen),
		zap.Int("scenes", len(scene.Images)),
		zap.Float64("total_seconds", scene.TotalSeconds()),
		zap.String("clock", string(job.Clock)))

	go r.run(runCtx, cancel, rd, scene, enc, NewClock(job.Clock, r.fps), job.Title)
	return rd, nil
}

// prepare decodes every scene image once and reads the audio length.
func (r *Renderer) prepare(job RenderJob) (*Scene, error) {
	if len(job.Images) == 0 {
		return nil, ErrNoImages
	}
	info, err := audio.ReadWAVInfo(job.AudioWAV)
	if err != nil {
		return nil, fmt.Errorf("invalid audio track: %w", err)
	}
	scene := &Scene{
		Images:           make([]image.Image, len(job.Images)),
		Title:            job.Title,
		NarrationSeconds: info.Seconds(),
	}
	for i, data := range job.Images {
		if len(data) == 0 {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			r.logger.Warn("Scene image could not be decoded, rendering black",
				zap.Int("segment", i), zap.Error(err))
			continue
		}
		scene.Images[i] = img
	}
	return scene, nil
}

func (r *Renderer) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation == gen
}

// release clears the active slot if gen still owns it.
func (r *Renderer) release(gen uint64) {
	r.mu.Lock()
	if r.generation == gen {
		r.active = nil
		r.cancel = nil
	}
	r.mu.Unlock()
}

func (r *Renderer) run(ctx context.Context, cancel context.CancelFunc, rd *Render, scene *Scene, enc Encoder, clock Clock, title string) {
	defer cancel()
	defer r.release(rd.generation)

	total := scene.TotalSeconds()
	frame := r.compositor.NewFrame()
	log := r.logger.With(zap.String("render_id", rd.id))

	for {
		if !r.current(rd.generation) {
			enc.Abort()
			rd.fail(ErrSuperseded)
			log.Info("Render superseded")
			return
		}
		if err := ctx.Err(); err != nil {
			enc.Abort()
			rd.fail(err)
			return
		}

		elapsed := clock.Elapsed()
		if elapsed >= total {
			break
		}
		rd.frame(math.Max(0, math.Min(100, elapsed/total*100)))

		r.compositor.RenderFrame(frame, scene, elapsed)
		if err := enc.WriteFrame(frame.Pix); err != nil {
			enc.Abort()
			if !r.current(rd.generation) {
				rd.fail(ErrSuperseded)
				return
			}
			rd.fail(fmt.Errorf("encoder write failed: %w", err))
			log.Error("Render failed", zap.Error(err))
			return
		}
		if err := clock.Tick(ctx); err != nil {
			continue
		}
	}

	rd.setState(StateFinalizing)
	data, err := enc.Close()
	if !r.current(rd.generation) {
		rd.fail(ErrSuperseded)
		return
	}
	if err != nil {
		rd.fail(fmt.Errorf("encoder finalize failed: %w", err))
		log.Error("Render failed", zap.Error(err))
		return
	}

	rd.complete(&Artifact{
		Data:        data,
		ContentType: r.encoders.ContentType(),
		FileName:    ArtifactFileName(title, r.encoders.Extension()),
		Size:        len(data),
	})
	log.Info("Render complete", zap.Int("bytes", len(data)), zap.Int("frames", rd.Status().Frames))
}

// Cancel aborts the active cycle, if any.
func (r *Renderer) Cancel() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
}
