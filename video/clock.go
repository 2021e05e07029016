package video

import (
	"context"
	"fmt"
	"time"
)

// ClockMode selects how the render loop advances time
type ClockMode string

const (
	// ClockVirtual advances exactly one frame per tick, as fast as the encoder accepts frames
	ClockVirtual ClockMode = "virtual"

	// ClockWall paces frames against the wall clock
	ClockWall ClockMode = "wall"
)

// ParseClockMode maps a request value to a mode. Empty selects virtual.
func ParseClockMode(s string) (ClockMode, error) {
	switch ClockMode(s) {
	case "", ClockVirtual:
		return ClockVirtual, nil
	case ClockWall:
		return ClockWall, nil
	}
	return "", fmt.Errorf("unknown clock mode %q", s)
}

// Clock provides the render loop's notion of time. Elapsed is always derived
// from the start point, never summed from per-frame deltas.
type Clock interface {
	// Elapsed returns seconds since the clock started.
	Elapsed() float64
	// Tick blocks until the next frame is due.
	Tick(ctx context.Context) error
}

// VirtualClock is frame-exact: elapsed = frames / fps.
type VirtualClock struct {
	fps    int
	frames int64
}

func NewVirtualClock(fps int) *VirtualClock {
	return &VirtualClock{fps: fps}
}

func (c *VirtualClock) Elapsed() float64 {
	return float64(c.frames) / float64(c.fps)
}

func (c *VirtualClock) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.frames++
	return nil
}

// WallClock measures real time and sleeps until the next frame boundary.
type WallClock struct {
	start    time.Time
	interval time.Duration
	now      func() time.Time
}

func NewWallClock(fps int) *WallClock {
	return &WallClock{start: time.Now(), interval: time.Second / time.Duration(fps), now: time.Now}
}

func (c *WallClock) Elapsed() float64 {
	return c.now().Sub(c.start).Seconds()
}

func (c *WallClock) Tick(ctx context.Context) error {
	elapsed := c.now().Sub(c.start)
	next := (elapsed/c.interval + 1) * c.interval
	timer := time.NewTimer(next - elapsed)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NewClock builds a fresh clock for one render cycle.
func NewClock(mode ClockMode, fps int) Clock {
	if mode == ClockWall {
		return NewWallClock(fps)
	}
	return NewVirtualClock(fps)
}
