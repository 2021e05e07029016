package video

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrRenderBusy is returned by TryStart while another cycle is active
	ErrRenderBusy = errors.New("a render is already in progress")

	// ErrSuperseded marks a cycle that was replaced by a newer one
	ErrSuperseded = errors.New("render superseded by a newer request")

	// ErrNoImages is returned when a job has no scenes
	ErrNoImages = errors.New("render job has no scenes")
)

// State is the lifecycle of one render cycle
type State string

const (
	StateIdle       State = "idle"
	StateRendering  State = "rendering"
	StateFinalizing State = "finalizing"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Terminal reports whether the state ends a cycle.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// RenderJob is the input of one render cycle.
type RenderJob struct {
	Title string
	// Images holds the encoded scene images, one per segment. A nil entry
	// renders as a black scene.
	Images [][]byte
	// AudioWAV is the final narration mix; its length drives the video length
	AudioWAV []byte
	Clock    ClockMode
}

// Artifact is a finished video file.
type Artifact struct {
	Data        []byte `json:"-"`
	ContentType string `json:"contentType"`
	FileName    string `json:"fileName"`
	Size        int    `json:"size"`
}

// Status is a point-in-time view of a render.
type Status struct {
	ID        string        `json:"id"`
	State     State         `json:"state"`
	Progress  float64       `json:"progress"`
	Frames    int           `json:"frames"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Elapsed   time.Duration `json:"elapsed"`
	Artifact  *Artifact     `json:"artifact,omitempty"`
}

var whitespace = regexp.MustCompile(`\s`)

// ArtifactFileName is "<title with whitespace as underscores>_PREMIUM_AD.<ext>".
func ArtifactFileName(title, ext string) string {
	name := whitespace.ReplaceAllString(strings.TrimSpace(title), "_")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, name)
	if name == "" {
		name = "UNTITLED"
	}
	return name + "_PREMIUM_AD." + ext
}
