package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrUnknownTrack is returned for identifiers missing from the catalogue.
var ErrUnknownTrack = errors.New("unknown background track")

// Track is one entry of the music catalogue.
type Track struct {
	ID    string `yaml:"id" json:"id"`
	Label string `yaml:"label" json:"label"`
	Mood  string `yaml:"mood" json:"mood"`
	Path  string `yaml:"path" json:"path,omitempty"`
}

type catalogFile struct {
	Tracks []Track `yaml:"tracks"`
}

// Embedder turns texts into vectors. Used to match a script to a track mood.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// MusicLibrary maps track identifiers to music assets.
type MusicLibrary struct {
	dir      string
	tracks   []Track
	embedder Embedder
}

// DefaultTracks is the built-in catalogue.
func DefaultTracks() []Track {
	return []Track{
		{ID: TrackNone, Label: "No Music"},
		{ID: "song1", Label: "Song 1 (Chill)", Mood: "chill relaxed lo-fi calm everyday lifestyle", Path: "Song1.mp3"},
		{ID: "song2", Label: "Song 2 (Luxury)", Mood: "luxury elegant premium sophisticated fashion jewelry", Path: "Song2.mp3"},
		{ID: "song3", Label: "Song 3 (Upbeat)", Mood: "upbeat energetic fun gadgets sports fitness", Path: "Song3.mp3"},
		{ID: "song4", Label: "Song 4 (Epic)", Mood: "epic cinematic powerful dramatic launch tech automotive", Path: "Song4.mp3"},
		{ID: "song5", Label: "Song 5 (Happy)", Mood: "happy cheerful bright kids food family", Path: "Song5.mp3"},
	}
}

// NewMusicLibrary builds the default catalogue rooted at dir.
func NewMusicLibrary(dir string) *MusicLibrary {
	return &MusicLibrary{dir: dir, tracks: DefaultTracks()}
}

// LoadMusicLibrary reads a YAML catalogue. An empty path yields the
// default catalogue.
func LoadMusicLibrary(dir, catalogPath string) (*MusicLibrary, error) {
	lib := NewMusicLibrary(dir)
	if catalogPath == "" {
		return lib, nil
	}
	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("read music catalogue: %w", err)
	}
	if err := lib.parseCatalog(data); err != nil {
		return nil, err
	}
	return lib, nil
}

func (l *MusicLibrary) parseCatalog(data []byte) error {
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("parse music catalogue: %w", err)
	}
	tracks := []Track{{ID: TrackNone, Label: "No Music"}}
	seen := map[string]bool{TrackNone: true}
	for _, t := range cf.Tracks {
		if t.ID == "" || t.Path == "" {
			return fmt.Errorf("music catalogue entry %q needs id and path", t.ID)
		}
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		tracks = append(tracks, t)
	}
	l.tracks = tracks
	return nil
}

// WithEmbedder enables mood matching for the "auto" track.
func (l *MusicLibrary) WithEmbedder(e Embedder) *MusicLibrary {
	l.embedder = e
	return l
}

func (l *MusicLibrary) Dir() string { return l.dir }

// Tracks lists the catalogue including the "none" entry.
func (l *MusicLibrary) Tracks() []Track {
	return append([]Track(nil), l.tracks...)
}

// Lookup returns the track for id.
func (l *MusicLibrary) Lookup(id string) (Track, error) {
	for _, t := range l.tracks {
		if t.ID == id {
			t.Path = l.resolvePath(t.Path)
			return t, nil
		}
	}
	return Track{}, fmt.Errorf("%w: %q", ErrUnknownTrack, id)
}

func (l *MusicLibrary) resolvePath(p string) string {
	if p == "" || isRemote(p) || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.dir, p)
}

// Resolve handles "auto" by mood matching; other ids go through Lookup.
func (l *MusicLibrary) Resolve(ctx context.Context, id, moodHint string) (Track, error) {
	if id != TrackAuto {
		return l.Lookup(id)
	}
	candidates := l.playable()
	if len(candidates) == 0 {
		return l.Lookup(TrackNone)
	}
	if l.embedder == nil || moodHint == "" {
		return l.Lookup(candidates[0].ID)
	}

	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, moodHint)
	for _, t := range candidates {
		texts = append(texts, t.Label+": "+t.Mood)
	}
	vecs, err := l.embedder.Embed(ctx, texts)
	if err != nil {
		return Track{}, fmt.Errorf("embed track moods: %w", err)
	}
	if len(vecs) != len(texts) {
		return Track{}, fmt.Errorf("embed track moods: got %d vectors for %d texts", len(vecs), len(texts))
	}

	best, bestScore := 0, math.Inf(-1)
	for i := range candidates {
		if s := cosine(vecs[0], vecs[i+1]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return l.Lookup(candidates[best].ID)
}

func (l *MusicLibrary) playable() []Track {
	var out []Track
	for _, t := range l.tracks {
		if t.ID != TrackNone && t.Path != "" {
			out = append(out, t)
		}
	}
	return out
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
