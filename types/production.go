package types

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Tone steers the voice of the generated script
type Tone string

const (
	ToneProfessional Tone = "Professional"
	ToneCasual       Tone = "Casual"
	ToneHype         Tone = "Hype"
	ToneMinimal      Tone = "Minimal"
)

var toneDescriptions = map[Tone]string{
	ToneProfessional: "formal and trustworthy",
	ToneCasual:       "casual and playful",
	ToneHype:         "excited and energetic, full review style",
	ToneMinimal:      "understated and premium",
}

// Describe returns the phrase used in the script prompt.
func (t Tone) Describe() string {
	if d, ok := toneDescriptions[t]; ok {
		return d
	}
	return string(t)
}

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool {
	_, ok := toneDescriptions[t]
	return ok
}

// Voice is a prebuilt speech synthesis voice
type Voice string

const (
	VoiceZephyr Voice = "Zephyr"
	VoiceKore   Voice = "Kore"
	VoicePuck   Voice = "Puck"
	VoiceCharon Voice = "Charon"
	VoiceFenrir Voice = "Fenrir"

	DefaultVoice = VoiceZephyr
)

// VoiceOption describes a selectable voice
type VoiceOption struct {
	ID          Voice  `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// AvailableVoices lists the voices in display order
var AvailableVoices = []VoiceOption{
	{ID: VoiceZephyr, Label: "Zephyr (recommended)", Description: "Balanced and natural, fits any job"},
	{ID: VoiceKore, Label: "Kore", Description: "Bright and lively, good for fun reviews"},
	{ID: VoicePuck, Label: "Puck", Description: "Friendly and approachable"},
	{ID: VoiceCharon, Label: "Charon", Description: "Deep and credible"},
	{ID: VoiceFenrir, Label: "Fenrir", Description: "Heavy and powerful"},
}

// ParseVoice validates a voice name. Empty selects the default voice.
func ParseVoice(s string) (Voice, error) {
	if s == "" {
		return DefaultVoice, nil
	}
	for _, v := range AvailableVoices {
		if strings.EqualFold(string(v.ID), s) {
			return v.ID, nil
		}
	}
	return "", fmt.Errorf("unknown voice %q", s)
}

// InlineImage is an image payload with its MIME type
type InlineImage struct {
	Data     []byte `json:"data,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// Empty reports whether the image carries no bytes.
func (i *InlineImage) Empty() bool {
	return i == nil || len(i.Data) == 0
}

// DataURL renders the image as a data: URL.
func (i *InlineImage) DataURL() string {
	if i.Empty() {
		return ""
	}
	mime := i.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ParseDataURL accepts a data: URL or bare base64 and returns the image.
func ParseDataURL(s string) (*InlineImage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	mime := "image/png"
	payload := s
	if strings.HasPrefix(s, "data:") {
		head, body, ok := strings.Cut(s, ";base64,")
		if !ok {
			return nil, fmt.Errorf("data url is not base64 encoded")
		}
		if m := strings.TrimPrefix(head, "data:"); m != "" {
			mime = m
		}
		payload = body
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	return &InlineImage{Data: data, MIMEType: mime}, nil
}

// GenerateParams is the input of a production
type GenerateParams struct {
	URL             string       `json:"url"`
	DurationSeconds int          `json:"durationSeconds"`
	Tone            Tone         `json:"tone"`
	ProductImage    *InlineImage `json:"productImage,omitempty"`
}

const (
	MinDurationSeconds     = 15
	MaxDurationSeconds     = 180
	DefaultDurationSeconds = 60
)

// Normalize fills defaults and validates the request.
func (p GenerateParams) Normalize() (GenerateParams, error) {
	p.URL = strings.TrimSpace(p.URL)
	if p.URL == "" {
		return p, fmt.Errorf("product url is required")
	}
	if p.DurationSeconds == 0 {
		p.DurationSeconds = DefaultDurationSeconds
	}
	if p.DurationSeconds < MinDurationSeconds || p.DurationSeconds > MaxDurationSeconds {
		return p, fmt.Errorf("duration must be between %d and %d seconds", MinDurationSeconds, MaxDurationSeconds)
	}
	if p.Tone == "" {
		p.Tone = ToneMinimal
	}
	return p, nil
}

// ScriptSegment is one scene of the storyboard
type ScriptSegment struct {
	Time        string       `json:"time"`
	Visual      string       `json:"visual"`
	Dialogue    string       `json:"dialogue"`
	ImagePrompt string       `json:"imagePrompt"`
	Image       *InlineImage `json:"image,omitempty"`
}

// Source is a grounding citation
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// ProductScript is the generated storyboard
type ProductScript struct {
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	VisualSpecs   string          `json:"visualSpecs"`
	HeroImageURL  string          `json:"heroImageUrl,omitempty"`
	Segments      []ScriptSegment `json:"segments"`
	KeyHighlights []string        `json:"keyHighlights"`
	Sources       []Source        `json:"sources"`
}

// Narration joins every segment's dialogue with single spaces.
func (s *ProductScript) Narration() string {
	parts := make([]string, len(s.Segments))
	for i, seg := range s.Segments {
		parts[i] = seg.Dialogue
	}
	return strings.Join(parts, " ")
}

// Clone copies the script including segment slices.
func (s *ProductScript) Clone() *ProductScript {
	if s == nil {
		return nil
	}
	out := *s
	out.Segments = append([]ScriptSegment(nil), s.Segments...)
	out.KeyHighlights = append([]string(nil), s.KeyHighlights...)
	out.Sources = append([]Source(nil), s.Sources...)
	return &out
}

// SavedScript is one history entry
type SavedScript struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	Params    GenerateParams `json:"params"`
	Script    ProductScript  `json:"script"`
}

// Slim drops the image payloads that do not belong in persisted history.
func (s SavedScript) Slim() SavedScript {
	s.Params.ProductImage = nil
	s.Script = *s.Script.Clone()
	for i := range s.Script.Segments {
		s.Script.Segments[i].Image = nil
	}
	return s
}
