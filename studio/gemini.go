package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"clipfarm/audio"
	"clipfarm/config"
	"clipfarm/types"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// ErrNoImageData is returned when the image model answers without pixels.
var ErrNoImageData = errors.New("image model returned no image data")

// ScriptGenerator produces a storyboard for a product.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, params types.GenerateParams) (*types.ProductScript, error)
}

// ImageGenerator renders one scene image, optionally anchored to a reference photo.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt, visualSpecs string, ref *types.InlineImage) (*types.InlineImage, error)
}

// SpeechSynthesizer turns the narration text into mono 24 kHz samples.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, voice types.Voice) (*audio.AudioBuffer, error)
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini implements every generation collaborator on top of the genai SDK.
type Gemini struct {
	models    contentGenerator
	extractor PageExtractor
	logger    *zap.Logger

	scriptModel string
	imageModel  string
	speechModel string
}

// NewGemini creates a Gemini API client.
func NewGemini(ctx context.Context, apiKey string, extractor PageExtractor, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return newGemini(client.Models, extractor, logger), nil
}

func newGemini(models contentGenerator, extractor PageExtractor, logger *zap.Logger) *Gemini {
	return &Gemini{
		models:      models,
		extractor:   extractor,
		logger:      logger,
		scriptModel: config.ScriptModel,
		imageModel:  config.ImageModel,
		speechModel: config.SpeechModel,
	}
}

// GenerateScript asks the search-grounded model for a storyboard.
func (g *Gemini) GenerateScript(ctx context.Context, params types.GenerateParams) (*types.ProductScript, error) {
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, config.CollaboratorTimeout)
	defer cancel()

	var page *PageSummary
	if g.extractor != nil {
		page, err = g.extractor.Extract(ctx, params.URL)
		if err != nil {
			g.logger.Warn("Product page extraction failed, continuing with search grounding only",
				zap.String("url", params.URL), zap.Error(err))
			page = nil
		}
	}

	parts := []*genai.Part{genai.NewPartFromText(buildScriptPrompt(params, page))}
	if !params.ProductImage.Empty() {
		parts = append(parts, genai.NewPartFromBytes(params.ProductImage.Data, mimeOrDefault(params.ProductImage.MIMEType)))
	}

	resp, err := g.models.GenerateContent(ctx, g.scriptModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Tools:            []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return nil, fmt.Errorf("script generation failed: %w", err)
	}

	script, err := ParseScript(responseText(resp))
	if err != nil {
		return nil, err
	}
	script.Sources = groundingSources(resp)

	g.logger.Info("Script generated",
		zap.String("title", script.Title),
		zap.Int("segments", len(script.Segments)),
		zap.Int("sources", len(script.Sources)))
	return script, nil
}

// GenerateImage renders a 9:16 product shot for one scene.
func (g *Gemini) GenerateImage(ctx context.Context, prompt, visualSpecs string, ref *types.InlineImage) (*types.InlineImage, error) {
	ctx, cancel := context.WithTimeout(ctx, config.CollaboratorTimeout)
	defer cancel()

	parts := []*genai.Part{genai.NewPartFromText(buildImagePrompt(prompt, visualSpecs))}
	if !ref.Empty() {
		parts = append(parts, genai.NewPartFromBytes(ref.Data, mimeOrDefault(ref.MIMEType)))
	}

	resp, err := g.models.GenerateContent(ctx, g.imageModel,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{AspectRatio: "9:16"},
		})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}

	for _, part := range firstCandidateParts(resp) {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return &types.InlineImage{
				Data:     part.InlineData.Data,
				MIMEType: mimeOrDefault(part.InlineData.MIMEType),
			}, nil
		}
	}
	return nil, ErrNoImageData
}

// Synthesize speaks text with a prebuilt voice.
func (g *Gemini) Synthesize(ctx context.Context, text string, voice types.Voice) (*audio.AudioBuffer, error) {
	voice, err := types.ParseVoice(string(voice))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("narration text is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, config.CollaboratorTimeout)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, g.speechModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{string(genai.ModalityAudio)},
			SpeechConfig: &genai.SpeechConfig{
				VoiceConfig: &genai.VoiceConfig{
					PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: string(voice)},
				},
			},
		})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis failed: %w", err)
	}

	parts := firstCandidateParts(resp)
	if len(parts) == 0 || parts[0].InlineData == nil || len(parts[0].InlineData.Data) == 0 {
		return nil, audio.ErrNoAudio
	}
	return audio.DecodePCM16(parts[0].InlineData.Data, config.NarrationSampleRate, config.NarrationChannels)
}

func firstCandidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

// responseText concatenates the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, part := range firstCandidateParts(resp) {
		if part.Thought || part.Text == "" {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// groundingSources maps search grounding chunks to citations. Chunks
// without a URI are dropped.
func groundingSources(resp *genai.GenerateContentResponse) []types.Source {
	sources := []types.Source{}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].GroundingMetadata == nil {
		return sources
	}
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		title := chunk.Web.Title
		if title == "" {
			title = "Verified Data"
		}
		sources = append(sources, types.Source{Title: title, URI: chunk.Web.URI})
	}
	return sources
}

func mimeOrDefault(m string) string {
	if m == "" {
		return "image/png"
	}
	return m
}
