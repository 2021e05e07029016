package studio

import (
	"fmt"
	"strings"

	"clipfarm/types"
)

const scriptPromptTemplate = `You are a product analyst and premium content creator.
Analyze the product at this link: %s

Goals:
1. If a reference photo is attached (hero image), study it to capture the product's physical details (visual DNA).
2. If no photo is attached, find the image URL that shows this exact product most clearly (hero image URL).
3. Extract details: color, material, shape, brand, logo placement, texture.
4. Write a 9:16 video script that runs %d seconds in a %s tone. Every scene must show off the product.

Respond with JSON only:
{
  "title": "short catchy clip title",
  "description": "one elegant sentence summarizing the product",
  "visualSpecs": "Detailed English physical description (color, material, shape, branding) for image consistency",
  "heroImageUrl": "Direct URL of a representative product image (if no image was provided)",
  "segments": [
    {
      "time": "time range (e.g. 0:00-0:05)",
      "visual": "what happens on screen (cinematic visual)",
      "dialogue": "concise narration line in the chosen tone",
      "imagePrompt": "Detailed English image generation prompt focusing on product details, lighting, and cinematic environment"
    }
  ],
  "keyHighlights": ["highlight 1", "highlight 2", "highlight 3"]
}`

const imagePromptTemplate = `Vertical 9:16 high-end commercial product photography.
PRODUCT DESCRIPTION: %s.
SCENE CONTEXT: %s.
TASK: Take the product from the provided reference image, remove its original background, and place it perfectly into the SCENE CONTEXT.
SPECIFICS: Match shadows, light bounce, and reflections. The product MUST be the exact one from the reference.
AESTHETIC: Ultra-realistic, 8k, sharp focus, cinematic luxury lighting.`

// maxPageContext bounds how much extracted page text goes into the prompt
const maxPageContext = 4000

func buildScriptPrompt(params types.GenerateParams, page *PageSummary) string {
	prompt := fmt.Sprintf(scriptPromptTemplate, params.URL, params.DurationSeconds, params.Tone.Describe())
	if page == nil || page.Empty() {
		return prompt
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nReference material extracted from the product page:\n")
	if page.Title != "" {
		b.WriteString("Title: " + page.Title + "\n")
	}
	if page.Excerpt != "" {
		b.WriteString("Summary: " + page.Excerpt + "\n")
	}
	if page.Text != "" {
		text := page.Text
		if r := []rune(text); len(r) > maxPageContext {
			text = string(r[:maxPageContext])
		}
		b.WriteString("Page text:\n" + text + "\n")
	}
	return b.String()
}

func buildImagePrompt(prompt, visualSpecs string) string {
	return fmt.Sprintf(imagePromptTemplate, visualSpecs, prompt)
}
