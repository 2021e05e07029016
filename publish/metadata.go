package publish

import (
	"fmt"
	"strings"

	"clipfarm/config"
	"clipfarm/types"
)

// Metadata is the snippet of an upload.
type Metadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
}

var defaultTags = []string{"product review", "shopping", "shorts", "ad"}

// BuildMetadata derives upload metadata from a product script.
func BuildMetadata(script *types.ProductScript) Metadata {
	if script == nil {
		script = &types.ProductScript{}
	}
	title := strings.TrimSpace(script.Title)
	if title == "" {
		title = "Product spotlight"
	}

	var b strings.Builder
	if d := strings.TrimSpace(script.Description); d != "" {
		b.WriteString(d)
		b.WriteString("\n\n")
	}
	for _, h := range script.KeyHighlights {
		if h = strings.TrimSpace(h); h != "" {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}
	if len(script.KeyHighlights) > 0 {
		b.WriteString("\n")
	}
	for _, s := range script.Sources {
		if s.URI == "" {
			continue
		}
		label := s.Title
		if label == "" {
			label = s.URI
		}
		fmt.Fprintf(&b, "Source: %s (%s)\n", label, s.URI)
	}
	b.WriteString("#shorts #productreview")

	return Metadata{
		Title:       truncateTitle(title),
		Description: b.String(),
		Tags:        append([]string(nil), defaultTags...),
		CategoryID:  config.YouTubeCategoryID,
	}
}

func truncateTitle(title string) string {
	r := []rune(title)
	if len(r) <= config.MaxTitleLength {
		return title
	}
	return string(r[:config.MaxTitleLength-3]) + "..."
}
