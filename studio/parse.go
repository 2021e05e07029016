package studio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"clipfarm/types"
)

// ParseError reports a script response that is not a usable storyboard.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid script response: %s: %v", e.Reason, e.Err)
	}
	return "invalid script response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseScript decodes the model's JSON answer into a ProductScript.
// Markdown code fences around the JSON are tolerated.
func ParseScript(text string) (*types.ProductScript, error) {
	raw := stripFences(text)
	if raw == "" {
		return nil, &ParseError{Reason: "empty response"}
	}

	var script types.ProductScript
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&script); err != nil {
		return nil, &ParseError{Reason: "malformed json", Err: err}
	}

	script.Title = strings.TrimSpace(script.Title)
	if script.Title == "" {
		return nil, &ParseError{Reason: "missing title"}
	}
	if len(script.Segments) == 0 {
		return nil, &ParseError{Reason: "no segments"}
	}
	for i, seg := range script.Segments {
		if strings.TrimSpace(seg.Dialogue) == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("segment %d has no dialogue", i)}
		}
		if strings.TrimSpace(seg.ImagePrompt) == "" {
			return nil, &ParseError{Reason: fmt.Sprintf("segment %d has no image prompt", i)}
		}
		// images only ever come from the image model
		script.Segments[i].Image = nil
	}
	if script.Sources == nil {
		script.Sources = []types.Source{}
	}
	return &script, nil
}

func stripFences(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line, e.g. ```json
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
