package studio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	nurl "net/url"
	"strings"
	"time"

	"clipfarm/types"

	readability "github.com/go-shiori/go-readability"
)

const extractorTimeout = 30 * time.Second

// PageSummary is the readable content of a product page
type PageSummary struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Text    string `json:"text"`
	Image   string `json:"image"`
}

func (p *PageSummary) Empty() bool {
	return p == nil || (p.Title == "" && p.Excerpt == "" && p.Text == "")
}

// PageExtractor reads a product page
type PageExtractor interface {
	Extract(ctx context.Context, pageURL string) (*PageSummary, error)
}

// ReadabilityExtractor fetches a page and runs it through go-readability
type ReadabilityExtractor struct {
	client *http.Client
}

func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{client: &http.Client{Timeout: extractorTimeout}}
}

func (r *ReadabilityExtractor) Extract(ctx context.Context, pageURL string) (*PageSummary, error) {
	parsed, err := nurl.ParseRequestURI(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid product url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; clipfarm/1.0)")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch product page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch product page: status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return nil, fmt.Errorf("readability extraction failed: %w", err)
	}

	return &PageSummary{
		Title:   strings.TrimSpace(article.Title),
		Excerpt: strings.TrimSpace(article.Excerpt),
		Text:    strings.TrimSpace(article.TextContent),
		Image:   article.Image,
	}, nil
}

// maxImageBytes caps a downloaded hero image
const maxImageBytes = 20 << 20

// FetchImage downloads a remote product image to use as the visual reference.
func (r *ReadabilityExtractor) FetchImage(ctx context.Context, imageURL string) (*types.InlineImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch hero image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch hero image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read hero image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("hero image exceeds %d bytes", maxImageBytes)
	}
	mime := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("hero image has content type %q", mime)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return &types.InlineImage{Data: data, MIMEType: mime}, nil
}
