package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedPresets maps friendly names to product feed URLs
var FeedPresets = map[string]string{
	"producthunt": "https://www.producthunt.com/feed",
	"etsy":        "https://www.etsy.com/shop/feeds/featured.rss",
	"amazon":      "https://www.amazon.com/gp/rss/bestsellers/beauty",
}

// ResolveFeedURL returns the preset URL for a name, or the input unchanged.
func ResolveFeedURL(feed string) string {
	if url, ok := FeedPresets[strings.ToLower(strings.TrimSpace(feed))]; ok {
		return url
	}
	return feed
}

// Item is one product link announced by a feed.
type Item struct {
	Title       string
	URL         string
	ImageURL    string
	PublishedAt time.Time
}

// FetchFeed retrieves and parses an RSS/Atom feed, returning at most
// maxCount items that carry a link.
func FetchFeed(ctx context.Context, feedURL string, maxCount int) ([]Item, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	items := make([]Item, 0, min(len(feed.Items), maxCount))
	for _, it := range feed.Items {
		if len(items) >= maxCount {
			break
		}
		if strings.TrimSpace(it.Link) == "" {
			continue
		}
		item := Item{Title: it.Title, URL: strings.TrimSpace(it.Link)}
		if it.PublishedParsed != nil {
			item.PublishedAt = *it.PublishedParsed
		} else if it.UpdatedParsed != nil {
			item.PublishedAt = *it.UpdatedParsed
		}
		if it.Image != nil {
			item.ImageURL = it.Image.URL
		}
		items = append(items, item)
	}
	return items, nil
}
