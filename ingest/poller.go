package ingest

import (
	"context"
	"errors"
	"fmt"

	"clipfarm/audio"
	"clipfarm/production"
	"clipfarm/types"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sink accepts production requests discovered in feeds.
type Sink interface {
	Enqueue(ctx context.Context, req production.Request) error
}

// Options shape the requests a Poller emits.
type Options struct {
	Feeds    []string
	MaxItems int
	Duration int
	Tone     types.Tone
	Voice    types.Voice
	// TrackID is the background track of every request; "auto" matches moods
	TrackID string
	Publish bool
}

// Poller turns new feed items into production requests.
type Poller struct {
	opts   Options
	seen   SeenSet
	sink   Sink
	fetch  func(ctx context.Context, feedURL string, maxCount int) ([]Item, error)
	logger *zap.Logger
}

func NewPoller(opts Options, seen SeenSet, sink Sink, logger *zap.Logger) *Poller {
	if opts.MaxItems <= 0 {
		opts.MaxItems = 5
	}
	if opts.TrackID == "" {
		opts.TrackID = audio.TrackAuto
	}
	return &Poller{opts: opts, seen: seen, sink: sink, fetch: FetchFeed, logger: logger}
}

// RunOnce polls every feed once and returns how many requests were queued.
// A failing feed does not stop the others.
func (p *Poller) RunOnce(ctx context.Context) (int, error) {
	var errs []error
	queued := 0
	for _, feed := range p.opts.Feeds {
		feedURL := ResolveFeedURL(feed)
		n, err := p.pollFeed(ctx, feedURL)
		queued += n
		if err != nil {
			p.logger.Warn("Feed poll failed", zap.String("feed", feedURL), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", feedURL, err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	p.logger.Info("Feed poll finished", zap.Int("queued", queued), zap.Int("feeds", len(p.opts.Feeds)))
	return queued, errors.Join(errs...)
}

func (p *Poller) pollFeed(ctx context.Context, feedURL string) (int, error) {
	items, err := p.fetch(ctx, feedURL, p.opts.MaxItems)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, item := range items {
		key := LinkKey(item.URL)
		seen, err := p.seen.Seen(ctx, key)
		if err != nil {
			return queued, fmt.Errorf("seen lookup: %w", err)
		}
		if seen {
			continue
		}

		if err := p.sink.Enqueue(ctx, p.request(item)); err != nil {
			return queued, fmt.Errorf("enqueue %s: %w", item.URL, err)
		}
		if err := p.seen.Mark(ctx, key); err != nil {
			return queued, fmt.Errorf("seen mark: %w", err)
		}
		queued++
		p.logger.Info("Queued product from feed",
			zap.String("title", item.Title),
			zap.String("url", item.URL))
	}
	return queued, nil
}

func (p *Poller) request(item Item) production.Request {
	mix := audio.DefaultMixConfiguration()
	mix.BackgroundTrackID = p.opts.TrackID
	mix.MoodHint = item.Title
	return production.Request{
		Params: types.GenerateParams{
			URL:             item.URL,
			DurationSeconds: p.opts.Duration,
			Tone:            p.opts.Tone,
		},
		Voice:   p.opts.Voice,
		Mix:     mix,
		Publish: p.opts.Publish,
	}
}

// Schedule runs RunOnce on a cron spec until the returned cron is stopped.
func (p *Poller) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Warn("Scheduled feed poll had errors", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid feed schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
