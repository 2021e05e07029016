package ingest

import (
	"context"

	"clipfarm/production"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner executes a production end to end.
type Runner interface {
	Run(ctx context.Context, req production.Request, publisher production.Publisher) (*production.Result, error)
}

// LocalSink runs requests in-process, at most limit at a time.
type LocalSink struct {
	runner    Runner
	publisher production.Publisher
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

func NewLocalSink(runner Runner, publisher production.Publisher, limit int64, logger *zap.Logger) *LocalSink {
	if limit < 1 {
		limit = 1
	}
	return &LocalSink{runner: runner, publisher: publisher, sem: semaphore.NewWeighted(limit), logger: logger}
}

// Enqueue returns immediately; the production outlives ctx.
func (s *LocalSink) Enqueue(ctx context.Context, req production.Request) error {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)

		res, err := s.runner.Run(ctx, req, s.publisher)
		if err != nil {
			s.logger.Error("Feed production failed", zap.String("url", req.Params.URL), zap.Error(err))
			return
		}
		s.logger.Info("Feed production finished",
			zap.String("production_id", res.ID),
			zap.String("published_url", res.PublishedURL))
	}()
	return nil
}
