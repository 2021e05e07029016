package kafka

import (
	"context"
	"fmt"

	"clipfarm/production"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Runner executes a queued production end to end.
type Runner interface {
	Run(ctx context.Context, req production.Request, publisher production.Publisher) (*production.Result, error)
}

// NewProductionHandler decodes production requests and runs at most
// maxConcurrent of them at once. Requests without a product URL are skipped.
func NewProductionHandler(runner Runner, publisher production.Publisher, maxConcurrent int64, logger *zap.Logger) *TypedMessageHandler[production.Request] {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	sem := semaphore.NewWeighted(maxConcurrent)
	return &TypedMessageHandler[production.Request]{
		Validate: func(req *production.Request) bool {
			if req.Params.URL == "" {
				logger.Warn("Skipping production request without url")
				return false
			}
			return true
		},
		Process: func(ctx context.Context, req *production.Request) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			logger.Info("Processing queued production", zap.String("url", req.Params.URL))
			res, err := runner.Run(ctx, *req, publisher)
			if err != nil {
				id := ""
				if res != nil {
					id = res.ID
				}
				return fmt.Errorf("production %s for %s: %w", id, req.Params.URL, err)
			}
			logger.Info("Queued production finished",
				zap.String("production_id", res.ID),
				zap.String("published_url", res.PublishedURL))
			return nil
		},
		AlwaysMark: true,
		Logger:     logger,
	}
}

// Enqueuer writes production requests to the topic.
type Enqueuer struct {
	producer *Producer
}

func NewEnqueuer(p *Producer) *Enqueuer {
	return &Enqueuer{producer: p}
}

// Enqueue keys the message by product URL so retries land on one partition.
func (e *Enqueuer) Enqueue(ctx context.Context, req production.Request) error {
	return e.producer.Send(ctx, req.Params.URL, req)
}
