package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"clipfarm/api"
	"clipfarm/audio"
	"clipfarm/config"
	"clipfarm/history"
	"clipfarm/ingest"
	"clipfarm/kafka"
	"clipfarm/production"
	"clipfarm/publish"
	"clipfarm/storage"
	"clipfarm/studio"
	"clipfarm/types"
	"clipfarm/video"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	batchMode := flag.Bool("batch", false, "Process every request in input/ and exit")
	kafkaMode := flag.Bool("kafka", false, "Consume production requests from Kafka")
	port := flag.String("port", "", "API server port (overrides PORT)")
	feedSink := flag.String("feed-sink", "local", "Where feed items go: local or kafka")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = strings.TrimPrefix(*port, ":")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer app.Close()

	switch {
	case *batchMode:
		logger.Info("Running in batch mode", zap.String("dir", config.InputDir))
		if err := app.runBatch(ctx, config.InputDir); err != nil {
			logger.Fatal("Batch processing failed", zap.Error(err))
		}
	case *kafkaMode:
		logger.Info("Running in Kafka consumer mode",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("group", cfg.Kafka.GroupID))
		if err := app.runConsumer(ctx); err != nil {
			logger.Fatal("Kafka consumer failed", zap.Error(err))
		}
	default:
		if err := app.serve(ctx, *feedSink); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(level, "debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type application struct {
	cfg       *config.Config
	logger    *zap.Logger
	service   *production.Service
	history   *history.History
	music     *audio.MusicLibrary
	publisher production.Publisher
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	a := &application{cfg: cfg, logger: logger}

	extractor := studio.NewReadabilityExtractor()
	gemini, err := studio.NewGemini(ctx, cfg.GeminiAPIKey, extractor, logger)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	music, err := audio.LoadMusicLibrary(cfg.MusicDir, cfg.MusicCatalog)
	if err != nil {
		return nil, fmt.Errorf("music library: %w", err)
	}
	if e := studio.NewCohereEmbedder(cfg.CohereAPIKey, config.EmbeddingModel); e != nil {
		music.WithEmbedder(e)
	} else {
		logger.Info("COHERE_API_KEY not set; automatic track selection uses the first track")
	}
	a.music = music
	mixer := audio.NewMixer(music,
		audio.NewTrackFetcher(music.Dir()),
		audio.FFmpegDecoder{FFmpegPath: cfg.FFmpegPath},
		logger)

	a.history = history.New(a.newHistoryStore(), logger)

	artifacts, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("artifact storage: %w", err)
	}

	compositor, err := video.NewCompositor(config.VideoWidth, config.VideoHeight)
	if err != nil {
		return nil, err
	}
	format, err := video.LookupFormat(cfg.OutputFormat)
	if err != nil {
		return nil, err
	}

	a.service = production.NewService(production.Dependencies{
		Scripts:    gemini,
		Images:     gemini,
		Speech:     gemini,
		Heroes:     extractor,
		Mixer:      mixer,
		History:    a.history,
		Compositor: compositor,
		Encoders:   video.NewFFmpegFactory(format, cfg.FFmpegPath, ""),
		Artifacts:  artifacts,
	}, logger)

	if cfg.YouTubeServiceAccount != "" {
		uploader, err := publish.NewUploader(ctx, cfg.YouTubeServiceAccount, logger)
		if err != nil {
			logger.Warn("YouTube publishing disabled", zap.Error(err))
		} else {
			a.publisher = uploader
		}
	}
	return a, nil
}

func (a *application) newHistoryStore() history.KeyValueStore {
	cfg := a.cfg.History
	if cfg.Backend == "redis" {
		rs := history.NewRedisStore(history.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			MaxBytes: cfg.MaxBytes,
		}, a.logger)
		a.closers = append(a.closers, rs.Close)
		return rs
	}
	return history.NewMemoryStore(cfg.MaxBytes)
}

func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Shutdown step failed", zap.Error(err))
		}
	}
}

// serve runs the HTTP API and, when feeds are configured, the feed poller.
func (a *application) serve(ctx context.Context, feedSink string) error {
	var feeds api.FeedRefresher
	if len(a.cfg.Feeds.URLs) > 0 {
		poller, err := a.newPoller(feedSink)
		if err != nil {
			return err
		}
		c, err := poller.Schedule(ctx, a.cfg.Feeds.Schedule)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			<-c.Stop().Done()
			return nil
		})
		feeds = poller
		a.logger.Info("Feed polling scheduled",
			zap.Strings("feeds", a.cfg.Feeds.URLs),
			zap.String("schedule", a.cfg.Feeds.Schedule))
	}

	h := api.NewHandler(a.service, a.history, a.music, feeds, a.logger)
	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("API server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		a.logger.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *application) newPoller(sinkName string) (*ingest.Poller, error) {
	var sink ingest.Sink
	switch sinkName {
	case "kafka":
		producer, err := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic, a.logger)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		a.closers = append(a.closers, producer.Close)
		sink = kafka.NewEnqueuer(producer)
	case "", "local":
		sink = ingest.NewLocalSink(a.service, a.publisher, config.MaxConcurrentProductions, a.logger)
	default:
		return nil, fmt.Errorf("unknown feed sink %q", sinkName)
	}

	var seen ingest.SeenSet = ingest.NewMemorySeen()
	if a.cfg.History.Backend == "redis" {
		rs, err := ingest.NewRedisSeen(ingest.RedisSeenConfig{
			Addr:     a.cfg.History.RedisAddr,
			Password: a.cfg.History.RedisPass,
			DB:       a.cfg.History.RedisDB,
		})
		if err != nil {
			a.logger.Warn("Redis seen-set unavailable, using memory", zap.Error(err))
		} else {
			a.closers = append(a.closers, rs.Close)
			seen = rs
		}
	}

	return ingest.NewPoller(ingest.Options{
		Feeds:    a.cfg.Feeds.URLs,
		MaxItems: a.cfg.Feeds.MaxItems,
		Duration: a.cfg.Feeds.Duration,
		Tone:     types.Tone(a.cfg.Feeds.Tone),
		Publish:  a.publisher != nil,
	}, seen, sink, a.logger), nil
}

func (a *application) runConsumer(ctx context.Context) error {
	handler := kafka.NewProductionHandler(a.service, a.publisher, config.MaxConcurrentProductions, a.logger)
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: a.cfg.Kafka.Brokers,
		Topic:   a.cfg.Kafka.Topic,
		GroupID: a.cfg.Kafka.GroupID,
		Handler: handler,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Close()
		return err
	}
	<-ctx.Done()
	a.logger.Info("Received termination signal")
	return consumer.Close()
}

// runBatch runs every *.json request in dir, at most
// MaxConcurrentProductions at once, staggering their starts.
func (a *application) runBatch(ctx context.Context, dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		a.logger.Warn("No production requests found", zap.String("dir", dir))
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.MaxConcurrentProductions)
	failed := 0
	results := make([]error, len(files))
	for i, file := range files {
		if i > 0 {
			select {
			case <-time.After(config.ProductionBatchDelay):
			case <-gctx.Done():
			}
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = a.runRequestFile(gctx, file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, err := range results {
		if err != nil {
			failed++
			a.logger.Error("Production failed", zap.String("file", files[i]), zap.Error(err))
		}
	}
	a.logger.Info("Batch complete", zap.Int("total", len(files)), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d productions failed", failed, len(files))
	}
	return ctx.Err()
}

func (a *application) runRequestFile(ctx context.Context, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var req production.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	a.logger.Info("Starting production", zap.String("file", file), zap.String("url", req.Params.URL))
	res, err := a.service.Run(ctx, req, a.publisher)
	if err != nil {
		return err
	}
	a.logger.Info("Production finished",
		zap.String("file", file),
		zap.String("production_id", res.ID),
		zap.String("video", res.Artifact.FileName),
		zap.String("published_url", res.PublishedURL))
	return nil
}
