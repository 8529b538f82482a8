package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"newsbot/common"
	"newsbot/compose"
	"newsbot/config"
	"newsbot/deduplication"
	"newsbot/export"
	"newsbot/generation"
	"newsbot/orchestrator"
	"newsbot/publisher"
	"newsbot/ranking"
	"newsbot/retry"
	"newsbot/rssfeeds"
	"newsbot/runstate"
)

// loadConfig loads and validates the configuration. dryRun forces the
// dry-run transport when set.
func loadConfig(path string, dryRun bool) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	if dryRun {
		cfg.Publisher.DryRun = true
	}
	logger := common.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		return cfg, logger, err
	}
	return cfg, logger, nil
}

func retryPolicy(cfg config.RetryConfig) retry.Policy {
	return retry.Policy{
		MaxAttempts:  cfg.MaxAttempts,
		BaseDelay:    cfg.BaseDelay,
		MaxDelay:     cfg.MaxDelay,
		MaxTotalWait: cfg.MaxTotalWait,
		Jitter:       cfg.Jitter,
		Clock:        retry.RealClock,
	}
}

func textBackend(ctx context.Context, cfg config.GenerationConfig, logger *slog.Logger) (generation.TextGenerator, error) {
	switch cfg.Provider {
	case "cohere":
		return generation.NewCohereClient(cfg.APIKey, cfg.Model), nil
	case "gemini":
		return generation.NewGeminiClient(ctx, cfg.APIKey, cfg.Model, cfg.FallbackModel, logger)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
}

func s3Config(cfg config.S3Config) common.S3Config {
	return common.S3Config{
		Bucket:       cfg.Bucket,
		Prefix:       cfg.Prefix,
		Region:       cfg.Region,
		Profile:      cfg.Profile,
		UsePathStyle: cfg.UsePathStyle,
	}
}

// app bundles the constructed pipeline and what needs closing afterwards
type app struct {
	runner *orchestrator.Runner
	store  runstate.Store
	close  func()
}

// buildApp constructs every collaborator explicitly from cfg
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := runstate.Open(ctx, cfg.State, logger)
	if err != nil {
		return nil, err
	}
	closeStore := func() {
		if c, ok := store.(io.Closer); ok {
			_ = c.Close()
		}
	}

	keys, err := ranking.KeysFromNames(cfg.Ranking.Keys, cfg.Ranking.SourcePriority)
	if err != nil {
		closeStore()
		return nil, err
	}

	backend, err := textBackend(ctx, cfg.Generation, logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	poster, err := publisher.NewPoster(ctx, cfg.Publisher.Transport, cfg.Publisher.DryRun, publisher.XCredentials{
		BaseURL:      cfg.Publisher.X.BaseURL,
		TokenURL:     cfg.Publisher.X.TokenURL,
		ClientID:     cfg.Publisher.X.ClientID,
		ClientSecret: cfg.Publisher.X.ClientSecret,
		AccessToken:  cfg.Publisher.X.AccessToken,
		RefreshToken: cfg.Publisher.X.RefreshToken,
	}, logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	var exporter orchestrator.Exporter
	if cfg.Export.Enabled {
		var objects common.ObjectStore
		if cfg.Export.UploadS3 {
			s3, err := common.NewS3(ctx, s3Config(cfg.State.S3))
			if err != nil {
				closeStore()
				return nil, fmt.Errorf("export upload: %w", err)
			}
			objects = s3
		}
		exporter = export.New(cfg.Export.Dir, objects, logger)
	}

	policy := retryPolicy(cfg.Retry)
	budget := generation.NewBudget(cfg.Compose.MaxPostChars, cfg.Compose.LinkWeight, cfg.Generation.HeadlineBudget)

	runner := orchestrator.NewRunner(orchestrator.Deps{
		Feeds: cfg.Feeds,
		Fetcher: rssfeeds.NewClient(rssfeeds.Options{
			Timeout:         cfg.Fetch.Timeout,
			Concurrency:     cfg.Fetch.Concurrency,
			MaxItemsPerFeed: cfg.Fetch.MaxItemsPerFeed,
			UserAgent:       cfg.Fetch.UserAgent,
			MinSummaryChars: cfg.Fetch.MinSummaryChars,
			Logger:          logger,
		}),
		Deduplicator: deduplication.NewDeduplicator(logger),
		Ranker:       ranking.Ranker{Keys: keys, Limit: cfg.Ranking.Limit},
		NewGenerator: func() orchestrator.ContentGenerator {
			return generation.NewGenerator(generation.Options{
				Backend:         backend,
				Policy:          policy,
				Budget:          budget,
				MaxAttempts:     cfg.Generation.MaxAttempts,
				MaxHashtags:     cfg.Generation.MaxHashtags,
				DefaultHashtags: cfg.Generation.DefaultHashtags,
				MaxOutputTokens: cfg.Generation.MaxOutputTokens,
				Temperature:     cfg.Generation.Temperature,
				Logger:          logger,
			})
		},
		Composer: compose.New(cfg.Compose.MaxPostChars, cfg.Compose.LinkWeight, cfg.Compose.IndexTitle),
		Publisher: publisher.New(publisher.Options{
			Poster:         poster,
			Store:          store,
			Policy:         policy,
			MaxPostsPerDay: cfg.Publisher.MaxPostsPerDay,
			PostInterval:   cfg.Publisher.PostInterval,
			Logger:         logger,
		}),
		Store:    store,
		Exporter: exporter,
		Location: cfg.Window.Location(),
		EndHour:  cfg.Window.EndHour,
		Timeout:  cfg.Run.Timeout,
		Enrich:   cfg.Fetch.EnrichSummaries,
		Logger:   logger,
	})

	return &app{runner: runner, store: store, close: closeStore}, nil
}
