package app

import (
	"context"
	"fmt"
	"log/slog"

	"NewsStream/internal/config"
	"NewsStream/internal/domain"
	"NewsStream/internal/infrastructure/parser"
	"NewsStream/internal/infrastructure/storage"
	"NewsStream/internal/infrastructure/telegram"
	"NewsStream/internal/logging"
	"NewsStream/internal/scanner"
	"NewsStream/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Repository
	collector *usecase.Collector
	selector  *usecase.Selector
}

// New opens the store, applies the schema and builds the delivery stack.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Ensure(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	registry := scanner.NewRegistry()
	parser.Register(registry, parser.HTTPOptions{
		Timeout:           cfg.HTTP.Timeout,
		UserAgent:         cfg.HTTP.UserAgent,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
	})
	sources, err := registry.Build(cfg.ScannerSites(), baseLogger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build sources: %w", err)
	}

	collector := usecase.NewCollector(usecase.CollectorDeps{
		Sources:                 sources,
		Items:                   store,
		Logger:                  logging.Component(baseLogger, "collector"),
		MaxFetchConcurrency:     cfg.Delivery.MaxFetchConcurrency,
		MaxTimestampConcurrency: cfg.Delivery.MaxTimestampConcurrency,
		CallTimeout:             cfg.Delivery.CallTimeout,
	})
	selector := usecase.NewSelector(usecase.SelectorDeps{
		Collector:     collector,
		Items:         store,
		History:       store,
		RefreshWindow: cfg.Delivery.RefreshWindow,
		Logger:        logging.Component(baseLogger, "selector"),
	})

	baseLogger.Debug("application ready",
		"driver", cfg.Database.Driver,
		"sources", len(sources))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		collector: collector,
		selector:  selector,
	}, nil
}

// Close releases the store.
func (a *Application) Close() error {
	return a.store.Close()
}

// Serve runs the Telegram bot until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	client, err := telegram.NewClient(a.cfg.Telegram.APIURL, a.cfg.Telegram.BotToken, nil)
	if err != nil {
		return fmt.Errorf("telegram client: %w", err)
	}
	bot := telegram.NewBot(telegram.BotDeps{
		Updates:     client,
		Messenger:   client,
		Items:       a.selector,
		PollTimeout: a.cfg.Telegram.PollTimeout,
		Logger:      logging.Component(a.logger, "telegram"),
	})
	return bot.Run(ctx)
}

// Next serves one request for consumer, refreshing first when stale.
func (a *Application) Next(ctx context.Context, consumer domain.ConsumerID) (domain.Item, bool, error) {
	return a.selector.NextItem(ctx, consumer)
}

// Refresh runs one orchestration pass regardless of the refresh window.
func (a *Application) Refresh(ctx context.Context) (usecase.PassStats, error) {
	return a.collector.Run(ctx)
}

// History lists the latest deliveries for consumer.
func (a *Application) History(ctx context.Context, consumer domain.ConsumerID, limit uint64) ([]domain.Delivery, error) {
	return a.store.Deliveries(ctx, consumer, limit)
}
