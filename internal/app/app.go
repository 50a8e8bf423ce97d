package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"PDUFAScanner/internal/config"
	"PDUFAScanner/internal/handlers"
	"PDUFAScanner/internal/infrastructure/cache"
	"PDUFAScanner/internal/infrastructure/discord"
	"PDUFAScanner/internal/infrastructure/parser"
	"PDUFAScanner/internal/infrastructure/scheduler"
	"PDUFAScanner/internal/infrastructure/storage"
	"PDUFAScanner/internal/infrastructure/telegram"
	"PDUFAScanner/internal/normalize"
	"PDUFAScanner/internal/ports"
	"PDUFAScanner/internal/router"
	"PDUFAScanner/internal/scanner"
	"PDUFAScanner/internal/telemetry"
	"PDUFAScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	store     ports.Store
	scheduler *usecase.Scheduler
	server    *http.Server
}

// New builds every component. Nothing runs until Run.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, version string) (*Application, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tel, err := telemetry.NewTelemetry(logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	loc := cfg.Scheduler.Location()
	queryCache := cache.New(cfg.Cache.TTL, cfg.Cache.CleanupInterval)

	registry := scanner.NewRegistry()
	registry.Register(parser.NewCalendarScanner(nil, logger.Named("scanner.calendar")))
	registry.Register(parser.NewFeedScanner(nil, logger.Named("scanner.feed")))
	registry.Register(parser.NewAnnouncementScanner(nil, logger.Named("scanner.announcements")))
	source := parser.NewStrategySource(registry, cfg.Sites, cfg.Fetch, tel, logger.Named("source"))

	notifiers := buildNotifiers(cfg.Alerts, logger)
	if len(notifiers) == 0 {
		logger.Warn("no alert channels configured, alerts will not be delivered")
	}

	alerts := usecase.NewAlertDispatcher(usecase.AlertDeps{
		Store:         store,
		Ledger:        store,
		Notifiers:     notifiers,
		Policy:        usecase.NewRetryPolicy(cfg.Alerts.Retry),
		LookaheadDays: cfg.Alerts.LookaheadDays,
		SuppressFor:   cfg.Alerts.SuppressFor,
		Location:      loc,
		Metrics:       tel,
		Logger:        logger,
	})

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Normalizer: normalize.NewNormalizer(logger),
		Store:      store,
		Cache:      queryCache,
		Alerts:     alerts,
		Clock:      clock.WallClock,
		Metrics:    tel,
		Logger:     logger,
	})

	driver, err := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, scheduler.Options{
		Location:   loc,
		Clock:      clock.WallClock,
		RunOnStart: cfg.Scheduler.RunOnStart,
		Logger:     logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sched := usecase.NewScheduler(usecase.SchedulerDeps{
		Driver:         driver,
		CronExpression: cfg.Scheduler.CronExpression,
		Pipeline:       pipeline,
		Alerts:         alerts,
		Store:          store,
		Cache:          queryCache,
		Registry:       registry,
		Sites:          cfg.Sites,
		CycleTimeout:   cfg.Scheduler.CycleTimeout,
		Clock:          clock.WallClock,
		Logger:         logger,
	})

	queries := usecase.NewQueryService(usecase.QueryDeps{
		Store:    store,
		Cache:    queryCache,
		TTL:      cfg.Cache.TTL,
		Location: loc,
		Clock:    clock.WallClock,
		Metrics:  tel,
	})

	var limiter *rate.Limiter
	if cfg.Server.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst)
	}

	handlerList := []router.Handler{
		handlers.NewHealthHandler(version),
		handlers.NewPDUFAHandler(queries),
		handlers.NewSchedulerHandler(sched, queries),
		handlers.NewMetricsHandler(tel.Handler()),
	}
	appRouter := router.NewRouter(limiter, tel, logger, handlerList)
	server := appRouter.CreateServer(":"+cfg.Server.Port, router.Timeouts{
		Read:  cfg.Server.ReadTimeout,
		Write: cfg.Server.WriteTimeout,
		Idle:  2 * cfg.Server.WriteTimeout,
	})

	return &Application{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		store:     store,
		scheduler: sched,
		server:    server,
	}, nil
}

func buildNotifiers(cfg config.AlertConfig, logger *zap.Logger) []ports.Notifier {
	var notifiers []ports.Notifier
	if cfg.Discord.WebhookURL != "" {
		notifiers = append(notifiers, discord.NewNotifier(cfg.Discord.WebhookURL, cfg.Discord.Username, nil, logger))
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notifiers = append(notifiers, telegram.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, nil, logger))
	}
	return notifiers
}

// Run binds the listener, serves, starts the scheduler and blocks until ctx
// ends or the server fails. Shutdown stops the scheduler first: an in-flight
// cycle finishes its writes and late manual checks get 503 before the store
// closes.
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		a.closeResources()
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}
	a.logger.Info("server listening", zap.String("addr", ln.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := a.scheduler.Start(ctx); err != nil {
		a.logger.Error("scheduler failed to start", zap.Error(err))
		return errors.Join(err, a.shutdown())
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
		a.logger.Error("server failed", zap.Error(err))
	}
	return errors.Join(runErr, a.shutdown())
}

func (a *Application) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.scheduler.Stop(ctx); err != nil {
		a.logger.Error("scheduler stop incomplete", zap.Error(err))
		errs = append(errs, err)
	}
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("server forced to shutdown", zap.Error(err))
		errs = append(errs, err)
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	a.logger.Info("shutdown complete", zap.Duration("timeout", a.cfg.Server.ShutdownTimeout))
	return errors.Join(errs...)
}

func (a *Application) closeResources() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.telemetry.Shutdown(shutdownCtx)
	_ = a.store.Close()
}
