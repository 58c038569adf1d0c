package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketpicture/internal/config"
	"marketpicture/internal/export"
	"marketpicture/internal/history"
	"marketpicture/internal/job"
	"marketpicture/internal/narrative"
	"marketpicture/internal/platform/sqlite"
	"marketpicture/internal/provider"
	"marketpicture/internal/provider/fred"
	"marketpicture/internal/provider/twelvedata"
	"marketpicture/internal/ratelimit"
	"marketpicture/internal/regime"
	barrepo "marketpicture/internal/repository/bar"
	jobrepo "marketpicture/internal/repository/job"
	searchrepo "marketpicture/internal/repository/search"
	snapshotrepo "marketpicture/internal/repository/snapshot"
	summaryrepo "marketpicture/internal/repository/summary"
	"marketpicture/internal/schedule"
	"marketpicture/internal/search"
	"marketpicture/internal/server"
	"marketpicture/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults apply when unset)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Root context: cancelled on SIGINT/SIGTERM so in-flight provider calls
	// and background workers stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Repositories
	barRepo := barrepo.NewRepository(db.DB)
	jobRepo := jobrepo.NewRepository(db.DB)
	snapRepo := snapshotrepo.NewRepository(db.DB)
	summaryRepo := summaryrepo.NewRepository(db.DB)
	searchRepo := searchrepo.NewRepository(db.DB)

	// Shared credit budget for every Twelve Data call.
	limiter := ratelimit.New(cfg.RateLimit.PerMinute, cfg.RateLimit.InteractiveReserve)

	// Providers
	td := twelvedata.New(cfg.TwelveData.APIKey,
		twelvedata.WithBaseURL(cfg.TwelveData.BaseURL),
		twelvedata.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TwelveData.TimeoutSeconds) * time.Second}),
		twelvedata.WithLimiter(limiter),
		twelvedata.WithRetries(cfg.TwelveData.MaxRetries, time.Duration(cfg.TwelveData.RetryBackoffMs)*time.Millisecond),
	)
	fredClient := fred.New(cfg.FRED.APIKey,
		fred.WithBaseURL(cfg.FRED.BaseURL),
		fred.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.FRED.TimeoutSeconds) * time.Second}),
		fred.WithConcurrency(cfg.FRED.Concurrency),
	)

	registry := provider.NewRegistry()
	registry.Register(td)
	registry.Register(fredClient)

	quotes := map[string]provider.QuoteProvider{
		td.Source():         td,
		fredClient.Source(): fredClient,
	}

	symbols := make([]string, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		symbols = append(symbols, a.Symbol)
	}

	// Services
	jobSvc := job.NewService(jobRepo)
	historySvc := history.NewService(barRepo, jobRepo, registry, td, cfg.SourceFor)
	historySvc.SetMaxAttempts(cfg.Queue.MaxAttempts)

	isOpen := func(market string, now time.Time) bool {
		return schedule.IsOpen(cfg.Markets, market, now)
	}
	snapshotSvc := snapshot.NewService(snapRepo, barRepo, quotes, cfg.Assets, isOpen, regime.Thresholds{
		SMAPeriod:        cfg.Regime.SPXMAPeriod,
		VolSpikePct:      cfg.Regime.VolSpikePct,
		VolDropPct:       cfg.Regime.VolDropPct,
		HYSpreadRiskOff:  cfg.Regime.HYSpreadRiskOff,
		HYSpreadRiskOn:   cfg.Regime.HYSpreadRiskOn,
		HYWideningBps:    cfg.Regime.HYWideningBps,
		DollarSpikePct:   cfg.Regime.DollarSpikePct,
		GoldSafeHavenPct: cfg.Regime.GoldSafeHavenPct,
	})

	generator := narrative.NewGenerator(
		cfg.Narrative.Endpoint,
		cfg.Narrative.APIKey,
		cfg.Narrative.Model,
		time.Duration(cfg.Narrative.TimeoutSeconds)*time.Second,
	)
	narrativeSvc := narrative.NewService(generator, summaryRepo, snapshotSvc)

	searchSvc := search.NewService(searchRepo, td)
	searchSvc.SetTTL(time.Duration(cfg.TwelveData.SearchCacheTTLHours) * time.Hour)

	exporter := export.NewExporter(cfg.Export.Dir, barRepo)

	// Worker pool: picks up pending backfill jobs in the background
	pool := job.NewWorkerPool(jobRepo, historySvc, cfg.Queue.Workers)
	historySvc.SetNotify(pool.Notify)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(rootCtx)
		close(poolDone)
	}()

	// Re-queue interrupted jobs (pending/running) so workers pick them up.
	if err := jobSvc.RecoverStaleJobs(rootCtx); err != nil {
		slog.Error("failed to recover stale jobs", "error", err)
	}
	// Warm the cache: backfill configured assets that have no bars yet and
	// catch up on days missed while the process was down.
	if n, err := historySvc.EnqueueMissingBackfills(rootCtx, symbols); err != nil {
		slog.Error("failed to enqueue warmup backfills", "error", err)
	} else if n > 0 {
		slog.Info("enqueued warmup backfills", "jobs", n)
	}
	if n, err := historySvc.EnqueueCatchUpAppends(rootCtx); err != nil {
		slog.Error("failed to enqueue catch-up appends", "error", err)
	} else if n > 0 {
		slog.Info("enqueued catch-up appends", "jobs", n)
	}
	pool.Notify()

	// Scheduler: recurring quote polls and fixed-time daily tasks.
	scheduler, err := schedule.New(cfg.Schedule, schedule.Tasks{
		QuotePoll: func(ctx context.Context) error {
			_, err := snapshotSvc.PollQuotes(ctx)
			return err
		},
		PremarketQuotes: func(ctx context.Context) error {
			_, err := snapshotSvc.PollAll(ctx)
			return err
		},
		PremarketSummary: func(ctx context.Context) error {
			_, err := narrativeSvc.GenerateSummary(ctx, narrative.PeriodPremarket)
			return err
		},
		FREDRefresh: func(ctx context.Context) error {
			_, err := snapshotSvc.RefreshFRED(ctx)
			return err
		},
		DailyAppend: func(ctx context.Context) error {
			_, err := historySvc.EnqueueDailyAppends(ctx)
			return err
		},
		CloseSummary: func(ctx context.Context) error {
			_, err := narrativeSvc.GenerateSummary(ctx, narrative.PeriodClose)
			return err
		},
	})
	if err != nil {
		slog.Error("invalid schedule config", "error", err)
		os.Exit(1)
	}
	schedulerDone := make(chan struct{})
	go func() {
		scheduler.Run(rootCtx)
		close(schedulerDone)
	}()

	// HTTP server: rootCtx is the base context, so every request context is
	// cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Server.Port, server.Services{
		History:   historySvc,
		Jobs:      jobSvc,
		Snapshots: snapshotSvc,
		Summaries: narrativeSvc,
		Search:    searchSvc,
		Exporter:  exporter,
	})

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Server.Port)
	<-done

	// Cancel root context first so in-flight requests, the scheduler and the
	// worker pool begin winding down immediately.
	rootCancel()

	// Wait for background goroutines to drain before shutting down HTTP.
	<-poolDone
	<-schedulerDone

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadAndValidate(path)
}
