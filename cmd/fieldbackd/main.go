// Command fieldbackd runs the field-reporting backend: HTTP API, the
// asynchronous insight-enrichment queue, and the weekly report scheduler.
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

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/fieldback/audit"
	"github.com/hazyhaar/fieldback/auth"
	"github.com/hazyhaar/fieldback/catalog"
	"github.com/hazyhaar/fieldback/config"
	"github.com/hazyhaar/fieldback/dbopen"
	"github.com/hazyhaar/fieldback/enrich"
	"github.com/hazyhaar/fieldback/fetch"
	"github.com/hazyhaar/fieldback/insight"
	"github.com/hazyhaar/fieldback/llm"
	"github.com/hazyhaar/fieldback/mail"
	"github.com/hazyhaar/fieldback/ocr"
	"github.com/hazyhaar/fieldback/qa"
	"github.com/hazyhaar/fieldback/report"
	"github.com/hazyhaar/fieldback/sentiment"
	"github.com/hazyhaar/fieldback/server"
	"github.com/hazyhaar/fieldback/speech"
)

func main() {
	configPath := flag.String("config", "", "path to fieldback.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	if cfg.JWT.Secret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}
	jwtSecret := []byte(cfg.JWT.Secret)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(catalog.Schema),
		dbopen.WithSchema(insight.Schema),
		dbopen.WithSchema(report.Schema),
		dbopen.WithSchema(audit.Schema),
	)
	if err != nil {
		logger.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	insights := insight.NewStore(db)
	cat := catalog.NewStore(db)
	reports := report.NewStore(db)
	events := audit.NewLogger(db, 256, logger)
	defer events.Close()

	if cfg.SuperAdmin.Password != "" {
		hash, err := auth.HashPassword(cfg.SuperAdmin.Password)
		if err != nil {
			logger.Error("hash super admin password", "error", err)
			os.Exit(1)
		}
		if err := cat.SeedSuperAdmin(ctx, cfg.SuperAdmin.Username, hash); err != nil {
			logger.Error("seed super admin", "error", err)
			os.Exit(1)
		}
	}

	// Enrichment services. Missing endpoints leave the pipeline in
	// heuristic-only mode; the processor treats absent clients as
	// disabled sources.
	model := llm.New(llm.Config{
		Endpoint: cfg.AI.Endpoint,
		APIKey:   cfg.AI.APIKey,
		Model:    cfg.AI.Model,
		Logger:   logger,
	})
	classifier := sentiment.NewClassifier(model, logger)

	proc := enrich.ProcessorConfig{
		Insights:   insights,
		Fetcher:    fetch.New(fetch.Config{}),
		Refiner:    ocr.NewRefiner(model),
		Classifier: classifier,
		Events:     events,
		Logger:     logger,
		Language:   cfg.AI.Language,
		OCRLangs:   cfg.AI.OCRLanguages,
	}
	if cfg.AI.Endpoint != "" {
		proc.Transcriber = speech.New(speech.Config{
			Endpoint: cfg.AI.Endpoint,
			APIKey:   cfg.AI.APIKey,
			Model:    cfg.AI.WhisperModel,
			Logger:   logger,
		})
	}
	if cfg.AI.OCREndpoint != "" {
		proc.Extractor = ocr.New(ocr.Config{
			Endpoint: cfg.AI.OCREndpoint,
			APIKey:   cfg.AI.OCRAPIKey,
			Logger:   logger,
		})
	}
	processor := enrich.NewProcessor(proc)

	queue := enrich.NewQueue(processor.Enrich, logger)
	queue.Start(ctx)
	defer queue.Stop()

	generator := report.NewGenerator(report.GeneratorConfig{
		Reports:  reports,
		Insights: insights,
		Catalog:  cat,
		Events:   events,
		Logger:   logger,
		OutDir:   cfg.Reports.Dir,
	})

	srv := server.New(server.Config{
		Insights:           insights,
		Catalog:            cat,
		Reports:            reports,
		Generator:          generator,
		QA:                 qa.NewService(reports, model, logger),
		Queue:              queue,
		Events:             events,
		Mail:               mail.NewSender(cfg.SMTP),
		JWTSecret:          jwtSecret,
		JWTTTL:             cfg.JWT.TTL,
		SuperAdminUsername: cfg.SuperAdmin.Username,
		SuperAdminPassword: cfg.SuperAdmin.Password,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes(),
		AuthPerMin:         cfg.Server.RateLimit.AuthPerMin,
		UploadPerMin:       cfg.Server.RateLimit.UploadPerMin,
		QAPerMin:           cfg.Server.RateLimit.QAPerMin,
		Logger:             logger,
	})

	if cfg.Reports.Schedule {
		go weeklyReportLoop(ctx, generator, logger)
	}
	if cfg.Retention.PurgeRaw {
		go retentionLoop(ctx, insights, events, cfg.Retention.RawWeeksToKeep, logger)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "listen", cfg.Server.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// weeklyReportLoop runs the full report sweep shortly after every ISO week
// rollover (Monday 06:00 local time) for the week that just ended.
func weeklyReportLoop(ctx context.Context, gen *report.Generator, logger *slog.Logger) {
	for {
		next := nextMonday(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		weekID := report.WeekID(next.AddDate(0, 0, -1))
		n, err := gen.GenerateAll(ctx, weekID)
		if err != nil {
			logger.Error("weekly report sweep", "week_id", weekID, "error", err)
			continue
		}
		logger.Info("weekly report sweep done", "week_id", weekID, "generated", n)
	}
}

func nextMonday(now time.Time) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), 6, 0, 0, 0, now.Location())
	for !t.After(now) || t.Weekday() != time.Monday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// retentionLoop purges raw insights older than the configured number of
// weeks, once a day. weeks == 0 keeps everything.
func retentionLoop(ctx context.Context, insights *insight.Store, events *audit.Logger, weeks int, logger *slog.Logger) {
	if weeks <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cutoff := time.Now().AddDate(0, 0, -7*weeks).UnixMilli()
		n, err := insights.PurgeBefore(ctx, cutoff)
		if err != nil {
			logger.Error("retention purge", "error", err)
			continue
		}
		if n > 0 {
			events.Record(audit.EventRetentionPurged, map[string]any{"deleted": n, "cutoff_ms": cutoff})
			logger.Info("retention purge", "deleted", n)
		}
	}
}
