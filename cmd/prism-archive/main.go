package main

import (
	"context"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/prism-archive/internal/api/http"
	"github.com/i474232898/prism-archive/internal/archive"
	"github.com/i474232898/prism-archive/internal/climate"
	"github.com/i474232898/prism-archive/internal/climate/providers"
	"github.com/i474232898/prism-archive/internal/config"
	"github.com/i474232898/prism-archive/internal/logging"
	"github.com/i474232898/prism-archive/internal/metrics"
	"github.com/i474232898/prism-archive/internal/publish"
	"github.com/i474232898/prism-archive/internal/scheduler"
	"github.com/i474232898/prism-archive/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Catalog: Postgres when configured, otherwise rebuilt in memory from the archive tree.
	var catalog archive.Store
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logr.Fatal("catalog connection failed", zap.Error(err))
		}
		defer pg.Close()
		catalog = pg
	} else {
		catalog = store.NewMemoryStore()
	}

	arch, err := archive.New(cfg.ArchiveRoot, catalog, m, logr.Named("archive"))
	if err != nil {
		logr.Fatal("failed to open archive", zap.Error(err))
	}

	provider, err := providers.New(providers.Settings{
		BaseURL: cfg.SourceURL,
		Email:   cfg.SourceEmail,
		Timeout: cfg.HTTPTimeout,
	})
	if err != nil {
		logr.Fatal("invalid source", zap.Error(err))
	}

	n, err := arch.Rescan(ctx, provider.ParseLocalDescriptor)
	if err != nil {
		logr.Fatal("archive rescan failed", zap.Error(err))
	}
	logr.Info("archive indexed", zap.String("root", arch.Root()), zap.Int("assets", n))

	var publisher climate.Publisher
	if cfg.PublishBucket != "" {
		pub, err := publish.NewS3Publisher(ctx, cfg.PublishBucket, cfg.PublishPrefix, logr.Named("publish"))
		if err != nil {
			logr.Fatal("failed to configure publisher", zap.Error(err))
		}
		publisher = pub
	}

	// Core service orchestrating provider, archive and aggregation.
	service := climate.NewService(climate.Options{
		Provider:    provider,
		Installer:   arch,
		Catalog:     arch,
		StageRoot:   arch.StageDir(),
		ProductRoot: arch.ProductDir(),
		DefaultDays: cfg.CumulativeDays,
		Publisher:   publisher,
		Metrics:     m,
		Logger:      logr.Named("climate"),
	})

	// Scheduler that periodically refreshes the trailing days.
	sched := scheduler.New(service, scheduler.Options{
		Variables:      cfg.Variables,
		Interval:       cfg.FetchInterval,
		LookbackDays:   cfg.FetchLookbackDays,
		Concurrency:    cfg.FetchConcurrency,
		CumulativeDays: cfg.CumulativeDays,
		Backoff: scheduler.BackoffConfig{
			MaxRetries:      cfg.FetchMaxRetries,
			InitialInterval: 5 * time.Second,
			MaxInterval:     2 * time.Minute,
		},
		Logger: logr.Named("scheduler"),
	})
	if err := sched.Start(ctx); err != nil {
		logr.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "prism-archive",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          5 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "prism-archive",
			"archive": filepath.Clean(arch.Root()),
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logr.Warn("fiber server stopped", zap.Error(err))
		}
	}()
	logr.Info("listening", zap.String("port", cfg.Port), zap.String("source", provider.Name()))

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logr.Warn("error during shutdown", zap.Error(err))
	}
}
