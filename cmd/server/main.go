// Package main is the entrypoint for the bovinoia analysis server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/bovinoia/internal/api"
	"github.com/kiranshivaraju/bovinoia/internal/api/handler"
	mw "github.com/kiranshivaraju/bovinoia/internal/api/middleware"
	"github.com/kiranshivaraju/bovinoia/internal/breed"
	"github.com/kiranshivaraju/bovinoia/internal/cache"
	"github.com/kiranshivaraju/bovinoia/internal/classifier"
	"github.com/kiranshivaraju/bovinoia/internal/config"
	"github.com/kiranshivaraju/bovinoia/internal/emitter"
	"github.com/kiranshivaraju/bovinoia/internal/predictor"
	"github.com/kiranshivaraju/bovinoia/internal/queue"
	"github.com/kiranshivaraju/bovinoia/internal/realtime"
	"github.com/kiranshivaraju/bovinoia/internal/store"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout, os.Stderr))
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"backend", cfg.Model.Backend,
		"image_size", cfg.Model.ImageSize,
		"weight_range", fmt.Sprintf("%v-%v", cfg.Weight.Min, cfg.Weight.Max),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Breed tables and predictor
	catalog, err := loadCatalog(cfg.Model.CatalogPath)
	if err != nil {
		return fmt.Errorf("load breed catalog: %w", err)
	}
	adapter := predictor.New(catalog, predictor.Options{
		Backend:          cfg.Model.Backend,
		ImageSize:        cfg.Model.ImageSize,
		BatchSize:        cfg.Model.BatchSize,
		MaxPixels:        cfg.Model.MaxImagePixels,
		MinWeight:        cfg.Weight.Min,
		MaxWeight:        cfg.Weight.Max,
		InferenceTimeout: cfg.Model.InferenceTimeout,
	})
	defer adapter.Close()

	// 3. Queue and its observers
	q := queue.New(adapter, queue.Options{
		MaxSize:         cfg.Queue.MaxSize,
		Workers:         cfg.Queue.Workers,
		Retention:       cfg.Queue.Retention,
		CleanupInterval: cfg.Queue.CleanupInterval,
	})
	hub := realtime.NewHub(cfg.Server.AllowedOrigins)
	q.AddObserver(hub)

	services := map[string]handler.Pinger{}

	var rateLimit *mw.RateLimit
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")

		q.AddObserver(cache.NewStatusMirror(redisCache, cfg.Queue.Retention))
		rateLimit = mw.NewRateLimit(redisCache, cfg.Redis.RateLimitPerMinute)
		services["redis"] = redisCache
	}

	var history handler.History
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		pgStore := store.NewPostgresStore(pool)
		q.AddObserver(store.NewArchive(pgStore))
		history = pgStore
		services["database"] = pgStore
	}

	if cfg.MQTT.Broker != "" {
		em := emitter.NewMQTTEmitter(cfg.MQTT)
		if err := em.Connect(ctx); err != nil {
			// Results still flow to the other observers.
			slog.Warn("mqtt emitter disabled", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			defer em.Disconnect()
			q.AddObserver(em)
			slog.Info("mqtt emitter connected", "topic", cfg.MQTT.Topic, "encoding", cfg.MQTT.Encoding)
		}
	}

	if err := q.Start(ctx); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}
	defer q.Stop()

	// 4. Build router with dependencies
	router := api.NewRouter(api.Dependencies{
		RateLimit:      rateLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,

		RootHandler:        handler.NewRootHandler(version),
		HealthHandler:      handler.NewHealthHandler(q, adapter, hub, services),
		StatsHandler:       handler.NewStatsHandler(q, adapter, handler.ProcessMemoryMB),
		SubmitFrameHandler: handler.NewSubmitFrameHandler(q, cfg.Server.MaxUploadBytes),
		CheckStatusHandler: handler.NewCheckStatusHandler(q),
		AnalyzeHandler:     handler.NewAnalyzeFrameHandler(q, cfg.Server.MaxUploadBytes),
		ListHistory:        handler.NewListHistoryHandler(history),
		GetHistory:         handler.NewGetHistoryHandler(history),
		WebSocketHandler:   handler.NewWebSocketHandler(hub),
	})

	// 5. Serve, loading the model in the background
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Model.InferenceTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loadClassifier(cfg.Model, catalog, adapter)
		return nil
	})

	g.Go(func() error {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully", "queue", q.Stats())
	return nil
}

// newLogger builds the process logger: JSON on stdout, or tint's colored
// text handler on stderr for LOG_FORMAT=text.
func newLogger(cfg config.LogConfig, stdout, stderr io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	if cfg.Format == "text" {
		return slog.New(tint.NewHandler(stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}))
	}
	return slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{Level: level}))
}

func loadCatalog(path string) (*breed.Catalog, error) {
	if path == "" {
		return breed.Default(), nil
	}
	catalog, err := breed.Load(path)
	if err != nil {
		return nil, err
	}
	slog.Info("breed catalog loaded", "path", path, "breeds", catalog.Len())
	return catalog, nil
}

// loadClassifier installs the configured model. On failure the server keeps
// running and frames fail with PREDICTOR_NOT_READY.
func loadClassifier(cfg config.ModelConfig, catalog *breed.Catalog, adapter *predictor.Adapter) {
	start := time.Now()
	slog.Info("loading model", "backend", cfg.Backend, "path", cfg.Path)

	c, err := classifier.NewClassifier(cfg, catalog)
	if err != nil {
		slog.Error("model load failed", "backend", cfg.Backend, "error", err)
		return
	}
	if err := adapter.SetClassifier(c); err != nil {
		c.Close()
		slog.Error("model rejected", "backend", c.Name(), "error", err)
		return
	}

	slog.Info("model loaded",
		"backend", c.Name(),
		"labels", len(c.Labels()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
