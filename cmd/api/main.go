package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fixora/internal/api"
	"fixora/internal/config"
	"fixora/internal/events"
	"fixora/internal/export"
	"fixora/internal/logging"
	"fixora/internal/metrics"
	"fixora/internal/models"
	"fixora/internal/service"
	"fixora/internal/store"
	"fixora/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"
)

const role = "api"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := pflag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to the YAML config")
	seedPath := pflag.String("seed", os.Getenv("SEED_PATH"), "YAML file with professionals to insert on startup")
	pflag.Parse()

	cfg, logger, closer, err := loadConfigAndLogger(*configPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shared, err := store.Open(ctx, cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Store.Backend).Msg("open store")
		return err
	}
	defer shared.Close()

	bus, logBus := events.NewTransport(cfg, role, shared, &logger)

	bookingService := service.NewBookingService(shared, bus, &logger)
	unlisten := bookingService.Listen(bus)
	defer unlisten()

	matchingService := service.NewMatchingService(shared, cfg.DefaultOrigin(), &logger)
	if err := seedProfessionals(ctx, cfg, *seedPath, matchingService, &logger); err != nil {
		return err
	}

	startBackground(ctx, cfg, shared, logBus, &logger)
	startMetrics(ctx, cfg, &logger)

	exporter := export.New(cfg.Exports.Path, &logger)
	httpServer := api.NewServer(cfg.API, bookingService, matchingService, exporter, shared, &logger)

	return serve(ctx, httpServer, &logger)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfigAndLogger(configPath string) (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App, events.ConsumerID(cfg, role))
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadSeed(path string) ([]models.Professional, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var seed struct {
		Professionals []models.Professional `yaml:"professionals"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, err
	}
	if err := config.ValidateProfessionals(seed.Professionals); err != nil {
		return nil, err
	}
	return seed.Professionals, nil
}

func seedProfessionals(ctx context.Context, cfg *config.Config, flagPath string, matcher *service.MatchingService, logger *zerolog.Logger) error {
	path := flagPath
	if path == "" {
		path = cfg.Matching.SeedPath
	}

	if path != "" {
		professionals, err := loadSeed(path)
		if err != nil {
			logger.Error().Err(err).Str("seed_path", path).Msg("load seed professionals")
			return err
		}
		inserted, err := matcher.Seed(ctx, professionals)
		if err != nil {
			return fmt.Errorf("seed professionals: %w", err)
		}
		logger.Info().Int("inserted", inserted).Int("total", len(professionals)).Msg("Professionals seeded")
	}

	if cfg.Matching.SeedDemo {
		inserted, err := matcher.SeedDemo(ctx)
		if err != nil {
			return fmt.Errorf("seed demo professionals: %w", err)
		}
		logger.Info().Int("inserted", inserted).Msg("Demo professionals seeded")
	}
	return nil
}

func startBackground(ctx context.Context, cfg *config.Config, shared *store.Shared, logBus *events.LogBus, logger *zerolog.Logger) {
	if logBus != nil {
		go func() {
			if err := logBus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("sync bus stopped")
			}
		}()
		compactor := worker.NewCompactor(logBus, cfg.Sync.CompactEvery, cfg.Sync.Retention, logger)
		go compactor.Start(ctx)
	}

	if sqliteBackend, ok := shared.Backend().(*store.SQLiteBackend); ok && cfg.Backup.Enabled {
		go store.NewBackupService(sqliteBackend, cfg.Backup, logger).Start(ctx)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PortFor("api"), logger)
}

func serve(ctx context.Context, httpServer *api.Server, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
