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

	"fixora/internal/bot"
	"fixora/internal/client"
	"fixora/internal/config"
	"fixora/internal/domain"
	"fixora/internal/events"
	"fixora/internal/export"
	"fixora/internal/logging"
	"fixora/internal/metrics"
	"fixora/internal/service"
	"fixora/internal/store"
	"fixora/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const role = "bot"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := pflag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to the YAML config")
	remote := pflag.Bool("remote", false, "use the REST backend at client.base_url instead of the shared store")
	pflag.Parse()

	cfg, logger, closer, err := loadConfigAndLogger(*configPath)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if cfg.Telegram.BotToken == "" {
		return errors.New("telegram.bot_token is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Error().Err(err).Msg("init telegram bot")
		return err
	}
	botAPI.Debug = cfg.Telegram.Debug

	var botMetrics *bot.Metrics
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		botMetrics = bot.NewMetrics()
		go startMetricsServer(ctx, cfg.Monitoring.PortFor("bot"), &logger)
	}

	exporter := export.New(cfg.Exports.Path, &logger)

	if *remote || (cfg.Client.BaseURL != "" && cfg.Store.Backend == config.BackendMemory) {
		return runRemote(ctx, cfg, botAPI, exporter, botMetrics, &logger)
	}
	return runShared(ctx, cfg, botAPI, exporter, botMetrics, &logger)
}

// runShared serves the bot from the shared store and receives new bookings
// through the sync bus.
func runShared(
	ctx context.Context,
	cfg *config.Config,
	botAPI *tgbotapi.BotAPI,
	exporter *export.Exporter,
	botMetrics *bot.Metrics,
	logger *zerolog.Logger,
) error {
	shared, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Store.Backend).Msg("open store")
		return err
	}
	defer shared.Close()

	bus, logBus := events.NewTransport(cfg, role, shared, logger)

	bookingService := service.NewBookingService(shared, bus, logger)
	unlisten := bookingService.Listen(bus)
	defer unlisten()

	matchingService := service.NewMatchingService(shared, cfg.DefaultOrigin(), logger)

	telegramBot, err := bot.NewBot(bot.NewBotWrapper(botAPI), bookingService, matchingService, exporter, botMetrics, logger)
	if err != nil {
		return err
	}
	stopNotify := telegramBot.Listen(bus)
	defer stopNotify()

	if logBus != nil {
		go func() {
			if err := logBus.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("sync bus stopped")
			}
		}()
		go worker.NewCompactor(logBus, cfg.Sync.CompactEvery, cfg.Sync.Retention, logger).Start(ctx)
	}

	return runBot(ctx, telegramBot, logger)
}

// runRemote serves the bot from the REST backend. No sync events arrive, so
// pending bookings are picked up on every successful health probe.
func runRemote(
	ctx context.Context,
	cfg *config.Config,
	botAPI *tgbotapi.BotAPI,
	exporter *export.Exporter,
	botMetrics *bot.Metrics,
	logger *zerolog.Logger,
) error {
	if cfg.Client.BaseURL == "" {
		return errors.New("client.base_url is required in remote mode")
	}

	restClient := client.New(cfg.Client, logger)
	if cfg.Redis.Address != "" {
		redisClient := store.NewRedisClient(cfg.Redis)
		defer redisClient.Close()
		restClient.UseRedisCache(redisClient, cfg.Client.PollInterval)
	}

	var (
		bookings domain.BookingLifecycle = restClient.Bookings()
		matcher  domain.Matcher          = restClient.Professionals()
	)
	telegramBot, err := bot.NewBot(bot.NewBotWrapper(botAPI), bookings, matcher, exporter, botMetrics, logger)
	if err != nil {
		return err
	}

	stopPolling := restClient.StartPolling(ctx, cfg.Client.PollInterval, func() {
		pollCtx, cancel := context.WithTimeout(ctx, cfg.Client.Timeout)
		defer cancel()
		if n := telegramBot.CheckPending(pollCtx); n > 0 {
			logger.Info().Int("notified", n).Msg("Pending bookings announced")
		}
	})
	defer stopPolling()

	logger.Info().Str("base_url", cfg.Client.BaseURL).Msg("Bot running against REST backend")
	return runBot(ctx, telegramBot, logger)
}

func runBot(ctx context.Context, telegramBot *bot.Bot, logger *zerolog.Logger) error {
	done := make(chan struct{})
	go func() {
		telegramBot.Start(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	telegramBot.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn().Msg("bot did not stop in time")
	}
	return nil
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
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
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
