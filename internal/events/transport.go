package events

import (
	"strings"

	"fixora/internal/config"
	"fixora/internal/store"

	"github.com/rs/zerolog"
)

// ConsumerID returns the configured consumer id, or "<app>-<role>" so that a
// restarted process keeps reading from its own cursor.
func ConsumerID(cfg *config.Config, role string) string {
	if id := strings.TrimSpace(cfg.Sync.ConsumerID); id != "" {
		return id
	}
	app := strings.TrimSpace(cfg.App.Name)
	if app == "" {
		app = "fixora"
	}
	return app + "-" + role
}

// NewTransport builds the bus selected by cfg.Sync.Transport. The LogBus is
// returned separately so the caller can run and compact it; it is nil for the
// local transport.
func NewTransport(cfg *config.Config, role string, shared *store.Shared, logger *zerolog.Logger) (Bus, *LogBus) {
	consumerID := ConsumerID(cfg, role)

	if cfg.Sync.Transport == config.TransportLocal {
		return NewLocalBus(consumerID, logger), nil
	}

	var notifier Notifier = NopNotifier{}
	if client := shared.RedisClient(); client != nil {
		notifier = NewRedisNotifier(client, cfg.Sync.NotifyChannel, logger)
	}
	bus := NewLogBus(shared, consumerID, notifier, cfg.Sync.PollInterval, logger)
	return bus, bus
}
