package events

import (
	"context"
	"time"

	"fixora/internal/metrics"

	"github.com/rs/zerolog"
)

// LocalBus delivers events synchronously to subscribers in this process. It
// serves every context that shares the process and nothing beyond it.
type LocalBus struct {
	origin string
	subs   *registry
	logger *zerolog.Logger
	now    func() time.Time
}

func NewLocalBus(origin string, logger *zerolog.Logger) *LocalBus {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	busLogger := logger.With().Str("component", "local_bus").Logger()
	return &LocalBus{
		origin: origin,
		subs:   newRegistry(&busLogger),
		logger: &busLogger,
		now:    time.Now,
	}
}

func (b *LocalBus) Publish(ctx context.Context, eventType string, payload interface{}) (string, error) {
	event, err := newEvent(eventType, payload, b.origin, b.now())
	if err != nil {
		return "", err
	}

	metrics.IncEventPublished(eventType)
	b.logger.Debug().Str("event_id", event.ID).Str("event_type", eventType).Msg("Event published")
	b.subs.dispatch(ctx, event, PathLocal)
	return event.ID, nil
}

func (b *LocalBus) Subscribe(handler Handler) func() {
	return b.subs.add(handler)
}
