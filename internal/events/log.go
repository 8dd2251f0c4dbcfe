package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fixora/internal/metrics"
	"fixora/internal/models"
	"fixora/internal/store"

	"github.com/rs/zerolog"
)

const publishAttempts = 3

// LogBus is the durable transport. Published events are appended to the
// shared sync log; Run delivers events written by other contexts and records
// each delivery in this consumer's own cursor.
//
// Delivery is at least once: the handler runs before the ack is stored.
type LogBus struct {
	consumerID   string
	syncLog      *store.Collection[models.SyncEvent]
	cursors      *store.Collection[models.Cursor]
	notifier     Notifier
	pollInterval time.Duration
	subs         *registry
	logger       *zerolog.Logger
	now          func() time.Time

	pollMu sync.Mutex
}

func NewLogBus(shared *store.Shared, consumerID string, notifier Notifier, pollInterval time.Duration, logger *zerolog.Logger) *LogBus {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	busLogger := logger.With().Str("component", "log_bus").Str("consumer_id", consumerID).Logger()
	return &LogBus{
		consumerID:   consumerID,
		syncLog:      shared.SyncLog(),
		cursors:      shared.Cursors(),
		notifier:     notifier,
		pollInterval: pollInterval,
		subs:         newRegistry(&busLogger),
		logger:       &busLogger,
		now:          time.Now,
	}
}

// ConsumerID identifies this context in event origins and cursors.
func (b *LogBus) ConsumerID() string { return b.consumerID }

// Publish appends the event to the sync log, then delivers it to local
// subscribers and wakes up other contexts. A failed append is returned and
// nothing is delivered.
func (b *LogBus) Publish(ctx context.Context, eventType string, payload interface{}) (string, error) {
	var event models.SyncEvent
	var err error
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		event, err = newEvent(eventType, payload, b.consumerID, b.now())
		if err != nil {
			return "", err
		}
		err = b.syncLog.Insert(ctx, event.ID, event)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		b.logger.Warn().Str("event_id", event.ID).Msg("Event id already in sync log, generating a new one")
	}
	if err != nil {
		return "", fmt.Errorf("append %s to sync log: %w", eventType, err)
	}

	metrics.IncEventPublished(eventType)
	b.logger.Debug().Str("event_id", event.ID).Str("event_type", eventType).Msg("Event published")

	b.subs.dispatch(ctx, event, PathLocal)

	if err := b.notifier.Notify(ctx); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to notify other contexts, they will catch up on poll")
	}
	return event.ID, nil
}

func (b *LogBus) Subscribe(handler Handler) func() {
	return b.subs.add(handler)
}

// Run delivers remote events until ctx is cancelled, checking the log on
// every poll tick and on every change notification.
func (b *LogBus) Run(ctx context.Context) error {
	changes := b.notifier.Changes(ctx)
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	b.logger.Info().Dur("poll_interval", b.pollInterval).Msg("Sync bus started")
	b.pollAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Sync bus stopped")
			return nil
		case <-ticker.C:
			b.pollAndLog(ctx)
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			b.pollAndLog(ctx)
		}
	}
}

func (b *LogBus) pollAndLog(ctx context.Context) {
	if _, err := b.Poll(ctx); err != nil && ctx.Err() == nil {
		b.logger.Error().Err(err).Msg("Sync log poll failed")
	}
}

// Poll delivers every event from other contexts that this consumer has not
// acked yet, oldest first, and returns how many were delivered. Nothing is
// consumed while there are no subscribers.
func (b *LogBus) Poll(ctx context.Context) (int, error) {
	b.pollMu.Lock()
	defer b.pollMu.Unlock()

	if b.subs.count() == 0 {
		return 0, nil
	}

	cursor, err := b.cursors.Get(ctx, b.consumerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	var pending []models.SyncEvent
	for _, event := range b.syncLog.ReadAll(ctx) {
		if event.Origin == b.consumerID || cursor.IsAcked(event.ID) {
			continue
		}
		pending = append(pending, event)
	}
	sortEvents(pending)

	delivered := 0
	for _, event := range pending {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		b.subs.dispatch(ctx, event, PathRemote)
		delivered++
		if err := b.ack(ctx, event.ID); err != nil {
			return delivered, fmt.Errorf("ack %s: %w", event.ID, err)
		}
	}
	return delivered, nil
}

func (b *LogBus) ack(ctx context.Context, eventID string) error {
	now := b.now()
	_, err := b.cursors.Update(ctx, b.consumerID, func(c *models.Cursor) error {
		c.Ack(eventID, now)
		return nil
	})
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	cursor := models.Cursor{ConsumerID: b.consumerID}
	cursor.Ack(eventID, now)
	err = b.cursors.Insert(ctx, b.consumerID, cursor)
	if errors.Is(err, store.ErrConflict) {
		// created concurrently by another handle of the same consumer
		return b.ack(ctx, eventID)
	}
	return err
}

// Compact deletes sync events older than cutoff and drops acks that no
// longer refer to a retained event. It returns the number of deleted events.
func (b *LogBus) Compact(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	live := make(map[string]bool)
	for id, event := range b.syncLog.ReadAll(ctx) {
		if !event.Timestamp.Before(cutoff) {
			live[id] = true
			continue
		}
		if err := b.syncLog.Delete(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}

	keep := func(eventID string) bool { return live[eventID] }
	for consumerID := range b.cursors.ReadAll(ctx) {
		_, err := b.cursors.Update(ctx, consumerID, func(c *models.Cursor) error {
			c.Prune(cutoff, keep)
			return nil
		})
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return removed, err
		}
	}
	return removed, nil
}
