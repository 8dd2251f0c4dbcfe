// Package events carries sync events between contexts. Publishing reaches
// subscribers of the publishing context immediately and, depending on the
// transport, subscribers of other contexts sharing the same store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fixora/internal/metrics"
	"fixora/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	PathLocal  = "local"
	PathRemote = "remote"
)

// Handler reacts to a delivered event. Handlers run synchronously on the
// publishing goroutine (local path) or on the bus loop (remote path).
type Handler = func(ctx context.Context, event models.SyncEvent)

// Bus publishes events and registers handlers.
type Bus interface {
	Publish(ctx context.Context, eventType string, payload interface{}) (string, error)
	Subscribe(handler Handler) (unsubscribe func())
}

// NewBookingPayload is the data of a new_booking event.
type NewBookingPayload struct {
	BookingID      string         `json:"bookingId"`
	Booking        models.Booking `json:"booking"`
	ProfessionalID string         `json:"professionalId"`
	CustomerName   string         `json:"customerName"`
}

// StatusUpdatePayload is the data of booking_status_update and booking_response events.
type StatusUpdatePayload struct {
	BookingID      string `json:"bookingId"`
	Status         string `json:"status"`
	ProfessionalID string `json:"professionalId,omitempty"`
}

// NewEventID returns "<unix millis>_<9 random chars>". Ids are unlikely but
// not guaranteed to be unique; stores reject a duplicate id on insert.
func NewEventID(now time.Time) string {
	return fmt.Sprintf("%d_%s", now.UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}

func newEvent(eventType string, payload interface{}, origin string, now time.Time) (models.SyncEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.SyncEvent{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return models.SyncEvent{
		ID:        NewEventID(now),
		Type:      eventType,
		Payload:   raw,
		Timestamp: now,
		Origin:    origin,
	}, nil
}

// registry keeps handlers in subscription order.
type registry struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]Handler
	order    []uint64
	logger   *zerolog.Logger
}

func newRegistry(logger *zerolog.Logger) *registry {
	return &registry{handlers: make(map[uint64]Handler), logger: logger}
}

func (r *registry) add(handler Handler) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[id] = handler
	r.order = append(r.order, id)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.handlers, id)
			for i, v := range r.order {
				if v == id {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (r *registry) snapshot() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Handler, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.handlers[id])
	}
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// dispatch hands event to every handler. A panicking handler is logged and
// does not stop delivery to the rest.
func (r *registry) dispatch(ctx context.Context, event models.SyncEvent, path string) {
	for _, handler := range r.snapshot() {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error().Interface("panic", rec).
						Str("event_id", event.ID).Str("event_type", event.Type).
						Msg("Sync event handler panicked")
				}
			}()
			handler(ctx, event)
		}()
		metrics.IncEventDelivered(event.Type, path)
	}
}

// sortEvents orders events by timestamp, then id.
func sortEvents(list []models.SyncEvent) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].Timestamp.Before(list[j].Timestamp)
		}
		return list[i].ID < list[j].ID
	})
}
