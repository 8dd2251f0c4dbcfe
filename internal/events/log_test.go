package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"fixora/internal/config"
	"fixora/internal/models"
	"fixora/internal/store"
	"fixora/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSharedForTest(backend store.Backend) *store.Shared {
	retry := worker.RetryPolicy{MaxRetries: 20, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return store.NewShared(backend, retry, nil)
}

type recorder struct {
	mu     sync.Mutex
	events []models.SyncEvent
}

func (r *recorder) handle(_ context.Context, event models.SyncEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.ID)
	}
	return out
}

func TestLogBus_PublishAppendsAndDeliversLocally(t *testing.T) {
	ctx := context.Background()
	shared := newSharedForTest(store.NewMemoryBackend())
	bus := NewLogBus(shared, "customer", nil, time.Second, nil)

	local := &recorder{}
	bus.Subscribe(local.handle)

	id, err := bus.Publish(ctx, models.EventNewBooking, NewBookingPayload{BookingID: "b1", ProfessionalID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, []string{id}, local.ids())

	stored, err := shared.SyncLog().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.EventNewBooking, stored.Type)
	assert.Equal(t, "customer", stored.Origin)
	assert.False(t, stored.Processed)
}

func TestLogBus_CrossContextDelivery(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	customer := NewLogBus(newSharedForTest(backend), "customer", nil, time.Second, nil)
	professional := NewLogBus(newSharedForTest(backend), "professional", nil, time.Second, nil)

	customerSeen := &recorder{}
	professionalSeen := &recorder{}
	customer.Subscribe(customerSeen.handle)
	professional.Subscribe(professionalSeen.handle)

	first, err := customer.Publish(ctx, models.EventNewBooking, NewBookingPayload{BookingID: "b1"})
	require.NoError(t, err)
	second, err := customer.Publish(ctx, models.EventNewBooking, NewBookingPayload{BookingID: "b2"})
	require.NoError(t, err)

	assert.Empty(t, professionalSeen.ids())

	n, err := professional.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{first, second}, professionalSeen.ids())

	n, err = professional.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "acked events are not delivered again")

	n, err = customer.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "own events arrive only on the local path")
	assert.Len(t, customerSeen.ids(), 2)

	reply, err := professional.Publish(ctx, models.EventBookingStatusUpdate,
		StatusUpdatePayload{BookingID: "b1", Status: models.StatusAccepted})
	require.NoError(t, err)
	n, err = customer.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, customerSeen.ids(), reply)
}

func TestLogBus_CursorSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	customer := NewLogBus(newSharedForTest(backend), "customer", nil, time.Second, nil)
	_, err := customer.Publish(ctx, models.EventNewBooking, NewBookingPayload{BookingID: "b1"})
	require.NoError(t, err)

	first := NewLogBus(newSharedForTest(backend), "professional", nil, time.Second, nil)
	firstSeen := &recorder{}
	first.Subscribe(firstSeen.handle)
	_, err = first.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, firstSeen.ids(), 1)

	restarted := NewLogBus(newSharedForTest(backend), "professional", nil, time.Second, nil)
	restartedSeen := &recorder{}
	restarted.Subscribe(restartedSeen.handle)
	n, err := restarted.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	other := NewLogBus(newSharedForTest(backend), "admin", nil, time.Second, nil)
	otherSeen := &recorder{}
	other.Subscribe(otherSeen.handle)
	n, err = other.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "each consumer keeps its own cursor")
}

func TestLogBus_NoSubscribersConsumesNothing(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	customer := NewLogBus(newSharedForTest(backend), "customer", nil, time.Second, nil)
	professional := NewLogBus(newSharedForTest(backend), "professional", nil, time.Second, nil)

	_, err := customer.Publish(ctx, models.EventNewBooking, NewBookingPayload{BookingID: "b1"})
	require.NoError(t, err)

	n, err := professional.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	seen := &recorder{}
	professional.Subscribe(seen.handle)
	n, err = professional.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLogBus_DeliversInTimestampOrder(t *testing.T) {
	ctx := context.Background()
	shared := newSharedForTest(store.NewMemoryBackend())
	base := time.Now()
	offsets := map[string]time.Duration{"3": 0, "1": -2 * time.Second, "2": -time.Second}
	for id, offset := range offsets {
		event := models.SyncEvent{ID: id, Type: "t", Timestamp: base.Add(offset), Origin: "elsewhere"}
		require.NoError(t, shared.SyncLog().Insert(ctx, id, event))
	}

	bus := NewLogBus(shared, "me", nil, time.Second, nil)
	seen := &recorder{}
	bus.Subscribe(seen.handle)
	_, err := bus.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, seen.ids())
}

func TestLogBus_RunStopsOnCancel(t *testing.T) {
	backend := store.NewMemoryBackend()
	customer := NewLogBus(newSharedForTest(backend), "customer", nil, time.Second, nil)
	professional := NewLogBus(newSharedForTest(backend), "professional", nil, 10*time.Millisecond, nil)

	delivered := make(chan models.SyncEvent, 1)
	professional.Subscribe(func(_ context.Context, event models.SyncEvent) { delivered <- event })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- professional.Run(ctx) }()

	id, err := customer.Publish(context.Background(), models.EventNewBooking, NewBookingPayload{BookingID: "b1"})
	require.NoError(t, err)

	select {
	case event := <-delivered:
		assert.Equal(t, id, event.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered by the poll loop")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestLogBus_Compact(t *testing.T) {
	ctx := context.Background()
	shared := newSharedForTest(store.NewMemoryBackend())
	now := time.Now()

	require.NoError(t, shared.SyncLog().Insert(ctx, "old", models.SyncEvent{ID: "old", Timestamp: now.Add(-48 * time.Hour), Origin: "x"}))
	require.NoError(t, shared.SyncLog().Insert(ctx, "new", models.SyncEvent{ID: "new", Timestamp: now, Origin: "x"}))

	cursor := models.Cursor{ConsumerID: "me"}
	cursor.Ack("old", now.Add(-47*time.Hour))
	cursor.Ack("new", now.Add(-47*time.Hour))
	require.NoError(t, shared.Cursors().Insert(ctx, "me", cursor))

	bus := NewLogBus(shared, "me", nil, time.Second, nil)
	removed, err := bus.Compact(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	remaining := shared.SyncLog().ReadAll(ctx)
	assert.Len(t, remaining, 1)
	assert.Contains(t, remaining, "new")

	stored, err := shared.Cursors().Get(ctx, "me")
	require.NoError(t, err)
	assert.False(t, stored.IsAcked("old"))
	assert.True(t, stored.IsAcked("new"), "acks of retained events survive")
}

func TestNewTransport(t *testing.T) {
	shared := newSharedForTest(store.NewMemoryBackend())

	cfg := &config.Config{Sync: config.SyncConfig{Transport: config.TransportLocal}}
	bus, logBus := NewTransport(cfg, "api", shared, nil)
	assert.IsType(t, &LocalBus{}, bus)
	assert.Nil(t, logBus)

	cfg = &config.Config{
		App:  config.AppConfig{Name: "market"},
		Sync: config.SyncConfig{Transport: config.TransportLog, PollInterval: time.Second},
	}
	bus, logBus = NewTransport(cfg, "bot", shared, nil)
	require.NotNil(t, logBus)
	assert.Same(t, logBus, bus)
	assert.Equal(t, "market-bot", logBus.ConsumerID())

	cfg.Sync.ConsumerID = "pinned"
	_, logBus = NewTransport(cfg, "bot", shared, nil)
	assert.Equal(t, "pinned", logBus.ConsumerID())
}
