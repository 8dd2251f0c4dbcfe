package store

import (
	"context"
	"fmt"
	"time"

	"fixora/internal/config"
	"fixora/internal/models"
	"fixora/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Shared is the store handle of one running context. It is built once at
// process start and passed explicitly to the services that need it.
type Shared struct {
	backend       Backend
	professionals *Collection[models.Professional]
	bookings      *Collection[models.Booking]
	syncLog       *Collection[models.SyncEvent]
	cursors       *Collection[models.Cursor]
}

func NewShared(backend Backend, retry worker.RetryPolicy, logger *zerolog.Logger) *Shared {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	storeLogger := logger.With().Str("component", "store").Logger()
	return &Shared{
		backend:       backend,
		professionals: NewCollection[models.Professional](models.CollectionProfessionals, backend, retry, &storeLogger),
		bookings:      NewCollection[models.Booking](models.CollectionBookings, backend, retry, &storeLogger),
		syncLog:       NewCollection[models.SyncEvent](models.CollectionSyncLog, backend, retry, &storeLogger),
		cursors:       NewCollection[models.Cursor](models.CollectionCursors, backend, retry, &storeLogger),
	}
}

// Open builds the backend selected by cfg.Store.Backend and wraps it.
func Open(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Shared, error) {
	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewShared(backend, CASRetryPolicy(cfg.Store), logger), nil
}

// CASRetryPolicy returns the retry policy used for version conflicts.
func CASRetryPolicy(cfg config.StoreConfig) worker.RetryPolicy {
	return worker.RetryPolicy{
		MaxRetries:    cfg.CASRetries,
		InitialDelay:  cfg.CASBackoff,
		MaxDelay:      cfg.CASBackoff * 20,
		BackoffFactor: 2,
	}
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	case config.BackendSQLite:
		backend, err := NewSQLiteBackend(cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case config.BackendRedis:
		backend := NewRedisBackend(NewRedisClient(cfg.Redis), cfg.Redis.KeyPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := backend.Ping(pingCtx); err != nil {
			_ = backend.Close()
			return nil, err
		}
		return backend, nil
	case config.BackendFailover:
		primary := NewRedisBackend(NewRedisClient(cfg.Redis), cfg.Redis.KeyPrefix)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := primary.Ping(pingCtx); err != nil && logger != nil {
			logger.Warn().Err(err).Msg("Redis unavailable at startup, serving from memory until it recovers")
		}
		return NewFailoverBackend(primary, NewMemoryBackend(), logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (s *Shared) Professionals() *Collection[models.Professional] { return s.professionals }
func (s *Shared) Bookings() *Collection[models.Booking]           { return s.bookings }
func (s *Shared) SyncLog() *Collection[models.SyncEvent]          { return s.syncLog }
func (s *Shared) Cursors() *Collection[models.Cursor]             { return s.cursors }

// Backend exposes the raw backend, e.g. for health checks.
func (s *Shared) Backend() Backend { return s.backend }

// RedisClient returns the redis connection behind the store, or nil when the
// store does not use redis.
func (s *Shared) RedisClient() *redis.Client {
	backend := s.backend
	if f, ok := backend.(*FailoverBackend); ok {
		backend = f.primary
	}
	if r, ok := backend.(*RedisBackend); ok {
		return r.client
	}
	return nil
}

func (s *Shared) Ping(ctx context.Context) error { return s.backend.Ping(ctx) }

func (s *Shared) Close() error { return s.backend.Close() }
