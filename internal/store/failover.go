package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverBackend sends every call to primary until it fails with an
// infrastructure error, then serves from fallback and retries primary once a
// minute. Domain outcomes (not found, conflicts) and cancellations of the
// caller's context never trip the switch. Writes served by fallback are not
// copied back once primary recovers.
type FailoverBackend struct {
	primary   Backend
	fallback  Backend
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverBackend(primary, fallback Backend, logger *zerolog.Logger) *FailoverBackend {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &FailoverBackend{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// Degraded reports whether calls are currently served by the fallback.
func (f *FailoverBackend) Degraded() bool {
	return f.isDown.Load()
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrVersionConflict)
}

func (f *FailoverBackend) markDown(op string, err error) {
	f.logger.Error().Err(err).Str("op", op).Msg("Primary store failed, falling back to memory")
	f.isDown.Store(true)
	f.lastCheck.Store(f.now().UnixNano())
}

// usePrimary decides whether this call should go to primary, allowing one
// recovery attempt per interval while degraded.
func (f *FailoverBackend) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	last := time.Unix(0, f.lastCheck.Load())
	return f.now().Sub(last) > recoveryInterval
}

// callerGaveUp reports errors caused by the caller's own context. They say
// nothing about primary health and are returned as they are.
func callerGaveUp(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (f *FailoverBackend) onPrimaryResult(ctx context.Context, op string, err error) bool {
	if err != nil && callerGaveUp(ctx, err) {
		return true
	}
	if err == nil || isDomainError(err) {
		if f.isDown.CompareAndSwap(true, false) {
			f.logger.Info().Str("op", op).Msg("Primary store recovered")
		}
		return true
	}
	f.markDown(op, err)
	return false
}

func (f *FailoverBackend) Load(ctx context.Context, collection string) (map[string]Record, error) {
	if f.usePrimary() {
		out, err := f.primary.Load(ctx, collection)
		if f.onPrimaryResult(ctx, "load", err) {
			return out, err
		}
	}
	return f.fallback.Load(ctx, collection)
}

func (f *FailoverBackend) Replace(ctx context.Context, collection string, records map[string]Record) error {
	if f.usePrimary() {
		err := f.primary.Replace(ctx, collection, records)
		if f.onPrimaryResult(ctx, "replace", err) {
			return err
		}
	}
	return f.fallback.Replace(ctx, collection, records)
}

func (f *FailoverBackend) Get(ctx context.Context, collection, id string) (Record, error) {
	if f.usePrimary() {
		rec, err := f.primary.Get(ctx, collection, id)
		if f.onPrimaryResult(ctx, "get", err) {
			return rec, err
		}
	}
	return f.fallback.Get(ctx, collection, id)
}

func (f *FailoverBackend) CompareAndSwap(ctx context.Context, collection string, rec Record, expectedVersion int64) (Record, error) {
	if f.usePrimary() {
		stored, err := f.primary.CompareAndSwap(ctx, collection, rec, expectedVersion)
		if f.onPrimaryResult(ctx, "compare_and_swap", err) {
			return stored, err
		}
	}
	return f.fallback.CompareAndSwap(ctx, collection, rec, expectedVersion)
}

func (f *FailoverBackend) Delete(ctx context.Context, collection, id string) error {
	if f.usePrimary() {
		err := f.primary.Delete(ctx, collection, id)
		if f.onPrimaryResult(ctx, "delete", err) {
			return err
		}
	}
	return f.fallback.Delete(ctx, collection, id)
}

// Ping succeeds while either side is reachable.
func (f *FailoverBackend) Ping(ctx context.Context) error {
	if err := f.primary.Ping(ctx); err == nil {
		return nil
	}
	return f.fallback.Ping(ctx)
}

func (f *FailoverBackend) Close() error {
	return errors.Join(f.primary.Close(), f.fallback.Close())
}
