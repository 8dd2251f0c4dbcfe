package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fixora/internal/metrics"
	"fixora/internal/worker"

	"github.com/rs/zerolog"
)

// Collection is a typed view over one backend collection. Values are stored
// as JSON keyed by entity id.
type Collection[T any] struct {
	name    string
	backend Backend
	retry   worker.RetryPolicy
	logger  *zerolog.Logger
}

func NewCollection[T any](name string, backend Backend, retry worker.RetryPolicy, logger *zerolog.Logger) *Collection[T] {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Collection[T]{name: name, backend: backend, retry: retry, logger: logger}
}

func (c *Collection[T]) Name() string { return c.name }

// ReadAll returns the whole collection. It never fails: an absent collection
// is empty, a backend failure is logged and yields an empty map, and entries
// that cannot be decoded are skipped.
func (c *Collection[T]) ReadAll(ctx context.Context) map[string]T {
	records, err := c.backend.Load(ctx, c.name)
	if err != nil {
		c.logger.Error().Err(&StorageError{Op: "read_all", Collection: c.name, Err: err}).
			Str("collection", c.name).Msg("Failed to read collection, treating as empty")
		return map[string]T{}
	}

	out := make(map[string]T, len(records))
	for id, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			c.logger.Warn().Err(err).Str("collection", c.name).Str("id", id).Msg("Skipping corrupt record")
			continue
		}
		out[id] = v
	}
	return out
}

// ReplaceAll overwrites the collection with values. Concurrent writers of the
// same collection can lose updates; per-entity writes should use Update.
func (c *Collection[T]) ReplaceAll(ctx context.Context, values map[string]T) error {
	records := make(map[string]Record, len(values))
	for id, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return &StorageError{Op: "replace_all", Collection: c.name, Err: fmt.Errorf("marshal %s: %w", id, err)}
		}
		records[id] = Record{ID: id, Data: data}
	}
	if err := c.backend.Replace(ctx, c.name, records); err != nil {
		return &StorageError{Op: "replace_all", Collection: c.name, Err: err}
	}
	return nil
}

func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	v, _, err := c.get(ctx, id)
	return v, err
}

func (c *Collection[T]) get(ctx context.Context, id string) (T, int64, error) {
	var v T
	rec, err := c.backend.Get(ctx, c.name, id)
	if errors.Is(err, ErrNotFound) {
		return v, 0, ErrNotFound
	}
	if err != nil {
		return v, 0, &StorageError{Op: "get", Collection: c.name, Err: err}
	}
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return v, 0, &StorageError{Op: "get", Collection: c.name, Err: fmt.Errorf("unmarshal %s: %w", id, err)}
	}
	return v, rec.Version, nil
}

// Insert stores a new entity. An existing id yields ErrConflict.
func (c *Collection[T]) Insert(ctx context.Context, id string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &StorageError{Op: "insert", Collection: c.name, Err: err}
	}
	_, err = c.backend.CompareAndSwap(ctx, c.name, Record{ID: id, Data: data}, 0)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict):
		return fmt.Errorf("insert %s/%s: %w", c.name, id, ErrConflict)
	default:
		return &StorageError{Op: "insert", Collection: c.name, Err: err}
	}
}

// Update applies fn to the current value of id and writes the result only if
// nobody else wrote the entity in between, retrying on version conflicts. An
// error from fn aborts the update and is returned as is.
func (c *Collection[T]) Update(ctx context.Context, id string, fn func(*T) error) (T, error) {
	var result T
	err := c.retry.Do(ctx, isVersionConflict, func() error {
		current, version, err := c.get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		data, err := json.Marshal(current)
		if err != nil {
			return &StorageError{Op: "update", Collection: c.name, Err: err}
		}

		_, err = c.backend.CompareAndSwap(ctx, c.name, Record{ID: id, Data: data}, version)
		switch {
		case err == nil:
			result = current
			return nil
		case errors.Is(err, ErrVersionConflict):
			metrics.IncStoreConflict(c.name)
			c.logger.Debug().Str("collection", c.name).Str("id", id).Msg("Version conflict, retrying")
			return err
		case errors.Is(err, ErrNotFound):
			return ErrNotFound
		default:
			return &StorageError{Op: "update", Collection: c.name, Err: err}
		}
	})
	return result, err
}

// Upsert inserts v or, when id already exists, overwrites it under CAS.
func (c *Collection[T]) Upsert(ctx context.Context, id string, v T) error {
	return c.retry.Do(ctx, isUpsertRetryable, func() error {
		err := c.Insert(ctx, id, v)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		_, err = c.Update(ctx, id, func(current *T) error {
			*current = v
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			// deleted between insert and update
			return ErrConflict
		}
		return err
	})
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.backend.Delete(ctx, c.name, id); err != nil {
		return &StorageError{Op: "delete", Collection: c.name, Err: err}
	}
	return nil
}

func isVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

func isUpsertRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrConflict)
}
