package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fixora/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// RedisBackend keeps each collection in one hash, <prefix>:<collection>, with
// the record id as the field. Writes run under WATCH so that a concurrent write
// to the same collection aborts the transaction.
type RedisBackend struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type redisEnvelope struct {
	Version   int64           `json:"version"`
	UpdatedAt int64           `json:"updatedAt"`
	Data      json.RawMessage `json:"data"`
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisBackend) key(collection string) string {
	if r.prefix == "" {
		return collection
	}
	return r.prefix + ":" + collection
}

func (r *RedisBackend) Load(ctx context.Context, collection string) (map[string]Record, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	fields, err := r.client.HGetAll(ctx, r.key(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load collection from redis: %w", err)
	}

	out := make(map[string]Record, len(fields))
	for id, raw := range fields {
		rec, err := decodeEnvelope(id, raw)
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	return out, nil
}

func (r *RedisBackend) Replace(ctx context.Context, collection string, records map[string]Record) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := r.key(collection)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		versions, err := r.versions(ctx, tx, key)
		if err != nil {
			return err
		}

		now := r.now()
		values := make(map[string]interface{}, len(records))
		for id, rec := range records {
			raw, err := encodeEnvelope(versions[id]+1, now, rec.Data)
			if err != nil {
				return err
			}
			values[id] = raw
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(values) > 0 {
				pipe.HSet(ctx, key, values)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to replace collection in redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, collection, id string) (Record, error) {
	if r.client == nil {
		return Record{}, fmt.Errorf("redis client is nil")
	}
	raw, err := r.client.HGet(ctx, r.key(collection), id).Result()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get record from redis: %w", err)
	}
	return decodeEnvelope(id, raw)
}

func (r *RedisBackend) CompareAndSwap(ctx context.Context, collection string, rec Record, expectedVersion int64) (Record, error) {
	if r.client == nil {
		return Record{}, fmt.Errorf("redis client is nil")
	}
	key := r.key(collection)
	var stored Record

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, rec.ID).Result()
		switch {
		case err == redis.Nil:
			if expectedVersion != 0 {
				return ErrNotFound
			}
		case err != nil:
			return err
		default:
			if expectedVersion == 0 {
				return ErrConflict
			}
			current, err := decodeEnvelope(rec.ID, raw)
			if err != nil {
				return err
			}
			if current.Version != expectedVersion {
				return ErrVersionConflict
			}
		}

		now := r.now()
		encoded, err := encodeEnvelope(expectedVersion+1, now, rec.Data)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, rec.ID, encoded)
			return nil
		})
		if err != nil {
			return err
		}
		stored = Record{ID: rec.ID, Version: expectedVersion + 1, Data: cloneBytes(rec.Data), UpdatedAt: now}
		return nil
	}, key)

	switch {
	case err == nil:
		return stored, nil
	case errors.Is(err, redis.TxFailedErr):
		return Record{}, ErrVersionConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict), errors.Is(err, ErrVersionConflict):
		return Record{}, err
	default:
		return Record{}, fmt.Errorf("failed to write record to redis: %w", err)
	}
}

func (r *RedisBackend) Delete(ctx context.Context, collection, id string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.HDel(ctx, r.key(collection), id).Err(); err != nil {
		return fmt.Errorf("failed to delete record from redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if _, err := r.client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func (r *RedisBackend) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *RedisBackend) versions(ctx context.Context, tx *redis.Tx, key string) (map[string]int64, error) {
	fields, err := tx.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(fields))
	for id, raw := range fields {
		var env redisEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			// unreadable entries restart at version 1
			continue
		}
		out[id] = env.Version
	}
	return out, nil
}

func encodeEnvelope(version int64, at time.Time, data []byte) (string, error) {
	env := redisEnvelope{Version: version, UpdatedAt: at.UnixNano(), Data: data}
	if !json.Valid(data) {
		return "", fmt.Errorf("record data is not valid JSON")
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	return string(raw), nil
}

func decodeEnvelope(id, raw string) (Record, error) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return Record{
		ID:        id,
		Version:   env.Version,
		Data:      cloneBytes(env.Data),
		UpdatedAt: time.Unix(0, env.UpdatedAt),
	}, nil
}
