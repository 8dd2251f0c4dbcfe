// Package store holds the shared, versioned collections that independently
// running front-ends read and write. Every record carries a version so callers
// can replace a single entity with compare-and-swap instead of rewriting a
// whole collection.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrConflict        = errors.New("record already exists")
	ErrVersionConflict = errors.New("record version conflict")
)

// StorageError reports that the underlying persistence failed or returned
// data that could not be decoded.
type StorageError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Record is one serialized entity of a collection.
type Record struct {
	ID        string
	Version   int64
	Data      []byte
	UpdatedAt time.Time
}

// Backend persists collections of records.
//
// CompareAndSwap writes rec only if the stored version equals expectedVersion.
// An expectedVersion of 0 means the record must not exist yet (ErrConflict
// otherwise). A mismatch on an existing record yields ErrVersionConflict and a
// missing record with a non-zero expectation yields ErrNotFound. On success the
// stored record, with its new version, is returned.
//
// Replace overwrites the whole collection. Versions of surviving ids keep
// increasing so that concurrent CompareAndSwap callers notice the overwrite.
type Backend interface {
	Load(ctx context.Context, collection string) (map[string]Record, error)
	Replace(ctx context.Context, collection string, records map[string]Record) error
	Get(ctx context.Context, collection, id string) (Record, error)
	CompareAndSwap(ctx context.Context, collection string, rec Record, expectedVersion int64) (Record, error)
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
	Close() error
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
