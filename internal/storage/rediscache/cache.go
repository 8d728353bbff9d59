package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/permitdesk/folio/internal/domain/folio"
	"github.com/permitdesk/folio/internal/logger"
	"github.com/permitdesk/folio/internal/storage"
)

// keyPrefix namespaces cached records in the shared Redis instance.
const keyPrefix = "folio:record:"

// Store decorates an inner record store with a read-through Redis cache.
// Cache failures never fail a call; the inner store remains authoritative.
type Store struct {
	// inner is the authoritative record store.
	inner storage.Store
	// client talks to Redis; never nil.
	client *redis.Client
	// ttl bounds staleness of cached records.
	ttl time.Duration
}

// Connect opens a Redis client for the given address and pings it.
func Connect(ctx context.Context, address string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: address})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewStore wraps inner with a read-through cache.
func NewStore(inner storage.Store, client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		inner:  inner,
		client: client,
		ttl:    ttl,
	}
}

// FindByFolio serves the record from Redis when fresh, falling back to the
// inner store and repopulating the cache on a miss.
func (s *Store) FindByFolio(ctx context.Context, f domain.Folio) (*domain.Record, error) {
	cached, err := s.client.Get(ctx, keyPrefix+string(f)).Bytes()
	if err == nil {
		var record domain.Record
		if err := json.Unmarshal(cached, &record); err == nil {
			return &record, nil
		}

		// Corrupt entry: drop it and fall through to the store.
		s.invalidate(ctx, f)
	}

	record, err := s.inner.FindByFolio(ctx, f)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(record); err == nil {
		if err := s.client.Set(ctx, keyPrefix+string(f), data, s.ttl).Err(); err != nil {
			logger.WarnKV(ctx, "Record cache set failed", "folio", f, "error", err)
		}
	}

	return record, nil
}

// Insert writes through to the inner store; the fresh record is cached
// only on the next read.
func (s *Store) Insert(ctx context.Context, record *domain.Record) error {
	if err := s.inner.Insert(ctx, record); err != nil {
		return err
	}

	s.invalidate(ctx, record.Folio)

	return nil
}

// UpdateStatus writes through and invalidates the cached record.
func (s *Store) UpdateStatus(ctx context.Context, f domain.Folio, update storage.StatusUpdate) error {
	if err := s.inner.UpdateStatus(ctx, f, update); err != nil {
		return err
	}

	s.invalidate(ctx, f)

	return nil
}

// Delete writes through and invalidates the cached record.
func (s *Store) Delete(ctx context.Context, f domain.Folio) error {
	if err := s.inner.Delete(ctx, f); err != nil {
		return err
	}

	s.invalidate(ctx, f)

	return nil
}

// MaxFolioUnderPrefix is never cached: the allocator seeds from it once
// at startup and correctness matters more than latency there.
func (s *Store) MaxFolioUnderPrefix(ctx context.Context, prefix string) (domain.Folio, error) {
	return s.inner.MaxFolioUnderPrefix(ctx, prefix)
}

// invalidate drops the cached record, logging failures instead of
// propagating them.
func (s *Store) invalidate(ctx context.Context, f domain.Folio) {
	if err := s.client.Del(ctx, keyPrefix+string(f)).Err(); err != nil {
		logger.WarnKV(ctx, "Record cache invalidation failed", "folio", f, "error", err)
	}
}
