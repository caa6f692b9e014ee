package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anchorite-labs/anchorite/pkg/digest"
	"github.com/anchorite-labs/anchorite/pkg/merkle"
)

// LeafIndex caches leaf-to-batch mappings in Redis so containment lookups
// skip the SQL scan on the hot path. The index is a cache, never the source
// of truth: misses fall through to the backing store.
type LeafIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLeafIndex creates an index on an existing Redis client. ttl of zero
// keeps entries until evicted.
func NewLeafIndex(client *redis.Client, ttl time.Duration) *LeafIndex {
	return &LeafIndex{client: client, ttl: ttl}
}

func leafKey(leaf string) string {
	return "anchorite:leaf:" + leaf
}

// Index records every leaf of b.
func (ix *LeafIndex) Index(ctx context.Context, b *merkle.Batch) error {
	pipe := ix.client.Pipeline()
	for _, leaf := range b.Leaves {
		pipe.SetNX(ctx, leafKey(leaf), b.BatchID, ix.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: redis index: %w", err)
	}
	return nil
}

// Lookup returns the batch id indexed for leaf, or "" on a miss.
func (ix *LeafIndex) Lookup(ctx context.Context, leaf string) (string, error) {
	id, err := ix.client.Get(ctx, leafKey(leaf)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: redis lookup: %w", err)
	}
	return id, nil
}

// IndexedBatchStore layers a LeafIndex over a BatchStore. Puts write
// through; lookups try the index first and repopulate it on fallthrough
// hits.
type IndexedBatchStore struct {
	inner  BatchStore
	index  *LeafIndex
	logger *slog.Logger
}

func NewIndexedBatchStore(inner BatchStore, index *LeafIndex) *IndexedBatchStore {
	return &IndexedBatchStore{
		inner:  inner,
		index:  index,
		logger: slog.Default().With("component", "leaf_index"),
	}
}

func (s *IndexedBatchStore) Put(ctx context.Context, b *merkle.Batch) error {
	if err := s.inner.Put(ctx, b); err != nil {
		return err
	}
	// The inner store has accepted the batch at this point. An index
	// failure only degrades lookups to the inner store, so it must not be
	// reported as a failed Put.
	if err := s.index.Index(ctx, b); err != nil {
		s.logger.WarnContext(ctx, "leaf index write failed", "batch_id", b.BatchID, "error", err)
	}
	return nil
}

func (s *IndexedBatchStore) Get(ctx context.Context, batchID string) (*merkle.Batch, error) {
	return s.inner.Get(ctx, batchID)
}

func (s *IndexedBatchStore) FindBatchContaining(ctx context.Context, hash string) (*merkle.Batch, error) {
	n, err := digest.Normalize(hash)
	if err != nil {
		return nil, nil
	}

	if id, err := s.index.Lookup(ctx, n); err == nil && id != "" {
		if b, err := s.inner.Get(ctx, id); err == nil && b != nil {
			return b, nil
		}
	}

	b, err := s.inner.FindBatchContaining(ctx, n)
	if err != nil || b == nil {
		return b, err
	}
	_ = s.index.Index(ctx, b)
	return b, nil
}
