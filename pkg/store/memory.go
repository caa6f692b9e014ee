package store

import (
	"context"
	"sync"

	"github.com/anchorite-labs/anchorite/pkg/anchor"
	"github.com/anchorite-labs/anchorite/pkg/digest"
	"github.com/anchorite-labs/anchorite/pkg/merkle"
)

// MemoryBatchStore is an in-process BatchStore with a leaf index for
// containment lookups.
type MemoryBatchStore struct {
	mu      sync.RWMutex
	batches map[string]*merkle.Batch
	byLeaf  map[string]string // leaf hash -> batch id
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{
		batches: make(map[string]*merkle.Batch),
		byLeaf:  make(map[string]string),
	}
}

func (s *MemoryBatchStore) Put(ctx context.Context, b *merkle.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches[b.BatchID] = b
	for _, leaf := range b.Leaves {
		if _, taken := s.byLeaf[leaf]; !taken {
			s.byLeaf[leaf] = b.BatchID
		}
	}
	return nil
}

func (s *MemoryBatchStore) Get(ctx context.Context, batchID string) (*merkle.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batches[batchID], nil
}

func (s *MemoryBatchStore) FindBatchContaining(ctx context.Context, hash string) (*merkle.Batch, error) {
	n, err := digest.Normalize(hash)
	if err != nil {
		return nil, nil // malformed hash is contained nowhere
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byLeaf[n]
	if !ok {
		return nil, nil
	}
	return s.batches[id], nil
}

// MemoryAnchorStore is an in-process AnchorStore.
type MemoryAnchorStore struct {
	mu      sync.RWMutex
	records map[string]*anchor.Record
}

func NewMemoryAnchorStore() *MemoryAnchorStore {
	return &MemoryAnchorStore{records: make(map[string]*anchor.Record)}
}

func (s *MemoryAnchorStore) Put(ctx context.Context, rec *anchor.Record) error {
	n, err := digest.Normalize(rec.Root)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[n]; exists {
		return ErrDuplicateAnchor
	}
	cp := *rec
	cp.Root = n
	s.records[n] = &cp
	return nil
}

func (s *MemoryAnchorStore) GetByRoot(ctx context.Context, root string) (*anchor.Record, error) {
	n, err := digest.Normalize(root)
	if err != nil {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[n]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}
