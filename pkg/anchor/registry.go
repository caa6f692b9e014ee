// Package anchor models the external append-only commitment registry: the
// at-most-once association of a Merkle root with a ledger transaction and a
// wall-clock anchoring time.
package anchor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/anchorite-labs/anchorite/pkg/digest"
)

var (
	// ErrAlreadyAnchored is returned when a root has an anchor record;
	// the registry is append-only with one record per root.
	ErrAlreadyAnchored = errors.New("anchor: root already anchored")

	// ErrZeroRoot is returned for the all-zero root, which the registry
	// rejects.
	ErrZeroRoot = errors.New("anchor: all-zero root rejected")
)

// Record associates one Merkle root with its ledger anchoring.
type Record struct {
	Root        string    `json:"root"`
	TxID        string    `json:"tx_id"`
	BlockHeight uint64    `json:"block_height"`
	ChainID     string    `json:"chain_id"`
	AnchoredAt  time.Time `json:"anchored_at"`
}

// Registry is the ledger-side commitment registry. Implementations must
// reject an already-anchored root and the all-zero root.
type Registry interface {
	// Anchor records root on the ledger and returns the resulting record.
	Anchor(ctx context.Context, root string) (*Record, error)

	// AnchoredAt reports when root was anchored; the zero time means the
	// ledger has no record of it.
	AnchoredAt(ctx context.Context, root string) (time.Time, error)
}

// Reader is the read-only subset of Registry used for live confirmation
// during verification.
type Reader interface {
	AnchoredAt(ctx context.Context, root string) (time.Time, error)
}

// MemoryRegistry simulates the ledger contract in process: monotonic block
// heights, derived transaction ids, and one record per root.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]*Record
	height  uint64
	chainID string
	clock   func() time.Time
}

// NewMemoryRegistry creates a registry for the given chain identity.
func NewMemoryRegistry(chainID string) *MemoryRegistry {
	return &MemoryRegistry{
		records: make(map[string]*Record),
		chainID: chainID,
		clock:   time.Now,
	}
}

// WithClock overrides the clock for testing.
func (r *MemoryRegistry) WithClock(clock func() time.Time) *MemoryRegistry {
	r.clock = clock
	return r
}

// Anchor implements Registry.
func (r *MemoryRegistry) Anchor(ctx context.Context, root string) (*Record, error) {
	n, err := digest.Normalize(root)
	if err != nil {
		return nil, fmt.Errorf("anchor: %w", err)
	}
	if digest.IsZero(n) {
		return nil, ErrZeroRoot
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[n]; exists {
		return nil, ErrAlreadyAnchored
	}

	r.height++
	rec := &Record{
		Root:        n,
		TxID:        digest.Sum([]byte(fmt.Sprintf("%s|%s|%d", r.chainID, n, r.height))),
		BlockHeight: r.height,
		ChainID:     r.chainID,
		AnchoredAt:  r.clock().UTC(),
	}
	r.records[n] = rec
	return rec, nil
}

// AnchoredAt implements Registry.
func (r *MemoryRegistry) AnchoredAt(ctx context.Context, root string) (time.Time, error) {
	n, err := digest.Normalize(root)
	if err != nil {
		return time.Time{}, fmt.Errorf("anchor: %w", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[n]
	if !ok {
		return time.Time{}, nil
	}
	return rec.AnchoredAt, nil
}
