// Package store persists batches and anchor records. The verification core
// consumes these as read-mostly oracles through the BatchStore and
// AnchorStore interfaces; implementations here cover in-memory, SQLite,
// a Redis leaf index, and an S3 archive.
package store

import (
	"context"
	"errors"

	"github.com/anchorite-labs/anchorite/pkg/anchor"
	"github.com/anchorite-labs/anchorite/pkg/merkle"
)

// ErrDuplicateAnchor is returned when a second anchor record is stored for
// the same root; the registry allows exactly one.
var ErrDuplicateAnchor = errors.New("store: anchor record already exists for root")

// BatchStore holds immutable Merkle batches. Lookups return nil with no
// error when nothing matches.
type BatchStore interface {
	// FindBatchContaining returns a batch whose leaf set contains hash.
	FindBatchContaining(ctx context.Context, hash string) (*merkle.Batch, error)

	// Get returns the batch with the given id.
	Get(ctx context.Context, batchID string) (*merkle.Batch, error)

	// Put stores a batch. Batches are immutable once stored.
	Put(ctx context.Context, b *merkle.Batch) error
}

// AnchorStore holds anchor records keyed by root, at most one per root.
type AnchorStore interface {
	// GetByRoot returns the anchor record for root, or nil when absent.
	GetByRoot(ctx context.Context, root string) (*anchor.Record, error)

	// Put stores a record; ErrDuplicateAnchor if the root already has one.
	Put(ctx context.Context, rec *anchor.Record) error
}
