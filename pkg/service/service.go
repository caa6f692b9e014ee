// Package service wires the pure core (hashing, batching, proofs,
// verification) to its stateful collaborators: the batch and anchor stores,
// the ledger registry client, and observability. This is the only layer
// that performs I/O or holds mutable state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anchorite-labs/anchorite/pkg/anchor"
	"github.com/anchorite-labs/anchorite/pkg/digest"
	"github.com/anchorite-labs/anchorite/pkg/merkle"
	"github.com/anchorite-labs/anchorite/pkg/observability"
	"github.com/anchorite-labs/anchorite/pkg/record"
	"github.com/anchorite-labs/anchorite/pkg/store"
	"github.com/anchorite-labs/anchorite/pkg/verify"
)

var (
	// ErrNoPending is returned when a batch seal is requested with nothing
	// recorded since the last seal.
	ErrNoPending = errors.New("service: no pending hashes to batch")

	// ErrUnknownHash is returned when a proof is requested for a hash that
	// no stored batch contains.
	ErrUnknownHash = errors.New("service: hash is not part of any known batch")
)

// Archiver receives immutable batch snapshots after sealing (e.g. the S3
// batch archive). Archive failures are logged, not fatal: the store remains
// the source of truth.
type Archiver interface {
	Archive(ctx context.Context, b *merkle.Batch) error
}

// Service exposes the record → batch → anchor → verify lifecycle.
type Service struct {
	batches  store.BatchStore
	anchors  store.AnchorStore
	client   *anchor.Client
	verifier *verify.Verifier
	archive  Archiver // nil disables archiving
	obs      *observability.Provider
	logger   *slog.Logger

	mu      sync.Mutex
	pending []string
}

// Options configures optional collaborators.
type Options struct {
	Archive  Archiver
	Chain    anchor.Reader // live confirmation source; nil disables stage 5
	Obs      *observability.Provider
	Logger   *slog.Logger
	Interval time.Duration // anchor submission spacing
}

// New builds a Service over the given stores and registry.
func New(batches store.BatchStore, anchors store.AnchorStore, registry anchor.Registry, opts Options) (*Service, error) {
	if batches == nil || anchors == nil || registry == nil {
		return nil, errors.New("service: batch store, anchor store, and registry are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := opts.Obs
	if obs == nil {
		inert, err := observability.New(context.Background(), &observability.Config{Enabled: false})
		if err != nil {
			return nil, err
		}
		obs = inert
	}

	return &Service{
		batches:  batches,
		anchors:  anchors,
		client:   anchor.NewClient(registry, opts.Interval, logger),
		verifier: verify.New(batches, anchors, opts.Chain),
		archive:  opts.Archive,
		obs:      obs,
		logger:   logger.With("component", "service"),
	}, nil
}

// RecordInference validates and hashes a metadata record and queues its
// content hash for the next batch. The raw record is never stored.
func (s *Service) RecordInference(ctx context.Context, rec map[string]any) (string, error) {
	ctx, span := s.obs.StartSpan(ctx, "record_inference")
	defer span.End()
	start := time.Now()

	hash, err := s.recordInference(rec)
	s.obs.RecordOperation(ctx, "record_inference", time.Since(start), err)
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "inference recorded", "content_hash", hash)
	return hash, nil
}

func (s *Service) recordInference(rec map[string]any) (string, error) {
	if err := record.Validate(rec); err != nil {
		return "", err
	}
	hash, err := record.HashRecord(rec)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.pending = append(s.pending, hash)
	s.mu.Unlock()
	return hash, nil
}

// Track queues an externally computed content hash for the next batch,
// returning it in normalized form.
func (s *Service) Track(ctx context.Context, hash string) (string, error) {
	n, err := digest.Normalize(hash)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.pending = append(s.pending, n)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "content hash tracked", "content_hash", n)
	return n, nil
}

// Pending returns the hashes queued for the next batch.
func (s *Service) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pending...)
}

// SealBatch builds a batch from all pending hashes, persists it, and clears
// the queue. The queue is only cleared after the store accepts the batch.
func (s *Service) SealBatch(ctx context.Context) (*merkle.Batch, error) {
	ctx, span := s.obs.StartSpan(ctx, "seal_batch")
	defer span.End()
	start := time.Now()

	b, err := s.sealBatch(ctx)
	s.obs.RecordOperation(ctx, "seal_batch", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "batch sealed",
		"batch_id", b.BatchID,
		"root", b.Root,
		"leaf_count", b.LeafCount,
	)
	return b, nil
}

func (s *Service) sealBatch(ctx context.Context) (*merkle.Batch, error) {
	s.mu.Lock()
	pending := append([]string(nil), s.pending...)
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil, ErrNoPending
	}

	b, err := merkle.NewBatch(pending)
	if err != nil {
		return nil, fmt.Errorf("service: build batch: %w", err)
	}
	if err := s.batches.Put(ctx, b); err != nil {
		return nil, fmt.Errorf("service: store batch: %w", err)
	}

	s.mu.Lock()
	s.pending = s.pending[len(pending):]
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.Archive(ctx, b); err != nil {
			s.logger.WarnContext(ctx, "batch archive failed", "batch_id", b.BatchID, "error", err)
		}
	}
	return b, nil
}

// Prove locates the batch containing hash and generates its inclusion
// proof. Returns ErrUnknownHash when no stored batch contains it.
func (s *Service) Prove(ctx context.Context, hash string) (*merkle.Proof, error) {
	ctx, span := s.obs.StartSpan(ctx, "prove")
	defer span.End()
	start := time.Now()

	proof, err := s.prove(ctx, hash)
	s.obs.RecordOperation(ctx, "prove", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "proof generated", "content_hash", proof.Leaf, "root", proof.Root)
	return proof, nil
}

func (s *Service) prove(ctx context.Context, hash string) (*merkle.Proof, error) {
	b, err := s.batches.FindBatchContaining(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("service: locate batch: %w", err)
	}
	if b == nil {
		return nil, ErrUnknownHash
	}
	proof, ok := b.GenerateProof(hash)
	if !ok {
		return nil, fmt.Errorf("service: proof generation failed for %s in batch %s", hash, b.BatchID)
	}
	return proof, nil
}

// AnchorBatch submits the batch root to the ledger registry and stores the
// resulting anchor record.
func (s *Service) AnchorBatch(ctx context.Context, b *merkle.Batch) (*anchor.Record, error) {
	ctx, span := s.obs.StartSpan(ctx, "anchor_batch")
	defer span.End()
	start := time.Now()

	rec, err := s.client.Submit(ctx, b.Root)
	if err == nil {
		err = s.anchors.Put(ctx, rec)
	}
	s.obs.RecordOperation(ctx, "anchor_batch", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "batch anchored",
		"batch_id", b.BatchID,
		"root", rec.Root,
		"tx_id", rec.TxID,
		"block_height", rec.BlockHeight,
	)
	return rec, nil
}

// Verify runs the verification pipeline for a record or content hash.
func (s *Service) Verify(ctx context.Context, req verify.Request) (*verify.Result, error) {
	ctx, span := s.obs.StartSpan(ctx, "verify_inference")
	defer span.End()
	start := time.Now()

	res, err := s.verifier.VerifyInference(ctx, req)
	s.obs.RecordOperation(ctx, "verify_inference", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	s.obs.RecordVerdict(ctx, res.Verified, res.Cause)
	s.logger.InfoContext(ctx, "verification completed",
		"verified", res.Verified,
		"cause", res.Cause,
		"content_hash", res.ContentHash,
	)
	return res, nil
}
