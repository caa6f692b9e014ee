// Package verify orchestrates end-to-end verification: hash identity,
// batch membership, inclusion proof, and the external anchor record fold
// into a single trust verdict with an explicit cause on failure.
//
// A negative verdict is an expected, first-class outcome and is returned as
// a Result with Verified false and a specific cause; errors are reserved
// for structural misuse and collaborator failures. The distinct causes
// ("not batched", "not anchored", "proof invalid", "chain unreachable", …)
// are part of the caller-visible contract and are never collapsed.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anchorite-labs/anchorite/pkg/anchor"
	"github.com/anchorite-labs/anchorite/pkg/digest"
	"github.com/anchorite-labs/anchorite/pkg/merkle"
	"github.com/anchorite-labs/anchorite/pkg/record"
	"github.com/anchorite-labs/anchorite/pkg/store"
)

// Verification failure causes, one per pipeline stage.
var (
	ErrHashMismatch     = errors.New("hash mismatch: supplied hash disagrees with recomputed record hash")
	ErrNotBatched       = errors.New("not batched: content hash is not part of any known batch")
	ErrProofGeneration  = errors.New("proof generation failed: hash not found in located batch")
	ErrProofInvalid     = errors.New("proof invalid: inclusion proof does not reproduce the batch root")
	ErrNotAnchored      = errors.New("not anchored: no anchor record exists for the batch root")
	ErrOnChainMismatch  = errors.New("on-chain mismatch: ledger does not report the root as anchored")
	ErrChainUnreachable = errors.New("chain unreachable: live ledger read failed")
)

// ErrNoSubject is structural misuse: a request with neither record nor hash.
var ErrNoSubject = errors.New("verify: request needs a record or a content hash")

// Request identifies what to verify: a raw record, a bare content hash, or
// both (in which case they must agree).
type Request struct {
	Record map[string]any `json:"record,omitempty"`
	Hash   string         `json:"hash,omitempty"`
}

// Result is the verdict of one verification run. Ephemeral; computed per
// request and never persisted.
type Result struct {
	Verified    bool           `json:"verified"`
	ContentHash string         `json:"content_hash,omitempty"`
	BatchID     string         `json:"batch_id,omitempty"`
	Root        string         `json:"root,omitempty"`
	Proof       *merkle.Proof  `json:"proof,omitempty"`
	Anchor      *anchor.Record `json:"anchor,omitempty"`
	Cause       string         `json:"cause,omitempty"`
	CheckedAt   time.Time      `json:"checked_at"`
}

// Verifier composes the stores and the optional live chain reader. All
// collaborators are explicitly passed; the verifier holds no global state
// and no lock.
type Verifier struct {
	batches store.BatchStore
	anchors store.AnchorStore
	chain   anchor.Reader // nil disables live confirmation
}

// New creates a Verifier. chain may be nil to skip live confirmation.
func New(batches store.BatchStore, anchors store.AnchorStore, chain anchor.Reader) *Verifier {
	return &Verifier{batches: batches, anchors: anchors, chain: chain}
}

// VerifyInference runs the staged pipeline, short-circuiting on the first
// failed stage. Collaborator read errors from the batch and anchor stores
// are returned as errors; a live chain read error is reported as a
// non-fatal negative verdict per the trust contract.
func (v *Verifier) VerifyInference(ctx context.Context, req Request) (*Result, error) {
	res := &Result{CheckedAt: time.Now().UTC()}

	// Stage 1: resolve identity.
	hash, err := v.resolveIdentity(req, res)
	if err != nil {
		return nil, err
	}
	if res.Cause != "" {
		return res, nil
	}
	res.ContentHash = hash

	// Stage 2: locate batch.
	batch, err := v.batches.FindBatchContaining(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("verify: batch lookup: %w", err)
	}
	if batch == nil {
		return fail(res, ErrNotBatched), nil
	}
	res.BatchID = batch.BatchID
	res.Root = batch.Root

	// Stage 3: generate and check proof.
	proof, ok := batch.GenerateProof(hash)
	if !ok {
		return fail(res, ErrProofGeneration), nil
	}
	res.Proof = proof
	if !merkle.VerifyProof(proof) {
		return fail(res, ErrProofInvalid), nil
	}

	// Stage 4: locate anchor.
	rec, err := v.anchors.GetByRoot(ctx, batch.Root)
	if err != nil {
		return nil, fmt.Errorf("verify: anchor lookup: %w", err)
	}
	if rec == nil {
		return fail(res, ErrNotAnchored), nil
	}
	res.Anchor = rec

	// Stage 5: optional live confirmation.
	if v.chain != nil {
		anchoredAt, err := v.chain.AnchoredAt(ctx, batch.Root)
		if err != nil {
			res.Verified = false
			res.Cause = fmt.Sprintf("%s: %v", ErrChainUnreachable, err)
			return res, nil
		}
		if anchoredAt.IsZero() {
			return fail(res, ErrOnChainMismatch), nil
		}
	}

	res.Verified = true
	return res, nil
}

func (v *Verifier) resolveIdentity(req Request, res *Result) (string, error) {
	switch {
	case req.Record != nil:
		computed, err := record.HashRecord(req.Record)
		if err != nil {
			return "", fmt.Errorf("verify: %w", err)
		}
		if req.Hash != "" && !digest.Equal(computed, req.Hash) {
			res.ContentHash = computed
			fail(res, ErrHashMismatch)
			return "", nil
		}
		return computed, nil
	case req.Hash != "":
		n, err := digest.Normalize(req.Hash)
		if err != nil {
			return "", fmt.Errorf("verify: %w", err)
		}
		return n, nil
	default:
		return "", ErrNoSubject
	}
}

func fail(res *Result, cause error) *Result {
	res.Verified = false
	res.Cause = cause.Error()
	return res
}
