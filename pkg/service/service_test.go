package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorite-labs/anchorite/pkg/anchor"
	"github.com/anchorite-labs/anchorite/pkg/merkle"
	"github.com/anchorite-labs/anchorite/pkg/record"
	"github.com/anchorite-labs/anchorite/pkg/store"
	"github.com/anchorite-labs/anchorite/pkg/verify"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	registry := anchor.NewMemoryRegistry("anchorite-local")
	if opts.Chain == nil {
		opts.Chain = registry
	}
	s, err := New(store.NewMemoryBatchStore(), store.NewMemoryAnchorStore(), registry, opts)
	require.NoError(t, err)
	return s
}

func inferenceRecord(prompt, output string) map[string]any {
	return map[string]any{
		"model":       "gpt-4",
		"prompt_hash": record.HashBytes([]byte(prompt)),
		"output_hash": record.HashBytes([]byte(output)),
	}
}

type capturingArchiver struct {
	archived []*merkle.Batch
}

func (a *capturingArchiver) Archive(ctx context.Context, b *merkle.Batch) error {
	a.archived = append(a.archived, b)
	return nil
}

func TestService_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	archiver := &capturingArchiver{}
	s := newTestService(t, Options{Archive: archiver})

	rec := inferenceRecord("what is 2+2", "4")
	hash, err := s.RecordInference(ctx, rec)
	require.NoError(t, err)
	assert.Len(t, s.Pending(), 1)

	_, err = s.RecordInference(ctx, inferenceRecord("capital of France", "Paris"))
	require.NoError(t, err)

	b, err := s.SealBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, b.LeafCount)
	assert.Empty(t, s.Pending())
	require.Len(t, archiver.archived, 1)
	assert.Equal(t, b.BatchID, archiver.archived[0].BatchID)

	anchored, err := s.AnchorBatch(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, b.Root, anchored.Root)

	// verify by record and by hash
	res, err := s.Verify(ctx, verify.Request{Record: rec})
	require.NoError(t, err)
	assert.True(t, res.Verified)
	assert.Equal(t, hash, res.ContentHash)
	assert.Equal(t, anchored.TxID, res.Anchor.TxID)
	assert.Equal(t, anchored.BlockHeight, res.Anchor.BlockHeight)
	assert.Equal(t, "anchorite-local", res.Anchor.ChainID)

	res, err = s.Verify(ctx, verify.Request{Hash: hash})
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestService_TrackAndProve(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	h := record.HashBytes([]byte("externally hashed"))
	tracked, err := s.Track(ctx, strings.ToUpper(strings.TrimPrefix(h, "0x")))
	require.NoError(t, err, "unprefixed uppercase input is normalized")
	assert.Equal(t, h, tracked)
	assert.Equal(t, []string{h}, s.Pending())

	_, err = s.Track(ctx, "not-a-hash")
	assert.Error(t, err)
	assert.Len(t, s.Pending(), 1)

	_, err = s.Prove(ctx, h)
	assert.ErrorIs(t, err, ErrUnknownHash)

	b, err := s.SealBatch(ctx)
	require.NoError(t, err)

	proof, err := s.Prove(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, b.Root, proof.Root)
	assert.True(t, merkle.VerifyProof(proof))
}

func TestService_SealEmpty(t *testing.T) {
	s := newTestService(t, Options{})
	_, err := s.SealBatch(context.Background())
	assert.ErrorIs(t, err, ErrNoPending)
}

func TestService_RecordValidation(t *testing.T) {
	s := newTestService(t, Options{})

	_, err := s.RecordInference(context.Background(), map[string]any{"model": "gpt-4"})
	assert.Error(t, err, "records missing required hashes are rejected")
	assert.Empty(t, s.Pending())
}

func TestService_VerifyUnbatched(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	hash, err := s.RecordInference(ctx, inferenceRecord("p", "o"))
	require.NoError(t, err)

	// recorded but not yet sealed into a batch
	res, err := s.Verify(ctx, verify.Request{Hash: hash})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, verify.ErrNotBatched.Error(), res.Cause)
}

func TestService_VerifyUnanchored(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	hash, err := s.RecordInference(ctx, inferenceRecord("p", "o"))
	require.NoError(t, err)
	_, err = s.SealBatch(ctx)
	require.NoError(t, err)

	res, err := s.Verify(ctx, verify.Request{Hash: hash})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, verify.ErrNotAnchored.Error(), res.Cause)
}
