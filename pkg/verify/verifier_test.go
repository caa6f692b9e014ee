package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anchorite-labs/anchorite/pkg/anchor"
	"github.com/anchorite-labs/anchorite/pkg/digest"
	"github.com/anchorite-labs/anchorite/pkg/merkle"
	"github.com/anchorite-labs/anchorite/pkg/record"
	"github.com/anchorite-labs/anchorite/pkg/store"
)

func testRecord() map[string]any {
	return map[string]any{
		"model":       "gpt-4",
		"prompt_hash": record.HashBytes([]byte("prompt")),
		"output_hash": record.HashBytes([]byte("output")),
	}
}

type fixture struct {
	batches  *store.MemoryBatchStore
	anchors  *store.MemoryAnchorStore
	registry *anchor.MemoryRegistry
}

func newFixture() *fixture {
	return &fixture{
		batches:  store.NewMemoryBatchStore(),
		anchors:  store.NewMemoryAnchorStore(),
		registry: anchor.NewMemoryRegistry("anchorite-local"),
	}
}

// seed hashes a record, batches it alongside padding, and anchors the root.
func (f *fixture) seed(t *testing.T, rec map[string]any) (string, *merkle.Batch) {
	t.Helper()
	ctx := context.Background()

	h, err := record.HashRecord(rec)
	require.NoError(t, err)

	b, err := merkle.NewBatch([]string{
		h,
		digest.Sum([]byte("padding-1")),
		digest.Sum([]byte("padding-2")),
	})
	require.NoError(t, err)
	require.NoError(t, f.batches.Put(ctx, b))

	anchored, err := f.registry.Anchor(ctx, b.Root)
	require.NoError(t, err)
	require.NoError(t, f.anchors.Put(ctx, anchored))

	return h, b
}

func TestVerifyInference_FullPipeline(t *testing.T) {
	f := newFixture()
	hash, batch := f.seed(t, testRecord())
	v := New(f.batches, f.anchors, f.registry)

	cases := []struct {
		name string
		req  Request
	}{
		{"by record", Request{Record: testRecord()}},
		{"by hash", Request{Hash: hash}},
		{"by both", Request{Record: testRecord(), Hash: hash}},
		{"uppercase hash", Request{Hash: "0X" + strings.ToUpper(hash[2:])}},
		{"unprefixed hash", Request{Hash: hash[2:]}},
	}
	for _, tc := range cases {
		name, req := tc.name, tc.req
		t.Run(name, func(t *testing.T) {
			res, err := v.VerifyInference(context.Background(), req)
			require.NoError(t, err)
			assert.True(t, res.Verified)
			assert.Empty(t, res.Cause)
			assert.Equal(t, hash, res.ContentHash)
			assert.Equal(t, batch.Root, res.Root)
			assert.Equal(t, batch.BatchID, res.BatchID)
			require.NotNil(t, res.Proof)
			assert.True(t, merkle.VerifyProof(res.Proof))
			require.NotNil(t, res.Anchor)
			assert.Equal(t, batch.Root, res.Anchor.Root)
			assert.NotEmpty(t, res.Anchor.TxID)
			assert.NotZero(t, res.Anchor.BlockHeight)
			assert.Equal(t, "anchorite-local", res.Anchor.ChainID)
			assert.False(t, res.CheckedAt.IsZero())
		})
	}
}

func TestVerifyInference_NotBatched(t *testing.T) {
	f := newFixture()
	v := New(f.batches, f.anchors, f.registry)

	res, err := v.VerifyInference(context.Background(), Request{Hash: digest.Sum([]byte("unseen"))})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, ErrNotBatched.Error(), res.Cause)
	assert.Nil(t, res.Proof)
	assert.Nil(t, res.Anchor)
}

func TestVerifyInference_NotAnchored(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	h, err := record.HashRecord(testRecord())
	require.NoError(t, err)
	b, err := merkle.NewBatch([]string{h})
	require.NoError(t, err)
	require.NoError(t, f.batches.Put(ctx, b))

	v := New(f.batches, f.anchors, nil)
	res, err := v.VerifyInference(ctx, Request{Hash: h})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, ErrNotAnchored.Error(), res.Cause)
	assert.Equal(t, b.Root, res.Root)
	assert.NotNil(t, res.Proof, "proof was generated before the anchor stage failed")
}

func TestVerifyInference_HashMismatch(t *testing.T) {
	f := newFixture()
	f.seed(t, testRecord())
	v := New(f.batches, f.anchors, f.registry)

	res, err := v.VerifyInference(context.Background(), Request{
		Record: testRecord(),
		Hash:   digest.Sum([]byte("somebody else's hash")),
	})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, ErrHashMismatch.Error(), res.Cause)
	assert.NotEmpty(t, res.ContentHash, "recomputed hash is reported for diagnosis")
}

func TestVerifyInference_NoSubject(t *testing.T) {
	f := newFixture()
	v := New(f.batches, f.anchors, f.registry)

	_, err := v.VerifyInference(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestVerifyInference_MalformedHash(t *testing.T) {
	f := newFixture()
	v := New(f.batches, f.anchors, f.registry)

	_, err := v.VerifyInference(context.Background(), Request{Hash: "0xnothex"})
	assert.Error(t, err)
}

// chainReaderFunc adapts a function to anchor.Reader.
type chainReaderFunc func(ctx context.Context, root string) (time.Time, error)

func (f chainReaderFunc) AnchoredAt(ctx context.Context, root string) (time.Time, error) {
	return f(ctx, root)
}

func TestVerifyInference_OnChainMismatch(t *testing.T) {
	f := newFixture()
	hash, _ := f.seed(t, testRecord())

	// ledger reports the root as never anchored
	silent := chainReaderFunc(func(ctx context.Context, root string) (time.Time, error) {
		return time.Time{}, nil
	})
	v := New(f.batches, f.anchors, silent)

	res, err := v.VerifyInference(context.Background(), Request{Hash: hash})
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, ErrOnChainMismatch.Error(), res.Cause)
	assert.NotNil(t, res.Anchor, "anchor store record is still reported")
}

func TestVerifyInference_ChainReadErrorIsNonFatal(t *testing.T) {
	f := newFixture()
	hash, _ := f.seed(t, testRecord())

	down := chainReaderFunc(func(ctx context.Context, root string) (time.Time, error) {
		return time.Time{}, errors.New("rpc: connection refused")
	})
	v := New(f.batches, f.anchors, down)

	res, err := v.VerifyInference(context.Background(), Request{Hash: hash})
	require.NoError(t, err, "a failed chain read is a verdict, not an error")
	assert.False(t, res.Verified)
	assert.Contains(t, res.Cause, ErrChainUnreachable.Error())
	assert.Contains(t, res.Cause, "connection refused")
}

func TestVerifyInference_CausesAreDistinct(t *testing.T) {
	causes := []string{
		ErrHashMismatch.Error(),
		ErrNotBatched.Error(),
		ErrProofGeneration.Error(),
		ErrProofInvalid.Error(),
		ErrNotAnchored.Error(),
		ErrOnChainMismatch.Error(),
		ErrChainUnreachable.Error(),
	}
	seen := map[string]bool{}
	for _, c := range causes {
		assert.False(t, seen[c], "cause %q duplicated", c)
		seen[c] = true
	}
}

func TestExplain(t *testing.T) {
	f := newFixture()
	hash, _ := f.seed(t, testRecord())
	v := New(f.batches, f.anchors, f.registry)

	good, err := v.VerifyInference(context.Background(), Request{Hash: hash})
	require.NoError(t, err)
	bad, err := v.VerifyInference(context.Background(), Request{Hash: digest.Sum([]byte("unseen"))})
	require.NoError(t, err)

	exGood := Explain(good)
	exBad := Explain(bad)

	// not-proven and assumptions describe the proof system, not the check
	assert.Equal(t, exGood.NotProven, exBad.NotProven)
	assert.Equal(t, exGood.Assumptions, exBad.Assumptions)
	assert.Len(t, exGood.NotProven, 3)
	assert.Len(t, exGood.Assumptions, 3)

	assert.Greater(t, len(exGood.Proven), 1)
	assert.Contains(t, exGood.Proven[0], good.ContentHash)

	require.Len(t, exBad.Proven, 1)
	assert.Contains(t, exBad.Proven[0], "unable to verify")

	exNil := Explain(nil)
	require.Len(t, exNil.Proven, 1)
	assert.Contains(t, exNil.Proven[0], "unable to verify")
}

func TestReport(t *testing.T) {
	f := newFixture()
	hash, batch := f.seed(t, testRecord())
	v := New(f.batches, f.anchors, f.registry)

	res, err := v.VerifyInference(context.Background(), Request{Hash: hash})
	require.NoError(t, err)

	text := Report(res)
	assert.Contains(t, text, "VERIFIED")
	assert.Contains(t, text, hash)
	assert.Contains(t, text, batch.Root)
	assert.Contains(t, text, "proven:")
	assert.Contains(t, text, "assumptions:")

	// pure function: identical input, identical output
	assert.Equal(t, text, Report(res))

	bad, err := v.VerifyInference(context.Background(), Request{Hash: digest.Sum([]byte("unseen"))})
	require.NoError(t, err)
	badText := Report(bad)
	assert.Contains(t, badText, "NOT VERIFIED")
	assert.Contains(t, badText, ErrNotBatched.Error())
}
