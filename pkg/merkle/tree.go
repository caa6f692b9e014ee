// Package merkle builds deterministic commitment trees over content hashes
// and derives self-verifying inclusion proofs from them.
//
// Two rules make the root depend only on the *set* of leaves, independent of
// caller-supplied order or hash letter case: leaves are normalized and
// sorted ascending before the tree is built, and the pairwise combination is
// commutative (the two child digests are sorted before hashing their
// concatenation). An odd node at any level is combined with itself; the
// prover mirrors the same rule.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/anchorite-labs/anchorite/pkg/digest"
)

// ErrEmptyBatch is returned when a batch is requested from zero hashes.
var ErrEmptyBatch = errors.New("merkle: batch requires at least one hash")

// Batch is an immutable commitment tree over a set of content hashes.
//
// Tree[0] is the sorted leaf level; the last level holds exactly one node,
// the root. Each level is ceil(previous/2) wide.
type Batch struct {
	BatchID   string     `json:"batch_id"`
	Root      string     `json:"root"`
	Leaves    []string   `json:"leaves"`
	Tree      [][]string `json:"tree"`
	LeafCount int        `json:"leaf_count"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewBatch builds a batch from a non-empty sequence of content hashes.
// The resulting root is invariant under any permutation of hashes and under
// letter-case or prefix variation of the individual hash strings.
func NewBatch(hashes []string) (*Batch, error) {
	if len(hashes) == 0 {
		return nil, ErrEmptyBatch
	}

	leaves := make([]string, len(hashes))
	for i, h := range hashes {
		n, err := digest.Normalize(h)
		if err != nil {
			return nil, fmt.Errorf("merkle: leaf %d: %w", i, err)
		}
		leaves[i] = n
	}
	sort.Strings(leaves)

	tree := [][]string{leaves}
	level := leaves
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := level[i] // odd node pairs with itself
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, combine(level[i], right))
		}
		tree = append(tree, next)
		level = next
	}

	return &Batch{
		BatchID:   newBatchID(),
		Root:      level[0],
		Leaves:    leaves,
		Tree:      tree,
		LeafCount: len(leaves),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ComputeRoot returns only the root a batch of hashes would commit to.
func ComputeRoot(hashes []string) (string, error) {
	b, err := NewBatch(hashes)
	if err != nil {
		return "", err
	}
	return b.Root, nil
}

// Height returns the number of levels in the tree.
func (b *Batch) Height() int {
	return len(b.Tree)
}

// Contains reports whether hash is one of the batch's leaves.
func (b *Batch) Contains(hash string) bool {
	n, err := digest.Normalize(hash)
	if err != nil {
		return false
	}
	_, ok := b.leafIndex(n)
	return ok
}

func (b *Batch) leafIndex(normalized string) (int, bool) {
	i := sort.SearchStrings(b.Leaves, normalized)
	if i < len(b.Leaves) && b.Leaves[i] == normalized {
		return i, true
	}
	return 0, false
}

// combine hashes the concatenation of two node digests, sorting the pair
// first so combine(a, b) == combine(b, a). Commutativity removes left/right
// position ambiguity, so proof steps carry no side flag.
func combine(a, b string) string {
	ab, err := digest.RawBytes(a)
	if err != nil {
		// Nodes only ever come from Normalize or combine itself; a decode
		// failure means internal corruption, not caller input.
		panic(fmt.Sprintf("merkle: corrupt node %q: %v", a, err))
	}
	bb, err := digest.RawBytes(b)
	if err != nil {
		panic(fmt.Sprintf("merkle: corrupt node %q: %v", b, err))
	}
	if bytes.Compare(ab, bb) > 0 {
		ab, bb = bb, ab
	}
	buf := make([]byte, 0, len(ab)+len(bb))
	buf = append(buf, ab...)
	buf = append(buf, bb...)
	h := sha256.Sum256(buf)
	return digest.Prefix + hex.EncodeToString(h[:])
}

// newBatchID derives a fresh unique id from the current time plus random
// bytes.
func newBatchID() string {
	return fmt.Sprintf("batch-%d-%s", time.Now().UTC().UnixNano(), uuid.New().String()[:8])
}
