package merkle

import "github.com/anchorite-labs/anchorite/pkg/digest"

// Proof is a standalone inclusion proof. It carries everything needed to
// verify membership offline and does not reference the batch it came from.
type Proof struct {
	Leaf        string   `json:"leaf"`
	SiblingPath []string `json:"sibling_path"` // ordered bottom-to-top
	Root        string   `json:"root"`
	LeafIndex   int      `json:"leaf_index"`
}

// GenerateProof derives the inclusion proof for target. Absence is an
// expected, checked outcome: the second return is false when the normalized
// target is not a leaf of the batch, and no error is ever raised.
//
// At each level the sibling sits at index^1; when that slot is past the
// level's end (odd-width level, node is last) the node serves as its own
// sibling, mirroring the builder's self-duplication rule. The path is one
// entry shorter than the tree's height.
func (b *Batch) GenerateProof(target string) (*Proof, bool) {
	n, err := digest.Normalize(target)
	if err != nil {
		return nil, false
	}
	idx, ok := b.leafIndex(n)
	if !ok {
		return nil, false
	}

	path := make([]string, 0, len(b.Tree)-1)
	i := idx
	for lvl := 0; lvl < len(b.Tree)-1; lvl++ {
		level := b.Tree[lvl]
		sib := i ^ 1
		if sib >= len(level) {
			sib = i
		}
		path = append(path, level[sib])
		i /= 2
	}

	return &Proof{
		Leaf:        n,
		SiblingPath: path,
		Root:        b.Root,
		LeafIndex:   idx,
	}, true
}

// VerifyProof folds the commutative pairwise combination over the sibling
// path and compares the result to the proof's root, case-insensitively.
// It is a total, pure function: any mismatch or malformed field returns
// false, never an error, so verification can run entirely offline given
// only the proof.
func VerifyProof(p *Proof) bool {
	if p == nil {
		return false
	}
	cur, err := digest.Normalize(p.Leaf)
	if err != nil {
		return false
	}
	for _, sib := range p.SiblingPath {
		s, err := digest.Normalize(sib)
		if err != nil {
			return false
		}
		cur = combine(cur, s)
	}
	return digest.Equal(cur, p.Root)
}
