package verify

import (
	"fmt"
	"strings"
)

// Explanation separates what a verification run actually established from
// the structural limits of the proof system itself.
type Explanation struct {
	Proven      []string `json:"proven"`
	NotProven   []string `json:"not_proven"`
	Assumptions []string `json:"assumptions"`
}

// The NotProven and Assumptions lists describe the proof system, not any
// particular check, so they are constant regardless of the verdict.
var (
	notProven = []string{
		"who created or submitted the recorded metadata",
		"that all inferences were recorded (completeness)",
		"the semantic correctness of the recorded content",
	}
	assumptions = []string{
		"the digest function is collision-resistant",
		"the ledger registry is append-only and immutable",
		"recorder and verifier agree on the canonicalization rules",
	}
)

// Explain maps a Result to the three fixed claim lists. Pure function of
// the result.
func Explain(res *Result) Explanation {
	ex := Explanation{
		NotProven:   append([]string(nil), notProven...),
		Assumptions: append([]string(nil), assumptions...),
	}

	if res == nil || !res.Verified {
		ex.Proven = []string{"unable to verify: no claim is established"}
		return ex
	}

	ex.Proven = []string{
		fmt.Sprintf("the metadata hashes to content hash %s", res.ContentHash),
		fmt.Sprintf("the content hash is a leaf of the batch committing to root %s", res.Root),
		fmt.Sprintf("the root was anchored in transaction %s at block %d on chain %s",
			res.Anchor.TxID, res.Anchor.BlockHeight, res.Anchor.ChainID),
		fmt.Sprintf("the metadata existed, unmodified, before %s",
			res.Anchor.AnchoredAt.Format("2006-01-02 15:04:05 UTC")),
	}
	return ex
}

// Report renders a result as human-readable lines. Pure function of the
// result, no I/O.
func Report(res *Result) string {
	var sb strings.Builder

	sb.WriteString("VERIFICATION REPORT\n")
	sb.WriteString(fmt.Sprintf("checked at: %s\n", res.CheckedAt.Format("2006-01-02 15:04:05 UTC")))
	if res.Verified {
		sb.WriteString("verdict:    VERIFIED\n")
	} else {
		sb.WriteString("verdict:    NOT VERIFIED\n")
		if res.Cause != "" {
			sb.WriteString(fmt.Sprintf("cause:      %s\n", res.Cause))
		}
	}

	if res.ContentHash != "" {
		sb.WriteString(fmt.Sprintf("content hash: %s\n", res.ContentHash))
	}
	if res.Root != "" {
		sb.WriteString(fmt.Sprintf("batch root:   %s\n", res.Root))
	}
	if res.Proof != nil {
		sb.WriteString(fmt.Sprintf("proof:        leaf index %d, %d siblings\n",
			res.Proof.LeafIndex, len(res.Proof.SiblingPath)))
	}
	if res.Anchor != nil {
		sb.WriteString(fmt.Sprintf("anchor:       tx %s, block %d, chain %s, at %s\n",
			res.Anchor.TxID, res.Anchor.BlockHeight, res.Anchor.ChainID,
			res.Anchor.AnchoredAt.Format("2006-01-02 15:04:05 UTC")))
	}

	ex := Explain(res)
	sb.WriteString("\nproven:\n")
	for _, claim := range ex.Proven {
		sb.WriteString("  - " + claim + "\n")
	}
	sb.WriteString("not proven:\n")
	for _, claim := range ex.NotProven {
		sb.WriteString("  - " + claim + "\n")
	}
	sb.WriteString("assumptions:\n")
	for _, claim := range ex.Assumptions {
		sb.WriteString("  - " + claim + "\n")
	}
	return sb.String()
}
