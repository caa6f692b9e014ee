// Package record computes content hashes for inference metadata records.
//
// A record is an open string-keyed mapping. The hasher projects it onto a
// normalized shape (stable field set, lowercased hex fields, empty optional
// mappings dropped), canonicalizes the projection, and digests the UTF-8
// bytes. Two records that differ only in field order, hex letter case, or
// presence of empty optional mappings hash identically.
package record

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anchorite-labs/anchorite/pkg/canonical"
	"github.com/anchorite-labs/anchorite/pkg/digest"
)

// Recognized record fields.
const (
	FieldModel      = "model"
	FieldPromptHash = "prompt_hash"
	FieldOutputHash = "output_hash"
	FieldParameters = "parameters"
	FieldContext    = "context"
	FieldTimestamp  = "timestamp"
	FieldNonce      = "nonce"
)

var errNilRecord = errors.New("record: nil record")

// HashRecord computes the content hash of rec.
//
// The hash is deterministic over logical equality: any permutation of
// fields, any letter case in the hex hash fields, and any subset of empty
// optional mappings omitted versus present-but-empty all produce the same
// digest.
func HashRecord(rec map[string]any) (string, error) {
	proj, err := project(rec)
	if err != nil {
		return "", err
	}
	canon, err := canonical.Canonicalize(proj)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}
	return digest.Sum([]byte(canon)), nil
}

// VerifyRecordHash recomputes the content hash of rec and compares it to
// claimed, ignoring letter case and the optional "0x" prefix. A mismatch is
// an ordinary false, not an error; errors are reserved for records that
// cannot be hashed at all.
func VerifyRecordHash(rec map[string]any, claimed string) (bool, error) {
	computed, err := HashRecord(rec)
	if err != nil {
		return false, err
	}
	return digest.Equal(computed, claimed), nil
}

// HashBytes digests arbitrary opaque data, e.g. raw prompt or output text
// before it is reduced to a hash field. Raw content never needs to be
// stored; only its digest enters a record.
func HashBytes(data []byte) string {
	return digest.Sum(data)
}

// project builds the normalized projection of rec that gets canonicalized.
func project(rec map[string]any) (map[string]any, error) {
	if rec == nil {
		return nil, errNilRecord
	}

	proj := make(map[string]any, len(rec))

	model, ok := rec[FieldModel].(string)
	if !ok || model == "" {
		return nil, fmt.Errorf("record: missing required field %q", FieldModel)
	}
	proj[FieldModel] = model

	for _, field := range []string{FieldPromptHash, FieldOutputHash} {
		raw, ok := rec[field].(string)
		if !ok || raw == "" {
			return nil, fmt.Errorf("record: missing required field %q", field)
		}
		norm, err := normalizeHexField(raw)
		if err != nil {
			return nil, fmt.Errorf("record: field %q: %w", field, err)
		}
		proj[field] = norm
	}

	for _, field := range []string{FieldParameters, FieldContext} {
		if v, present := rec[field]; present && v != nil {
			if m, ok := v.(map[string]any); ok {
				if len(m) > 0 {
					proj[field] = m
				}
				continue
			}
			proj[field] = v
		}
	}

	if v, present := rec[FieldTimestamp]; present && v != nil {
		proj[FieldTimestamp] = v
	}
	if v, present := rec[FieldNonce]; present && v != nil {
		proj[FieldNonce] = v
	}

	return proj, nil
}

// normalizeHexField lowercases a hex-string field and pins its prefix to
// "0x". Unlike content hashes these fields carry caller-chosen digests of
// unknown width, so only the characters are validated, not the length.
func normalizeHexField(s string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.TrimPrefix(t, "0x")
	if t == "" {
		return "", errors.New("empty hex value")
	}
	for _, c := range t {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("invalid hex character %q", c)
		}
	}
	return "0x" + t, nil
}
