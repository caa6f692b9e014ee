// Package digest defines the content-hash format shared by the record
// hasher, the Merkle batch builder, and the verification pipeline:
// SHA-256, rendered as lowercase hex with a fixed "0x" prefix.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Prefix is prepended to every rendered digest.
const Prefix = "0x"

// Size is the digest width in bytes.
const Size = sha256.Size

// Sum computes the SHA-256 digest of data in canonical form.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(h[:])
}

// Normalize rewrites h into canonical form: lowercase hex with the "0x"
// prefix. The prefix on the input is optional and case-insensitive.
// Returns an error if the remainder is not a full-width hex digest.
func Normalize(h string) (string, error) {
	t := strings.ToLower(strings.TrimSpace(h))
	t = strings.TrimPrefix(t, Prefix)
	raw, err := hex.DecodeString(t)
	if err != nil {
		return "", fmt.Errorf("digest: invalid hex %q: %w", h, err)
	}
	if len(raw) != Size {
		return "", fmt.Errorf("digest: expected %d bytes, got %d", Size, len(raw))
	}
	return Prefix + t, nil
}

// RawBytes decodes a (possibly unnormalized) digest string into raw bytes.
func RawBytes(h string) ([]byte, error) {
	n, err := Normalize(h)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(strings.TrimPrefix(n, Prefix))
}

// Equal reports whether two digest strings identify the same digest,
// ignoring letter case and the optional prefix. Malformed input is never
// equal to anything.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}

// IsZero reports whether h is the all-zero digest, which the anchor
// registry rejects.
func IsZero(h string) bool {
	raw, err := RawBytes(h)
	if err != nil {
		return false
	}
	for _, b := range raw {
		if b != 0 {
			return false
		}
	}
	return true
}
