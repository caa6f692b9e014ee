// Package canonical produces the unique deterministic textual form of a
// structured record, on which every content hash in the system depends.
//
// The canonical form is RFC 8785 (JCS) JSON with one domain rule layered on
// top: a null value is the "absent" marker, so any object key or array
// element holding null is dropped before serialization. Object keys are
// sorted by codepoint at every depth; array order is significant and never
// sorted; no insignificant whitespace is emitted.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
)

// ErrNotAnObject is returned when the top-level value is not a mapping.
// Arrays and scalars are only canonicalized when nested inside a mapping.
var ErrNotAnObject = errors.New("canonical: top-level value must be an object")

// Canonicalize returns the canonical form of v.
//
// v may be a map[string]any, a struct with json tags, or anything else that
// marshals to a JSON object. Numbers survive with their exact textual form
// when supplied as json.Number; otherwise RFC 8785 number serialization
// applies. NaN and Infinity are rejected by the underlying JSON encoding.
func Canonicalize(v any) (string, error) {
	obj, err := decodeObject(v)
	if err != nil {
		return "", err
	}

	pruned := pruneObject(obj)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(pruned); err != nil {
		return "", fmt.Errorf("canonical: encode failed: %w", err)
	}

	out, err := jcs.Transform(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}))
	if err != nil {
		return "", fmt.Errorf("canonical: jcs transform failed: %w", err)
	}
	return string(out), nil
}

// IsCanonical reports whether text is already the canonical form of the
// record it encodes: parsing it, re-canonicalizing, and comparing
// byte-for-byte yields the original.
func IsCanonical(text string) bool {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}
	if dec.More() {
		return false
	}
	canon, err := Canonicalize(v)
	if err != nil {
		return false
	}
	return canon == text
}

// decodeObject funnels v through an intermediate JSON marshal so struct tags
// are honored, then decodes with UseNumber to preserve number literals.
func decodeObject(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}

	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: intermediate decode failed: %w", err)
	}

	obj, ok := generic.(map[string]any)
	if !ok {
		return nil, ErrNotAnObject
	}
	return obj, nil
}

func pruneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if pv, keep := pruneValue(v); keep {
			out[k] = pv
		}
	}
	return out
}

func pruneValue(v any) (any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return pruneObject(t), true
	case []any:
		out := make([]any, 0, len(t))
		for _, elem := range t {
			if pe, keep := pruneValue(elem); keep {
				out = append(out, pe)
			}
		}
		return out, true
	default:
		return v, true
	}
}
