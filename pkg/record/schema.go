package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// recordSchema is the JSON Schema enforced on incoming records before they
// are hashed. Extra keys are allowed: parameters and context are open
// mappings, and unknown top-level fields pass through to canonicalization.
const recordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["model", "prompt_hash", "output_hash"],
  "properties": {
    "model": {"type": "string", "minLength": 1},
    "prompt_hash": {"type": "string", "pattern": "^(0[xX])?[0-9a-fA-F]+$"},
    "output_hash": {"type": "string", "pattern": "^(0[xX])?[0-9a-fA-F]+$"},
    "parameters": {"type": ["object", "null"]},
    "context": {"type": ["object", "null"]},
    "timestamp": {"type": ["integer", "null"]},
    "nonce": {"type": ["string", "null"]}
  }
}`

const recordSchemaURL = "https://anchorite.schemas.local/record.schema.json"

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(recordSchemaURL, strings.NewReader(recordSchema)); err != nil {
			compileErr = fmt.Errorf("record: schema load failed: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(recordSchemaURL)
	})
	return compiledSchema, compileErr
}

// Validate checks rec against the record schema. The schema is a coarse
// admission gate at the service boundary; the hasher applies its own
// stricter field normalization afterwards.
func Validate(rec map[string]any) error {
	s, err := compiled()
	if err != nil {
		return err
	}
	instance, err := toValidatable(rec)
	if err != nil {
		return err
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("record: schema validation failed: %w", err)
	}
	return nil
}

// toValidatable round-trips rec through JSON so the validator only sees the
// raw value types it supports. Go callers hand us int timestamps; decoded
// HTTP payloads hand us json.Number. Both normalize here.
func toValidatable(rec map[string]any) (any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("record: not representable as JSON: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("record: decode failed: %w", err)
	}
	return instance, nil
}
