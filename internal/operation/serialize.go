package operation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
	"github.com/mohammed-shakir/harmony-core/internal/schema"
)

type serializeOptions struct {
	validate bool
}

type SerializeOption func(*serializeOptions)

// WithoutValidation skips the JSON Schema check and returns the encoded
// payload even when it does not conform.
func WithoutValidation() SerializeOption {
	return func(o *serializeOptions) { o.validate = false }
}

// WithValidation sets the validation flag explicitly.
func WithValidation(v bool) SerializeOption {
	return func(o *serializeOptions) { o.validate = v }
}

// Serializer encodes operations against a schema registry.
type Serializer struct {
	reg *schema.Registry
}

func NewSerializer(reg *schema.Registry) *Serializer {
	if reg == nil {
		reg = schema.Default()
	}
	return &Serializer{reg: reg}
}

var defaultSerializer = &Serializer{}

// Serialize encodes o for version using the built-in registry. An empty
// version selects the latest one.
func (o *DataOperation) Serialize(version string, opts ...SerializeOption) (string, error) {
	return defaultSerializer.Serialize(o, version, opts...)
}

// Serialize writes the allow-listed fields of op in assignment order followed
// by a trailing "version" key, as compact JSON.
func (s *Serializer) Serialize(op *DataOperation, version string, opts ...SerializeOption) (string, error) {
	cfg := serializeOptions{validate: true}
	for _, f := range opts {
		f(&cfg)
	}
	if op == nil || op.values == nil {
		return "", fmt.Errorf("%w: operation was not built with operation.New or operation.Decode", errs.ErrMalformedInput)
	}
	reg := s.reg
	if reg == nil {
		reg = schema.Default()
	}
	v, err := reg.Resolve(version)
	if err != nil {
		return "", err
	}

	out := []byte("{}")
	for _, field := range op.order {
		if !v.Allows(field) {
			continue
		}
		raw, err := marshalCompact(op.values[field])
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", field, err)
		}
		if out, err = sjson.SetRawBytes(out, field, raw); err != nil {
			return "", fmt.Errorf("encode %s: %w", field, err)
		}
	}
	raw, err := marshalCompact(v.ID)
	if err != nil {
		return "", fmt.Errorf("encode version: %w", err)
	}
	if out, err = sjson.SetRawBytes(out, "version", raw); err != nil {
		return "", fmt.Errorf("encode version: %w", err)
	}

	if cfg.validate {
		if err := v.Validate(out); err != nil {
			return "", err
		}
	}
	return string(out), nil
}

// marshalCompact encodes without HTML escaping so URLs keep their '&'.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
