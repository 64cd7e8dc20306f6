// Package schema holds the registry of data operation wire versions. Each
// version pairs a field allow-list with the JSON Schema document that the
// serialized operation must satisfy.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
)

//go:embed schemas/*.json
var documents embed.FS

// Definition describes one wire version before its schema is compiled.
type Definition struct {
	ID       string
	Fields   []string
	Document []byte
}

// Version is a compiled, immutable registry entry.
type Version struct {
	ID       string
	Fields   []string
	Document []byte

	allowed  map[string]struct{}
	resolved *jsonschema.Resolved
}

// Allows reports whether field survives serialization for this version.
func (v *Version) Allows(field string) bool {
	_, ok := v.allowed[field]
	return ok
}

// Validate checks an encoded operation against the version's schema.
func (v *Version) Validate(doc []byte) error {
	var instance any
	if err := json.Unmarshal(doc, &instance); err != nil {
		return fmt.Errorf("%w: decode %s payload: %v", errs.ErrSchemaValidation, v.ID, err)
	}
	if err := v.resolved.Validate(instance); err != nil {
		return fmt.Errorf("%w: version %s: %v", errs.ErrSchemaValidation, v.ID, err)
	}
	return nil
}

type Registry struct {
	versions []*Version // newest first
}

// NewRegistry compiles defs, which must be ordered newest first. The first
// definition is the latest version.
func NewRegistry(defs ...Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("schema registry: no versions")
	}
	r := &Registry{versions: make([]*Version, 0, len(defs))}
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("schema registry: version id is required")
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("schema registry: duplicate version %q", d.ID)
		}
		seen[d.ID] = struct{}{}

		var s jsonschema.Schema
		if err := json.Unmarshal(d.Document, &s); err != nil {
			return nil, fmt.Errorf("schema %s: parse: %w", d.ID, err)
		}
		resolved, err := s.Resolve(nil)
		if err != nil {
			return nil, fmt.Errorf("schema %s: resolve: %w", d.ID, err)
		}
		allowed := make(map[string]struct{}, len(d.Fields))
		for _, f := range d.Fields {
			allowed[f] = struct{}{}
		}
		r.versions = append(r.versions, &Version{
			ID:       d.ID,
			Fields:   slices.Clone(d.Fields),
			Document: slices.Clone(d.Document),
			allowed:  allowed,
			resolved: resolved,
		})
	}
	return r, nil
}

// Resolve returns the entry for version, or the latest entry when version is
// empty.
func (r *Registry) Resolve(version string) (*Version, error) {
	if version == "" {
		return r.Latest(), nil
	}
	for _, v := range r.versions {
		if v.ID == version {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedVersion, version)
}

func (r *Registry) Latest() *Version { return r.versions[0] }

// Versions lists version ids newest first.
func (r *Registry) Versions() []string {
	out := make([]string, len(r.versions))
	for i, v := range r.versions {
		out[i] = v.ID
	}
	return out
}

var (
	fieldsV040 = []string{
		"client", "callback", "sources", "format", "user",
		"subset", "isSynchronous", "requestId", "temporal",
	}
	fieldsV030 = fieldsV040[:8]
	fieldsV020 = fieldsV040[:6]
)

// Builtin returns the definitions shipped with the service, newest first.
func Builtin() ([]Definition, error) {
	specs := []struct {
		id     string
		fields []string
	}{
		{"0.4.0", fieldsV040},
		{"0.3.0", fieldsV030},
		{"0.2.0", fieldsV020},
	}
	defs := make([]Definition, 0, len(specs))
	for _, s := range specs {
		doc, err := documents.ReadFile("schemas/data-operation-v" + s.id + ".json")
		if err != nil {
			return nil, fmt.Errorf("read embedded schema %s: %w", s.id, err)
		}
		defs = append(defs, Definition{ID: s.id, Fields: s.fields, Document: doc})
	}
	return defs, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	defs, err := Builtin()
	if err != nil {
		panic(err)
	}
	r, err := NewRegistry(defs...)
	if err != nil {
		panic(err)
	}
	return r
})

// Default returns the process-wide registry built from the embedded schemas.
func Default() *Registry { return defaultRegistry() }
