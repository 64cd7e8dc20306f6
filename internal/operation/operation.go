// Package operation builds DataOperation records and serializes them into
// the versioned wire format consumed by backend workers.
package operation

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
)

// Wire field names.
const (
	FieldClient        = "client"
	FieldCallback      = "callback"
	FieldSources       = "sources"
	FieldFormat        = "format"
	FieldUser          = "user"
	FieldSubset        = "subset"
	FieldIsSynchronous = "isSynchronous"
	FieldRequestID     = "requestId"
	FieldTemporal      = "temporal"
)

// DataOperation is a normalized transformation request. Fields remember the
// order of their first assignment, which is the key order on the wire.
// Setters are not safe for concurrent use; serialization is read-only.
type DataOperation struct {
	order  []string
	values map[string]any
}

// New assigns every present field of m in canonical order.
func New(m Model) (*DataOperation, error) {
	o := &DataOperation{values: map[string]any{}}
	if m.Client != "" {
		o.SetClient(m.Client)
	}
	if m.Callback != "" {
		o.SetCallback(m.Callback)
	}
	if m.Sources != nil {
		o.SetSources(m.Sources)
	}
	if m.Format != nil {
		o.SetFormat(*m.Format)
	}
	if m.User != "" {
		o.SetUser(m.User)
	}
	if m.Subset != nil {
		o.SetSubset(*m.Subset)
	}
	if m.IsSynchronous != nil {
		o.SetIsSynchronous(*m.IsSynchronous)
	}
	if m.RequestID != "" {
		if err := o.SetRequestID(m.RequestID); err != nil {
			return nil, err
		}
	}
	if m.Temporal != nil {
		if err := o.SetTemporalRange(m.Temporal.Start, m.Temporal.End); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// NewRequestID returns a fresh request identifier.
func NewRequestID() string { return uuid.NewString() }

func (o *DataOperation) set(field string, v any) {
	if o.values == nil {
		o.values = map[string]any{}
	}
	if _, ok := o.values[field]; !ok {
		o.order = append(o.order, field)
	}
	o.values[field] = v
}

func (o *DataOperation) SetClient(c string)   { o.set(FieldClient, c) }
func (o *DataOperation) SetCallback(c string) { o.set(FieldCallback, c) }
func (o *DataOperation) SetUser(u string)     { o.set(FieldUser, u) }
func (o *DataOperation) SetIsSynchronous(b bool) {
	o.set(FieldIsSynchronous, b)
}

func (o *DataOperation) SetSources(s []Source) {
	if s == nil {
		s = []Source{}
	}
	o.set(FieldSources, slices.Clone(s))
}

func (o *DataOperation) SetFormat(f Format) { o.set(FieldFormat, f) }

func (o *DataOperation) SetSubset(s Subset) {
	s.BBox = slices.Clone(s.BBox)
	s.Dimensions = slices.Clone(s.Dimensions)
	o.set(FieldSubset, s)
}

func (o *DataOperation) SetRequestID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: requestId %q: %v", errs.ErrMalformedInput, id, err)
	}
	o.set(FieldRequestID, id)
	return nil
}

// SetTemporal stores the range as UTC RFC 3339 strings.
func (o *DataOperation) SetTemporal(start, end time.Time) error {
	if start.After(end) {
		return fmt.Errorf("%w: temporal start %s is after end %s",
			errs.ErrMalformedInput, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	o.set(FieldTemporal, Temporal{Start: formatTime(start), End: formatTime(end)})
	return nil
}

// SetTemporalRange parses RFC 3339 bounds; either side may be empty for an
// open range.
func (o *DataOperation) SetTemporalRange(start, end string) error {
	if start == "" && end == "" {
		return fmt.Errorf("%w: temporal range has neither start nor end", errs.ErrMalformedInput)
	}
	var t Temporal
	var st, et time.Time
	var err error
	if start != "" {
		if st, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return fmt.Errorf("%w: temporal start: %v", errs.ErrMalformedInput, err)
		}
		t.Start = formatTime(st)
	}
	if end != "" {
		if et, err = time.Parse(time.RFC3339Nano, end); err != nil {
			return fmt.Errorf("%w: temporal end: %v", errs.ErrMalformedInput, err)
		}
		t.End = formatTime(et)
	}
	if start != "" && end != "" && st.After(et) {
		return fmt.Errorf("%w: temporal start %s is after end %s", errs.ErrMalformedInput, t.Start, t.End)
	}
	o.set(FieldTemporal, t)
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Fields returns the assigned field names in assignment order.
func (o *DataOperation) Fields() []string { return slices.Clone(o.order) }

func (o *DataOperation) RequestID() string {
	s, _ := o.values[FieldRequestID].(string)
	return s
}

func (o *DataOperation) Temporal() (Temporal, bool) {
	t, ok := o.values[FieldTemporal].(Temporal)
	return t, ok
}

func (o *DataOperation) Subset() (Subset, bool) {
	s, ok := o.values[FieldSubset].(Subset)
	return s, ok
}

// Decode builds an operation from a JSON object, assigning fields in the
// order they appear in the document. A "version" key is ignored.
func Decode(data []byte) (*DataOperation, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", errs.ErrMalformedInput)
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: operation must be a json object", errs.ErrMalformedInput)
	}
	o := &DataOperation{values: map[string]any{}}
	var err error
	doc.ForEach(func(key, value gjson.Result) bool {
		err = o.assignRaw(key.String(), value)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (o *DataOperation) assignRaw(field string, v gjson.Result) error {
	switch field {
	case "version":
		return nil
	case FieldClient, FieldCallback, FieldUser:
		if v.Type != gjson.String {
			return fmt.Errorf("%w: %s must be a string", errs.ErrMalformedInput, field)
		}
		o.set(field, v.String())
	case FieldIsSynchronous:
		if !v.IsBool() {
			return fmt.Errorf("%w: %s must be a boolean", errs.ErrMalformedInput, field)
		}
		o.SetIsSynchronous(v.Bool())
	case FieldRequestID:
		return o.SetRequestID(v.String())
	case FieldSources:
		var s []Source
		if err := decodeStrict(v.Raw, &s); err != nil {
			return fmt.Errorf("%w: sources: %v", errs.ErrMalformedInput, err)
		}
		o.SetSources(s)
	case FieldFormat:
		var f Format
		if err := decodeStrict(v.Raw, &f); err != nil {
			return fmt.Errorf("%w: format: %v", errs.ErrMalformedInput, err)
		}
		o.SetFormat(f)
	case FieldSubset:
		var s Subset
		if err := decodeStrict(v.Raw, &s); err != nil {
			return fmt.Errorf("%w: subset: %v", errs.ErrMalformedInput, err)
		}
		o.SetSubset(s)
	case FieldTemporal:
		var t Temporal
		if err := decodeStrict(v.Raw, &t); err != nil {
			return fmt.Errorf("%w: temporal: %v", errs.ErrMalformedInput, err)
		}
		return o.SetTemporalRange(t.Start, t.End)
	default:
		return fmt.Errorf("%w: unknown field %q", errs.ErrMalformedInput, field)
	}
	return nil
}
