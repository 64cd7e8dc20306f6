package operation

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
	"github.com/mohammed-shakir/harmony-core/internal/schema"
)

const requestID = "c045c793-19f1-43b5-9547-c87a5c7dfadb"

func boolPtr(b bool) *bool { return &b }

func baseModel(bbox []float64) Model {
	return Model{
		Client:        "harmony-test",
		Callback:      "http://example.com/callback",
		Sources:       []Source{},
		Format:        &Format{},
		User:          "test-user",
		Subset:        &Subset{BBox: bbox},
		IsSynchronous: boolPtr(true),
		RequestID:     requestID,
	}
}

// temporal assigned after construction, from native times
func validOperation(t *testing.T) *DataOperation {
	t.Helper()
	op, err := New(baseModel([]float64{-130, -45, 130, 45}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Date(1999, 1, 1, 10, 0, 0, 0, time.UTC)
	end := time.Date(2020, 2, 20, 15, 0, 0, 0, time.UTC)
	if err := op.SetTemporal(start, end); err != nil {
		t.Fatalf("SetTemporal: %v", err)
	}
	return op
}

// bbox has one too many numbers
func invalidOperation(t *testing.T) *DataOperation {
	t.Helper()
	m := baseModel([]float64{-130, -45, 130, 45, 100})
	m.Temporal = &Temporal{Start: "1999-01-01T10:00:00Z", End: "2020-02-20T15:00:00Z"}
	op, err := New(m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return op
}

func TestSetTemporal_NormalizesAtAssignment(t *testing.T) {
	op := validOperation(t)
	tmp, ok := op.Temporal()
	if !ok {
		t.Fatal("temporal not set")
	}
	if tmp.Start != "1999-01-01T10:00:00Z" || tmp.End != "2020-02-20T15:00:00Z" {
		t.Fatalf("got %+v", tmp)
	}
}

func TestSetTemporal_ConvertsZoneToUTC(t *testing.T) {
	op := &DataOperation{}
	loc := time.FixedZone("x", 2*3600)
	start := time.Date(2001, 5, 1, 12, 0, 0, 500_000_000, loc)
	if err := op.SetTemporal(start, start.Add(time.Hour)); err != nil {
		t.Fatalf("SetTemporal: %v", err)
	}
	tmp, _ := op.Temporal()
	if tmp.Start != "2001-05-01T10:00:00.5Z" {
		t.Fatalf("start=%q", tmp.Start)
	}
}

func TestSetTemporal_StartAfterEnd(t *testing.T) {
	op := &DataOperation{}
	now := time.Now()
	if err := op.SetTemporal(now, now.Add(-time.Second)); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("err=%v want ErrMalformedInput", err)
	}
	if err := op.SetTemporalRange("2020-01-02T00:00:00Z", "2020-01-01T00:00:00Z"); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("err=%v want ErrMalformedInput", err)
	}
	if _, ok := op.Temporal(); ok {
		t.Fatal("temporal must not be assigned on error")
	}
}

func TestSetTemporalRange_OpenAndInvalid(t *testing.T) {
	op := &DataOperation{}
	if err := op.SetTemporalRange("2020-01-01T00:00:00.000Z", ""); err != nil {
		t.Fatalf("open range: %v", err)
	}
	tmp, _ := op.Temporal()
	if tmp.Start != "2020-01-01T00:00:00Z" || tmp.End != "" {
		t.Fatalf("got %+v", tmp)
	}
	if err := op.SetTemporalRange("", ""); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("err=%v", err)
	}
	if err := op.SetTemporalRange("yesterday", ""); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("err=%v", err)
	}
}

func TestSetRequestID_RejectsNonUUID(t *testing.T) {
	op := &DataOperation{}
	if err := op.SetRequestID("1234"); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("err=%v want ErrMalformedInput", err)
	}
	if err := op.SetRequestID(NewRequestID()); err != nil {
		t.Fatalf("generated id rejected: %v", err)
	}
}

func TestAssignmentOrder_FirstAssignmentWins(t *testing.T) {
	op := &DataOperation{}
	op.SetUser("a")
	op.SetClient("c")
	op.SetUser("b")
	if got, want := op.Fields(), []string{"user", "client"}; !slices.Equal(got, want) {
		t.Fatalf("fields=%v want %v", got, want)
	}
}

func TestDecode_KeepsDocumentOrder(t *testing.T) {
	doc := `{"user":"u","client":"c","callback":"http://x","sources":[{"collection":"C1"}],"format":{"mime":"image/png"},"version":"0.1.0"}`
	op, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []string{"user", "client", "callback", "sources", "format"}
	if got := op.Fields(); !slices.Equal(got, want) {
		t.Fatalf("fields=%v want %v", got, want)
	}
	out, err := op.Serialize("0.2.0")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	wantOut := `{"user":"u","client":"c","callback":"http://x","sources":[{"collection":"C1"}],"format":{"mime":"image/png"},"version":"0.2.0"}`
	if out != wantOut {
		t.Fatalf("got  %s\nwant %s", out, wantOut)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"array":          `[]`,
		"unknown field":  `{"client":"c","nope":1}`,
		"client type":    `{"client":1}`,
		"bad temporal":   `{"temporal":{"start":"2020-02-01T00:00:00Z","end":"2020-01-01T00:00:00Z"}}`,
		"format unknown": `{"format":{"colour":"red"}}`,
		"sync type":      `{"isSynchronous":"yes"}`,
	}
	for name, doc := range cases {
		if _, err := Decode([]byte(doc)); !errors.Is(err, errs.ErrMalformedInput) {
			t.Fatalf("%s: err=%v want ErrMalformedInput", name, err)
		}
	}
}

func TestSerialize_FieldSetPerVersion(t *testing.T) {
	op := validOperation(t)
	reg := schema.Default()
	for _, id := range reg.Versions() {
		v, _ := reg.Resolve(id)
		out, err := op.Serialize(id)
		if err != nil {
			t.Fatalf("%s: %v", id, err)
		}
		var keys []string
		gjson.Parse(out).ForEach(func(k, _ gjson.Result) bool {
			keys = append(keys, k.String())
			return true
		})
		var want []string
		for _, f := range op.Fields() {
			if v.Allows(f) {
				want = append(want, f)
			}
		}
		want = append(want, "version")
		if !slices.Equal(keys, want) {
			t.Fatalf("%s: keys=%v want %v", id, keys, want)
		}
		if gjson.Get(out, "version").String() != id {
			t.Fatalf("%s: version=%s", id, gjson.Get(out, "version"))
		}
	}
}

func TestSerialize_EscapesNoHTML(t *testing.T) {
	m := baseModel([]float64{0, 0, 1, 1})
	m.Callback = "http://example.com/callback?a=1&b=<2>"
	op, err := New(m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := op.Serialize("0.3.0")
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if gjson.Get(out, "callback").Raw != `"http://example.com/callback?a=1&b=<2>"` {
		t.Fatalf("callback raw=%s", gjson.Get(out, "callback").Raw)
	}
}

func TestSerialize_ZeroValueRejected(t *testing.T) {
	var op DataOperation
	if _, err := op.Serialize(""); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("err=%v want ErrMalformedInput", err)
	}
	var nilOp *DataOperation
	if _, err := NewSerializer(nil).Serialize(nilOp, ""); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("err=%v want ErrMalformedInput", err)
	}
}
