package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
	"github.com/mohammed-shakir/harmony-core/internal/job"
	"github.com/mohammed-shakir/harmony-core/internal/store/redisstore"
)

func sampleJob(t *testing.T) *job.Job {
	t.Helper()
	j, err := job.New(job.Record{
		RequestID: "1234",
		Request:   "example.com",
		Username:  "jdoe",
		CreatedAt: "2020-02-20T12:00:00Z",
		Status:    job.StatusRunning,
		Progress:  40,
		Links: []job.Link{
			{Href: "s3://bucket/out.tif", Title: "out", Type: "image/tiff", Rel: "data", BBox: []float64{-10, -10, 10, 10}},
		},
	})
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	return j
}

func newRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	c, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewRedis(c, time.Hour, time.Second), mr
}

func checkStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	want := sampleJob(t)

	if err := s.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, "1234")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := job.Check(got); err != nil {
		t.Fatalf("stored job should come back validated: %v", err)
	}
	if got.Status() != job.StatusRunning || got.Progress() != 40 || got.CreatedAt() != "2020-02-20T12:00:00Z" {
		t.Fatalf("unexpected job %+v", got.Record())
	}
	if l := got.DataLinks(); len(l) != 1 || l[0].BBox[2] != 10 {
		t.Fatalf("unexpected links %+v", l)
	}

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v want ErrNotFound", err)
	}
}

func TestMemory_PutGet(t *testing.T) {
	checkStore(t, NewMemory())
}

func TestRedis_PutGet(t *testing.T) {
	s, mr := newRedis(t)
	checkStore(t, s)

	if !mr.Exists("job:1234") {
		t.Fatalf("expected key job:1234")
	}
	if ttl := mr.TTL("job:1234"); ttl != time.Hour {
		t.Fatalf("ttl=%v want 1h", ttl)
	}
}

func TestRedis_CorruptRecordIsMalformed(t *testing.T) {
	s, mr := newRedis(t)
	if err := mr.Set(Key("bad"), `{"requestId":"bad","status":"exploded"}`); err != nil {
		t.Fatal(err)
	}
	_, err := s.Get(context.Background(), "bad")
	if !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("got %v want ErrMalformedInput", err)
	}
}

func TestPut_RejectsUnvalidatedJob(t *testing.T) {
	if err := NewMemory().Put(context.Background(), &job.Job{}); !errors.Is(err, errs.ErrMalformedInput) {
		t.Fatalf("got %v want ErrMalformedInput", err)
	}
}
