package workitems

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recNotifier) Publish(_ context.Context, event, jobID string) {
	n.mu.Lock()
	n.events = append(n.events, event+":"+jobID)
	n.mu.Unlock()
}

func (n *recNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// backend answers 200 until polls checking job status exceed runningPolls
type backend struct {
	mu           sync.Mutex
	runningPolls int
	checked      int
	queries      []string
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = append(b.queries, r.URL.Path+"?"+r.URL.RawQuery)
	if r.URL.Query().Get("checkJobStatus") == "true" {
		b.checked++
		if b.checked > b.runningPolls {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	_, _ = fmt.Fprintf(w, "<table>%d</table>", len(b.queries))
}

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func newPoller(t *testing.T, srv *httptest.Server, f *Filter, sink Sink, n Notifier) *Poller {
	t.Helper()
	p, err := New(quiet, srv.Client(), Config{BaseURL: srv.URL + "/workflow-ui", Interval: time.Millisecond, Filter: f}, sink, n)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.after = immediate
	return p
}

func TestRun_PollsWhileRunningThenFinalLoad(t *testing.T) {
	be := &backend{runningPolls: 2}
	srv := httptest.NewServer(be)
	defer srv.Close()

	tables := NewTables()
	n := &recNotifier{}
	p := newPoller(t, srv, nil, tables, n)

	if err := p.Run(context.Background(), "job-1", 2, 10); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		"/workflow-ui/job-1/work-items?checkJobStatus=false&limit=10&page=2",
		"/workflow-ui/job-1/work-items?checkJobStatus=true&limit=10&page=2",
		"/workflow-ui/job-1/work-items?checkJobStatus=true&limit=10&page=2",
		"/workflow-ui/job-1/work-items?checkJobStatus=true&limit=10&page=2",
		"/workflow-ui/job-1/work-items?checkJobStatus=false&limit=10&page=2",
	}
	if len(be.queries) != len(want) {
		t.Fatalf("got %d requests %v want %d", len(be.queries), be.queries, len(want))
	}
	for i := range want {
		if be.queries[i] != want[i] {
			t.Fatalf("request %d: got %q want %q", i, be.queries[i], want[i])
		}
	}
	if n.count() != len(want) {
		t.Fatalf("notifications=%d want %d", n.count(), len(want))
	}
	if n.events[0] != EventTableLoaded+":job-1" {
		t.Fatalf("got event %q", n.events[0])
	}

	tb, ok := tables.Latest("job-1")
	if !ok || string(tb.Fragment) != "<table>5</table>" || tb.Page != 2 {
		t.Fatalf("unexpected latest table %+v ok=%v", tb, ok)
	}
}

func TestRun_NotRunningSkipsPolling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	n := &recNotifier{}
	p := newPoller(t, srv, nil, nil, n)
	if err := p.Run(context.Background(), "job-2", 1, 5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// initial and final
	if n.count() != 2 {
		t.Fatalf("notifications=%d want 2", n.count())
	}
}

func TestRun_CanceledStopsWithoutFinalLoad(t *testing.T) {
	be := &backend{runningPolls: 1 << 30}
	srv := httptest.NewServer(be)
	defer srv.Close()

	p := newPoller(t, srv, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan time.Time)
	calls := 0
	p.after = func(time.Duration) <-chan time.Time {
		calls++
		if calls == 2 {
			cancel()
			return block
		}
		return immediate(0)
	}

	if err := p.Run(ctx, "job-3", 1, 5); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v want context.Canceled", err)
	}
	be.mu.Lock()
	defer be.mu.Unlock()
	if len(be.queries) != 2 {
		t.Fatalf("got %d requests want 2: %v", len(be.queries), be.queries)
	}
}

func TestTableURL_Filter(t *testing.T) {
	p, err := New(quiet, nil, Config{
		BaseURL: "http://harmony.local/workflow-ui",
		Filter:  &Filter{Table: "status: failed", DisallowStatus: true},
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := p.TableURL("abc", 1, 20, true)
	want := "http://harmony.local/workflow-ui/abc/work-items?checkJobStatus=true&disallowStatus=on&limit=20&page=1&tableFilter=status%3A+failed"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}

	p.filter = &Filter{}
	got = p.TableURL("abc", 1, 20, false)
	want = "http://harmony.local/workflow-ui/abc/work-items?checkJobStatus=false&disallowStatus=&limit=20&page=1&tableFilter="
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestNew_InvalidBase(t *testing.T) {
	if _, err := New(quiet, nil, Config{BaseURL: "not a url"}, nil, nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestWatcher_StartRefreshStop(t *testing.T) {
	be := &backend{runningPolls: 1 << 30}
	srv := httptest.NewServer(be)
	defer srv.Close()

	tables := NewTables()
	p, err := New(quiet, srv.Client(), Config{BaseURL: srv.URL, Interval: time.Hour}, tables, LogNotifier{Log: quiet})
	if err != nil {
		t.Fatal(err)
	}
	w := NewWatcher(context.Background(), p)

	if !w.Start("job-4", 1, 10) {
		t.Fatalf("first Start should begin polling")
	}
	if w.Start("job-4", 1, 10) {
		t.Fatalf("second Start should be ignored")
	}
	if !w.Watching("job-4") {
		t.Fatalf("job-4 should be watched")
	}

	w.Refresh(context.Background(), "job-4")
	w.Refresh(context.Background(), "unwatched")

	if _, ok := tables.Latest("job-4"); !ok {
		t.Fatalf("refresh should have stored a fragment")
	}

	w.Stop()
	if w.Watching("job-4") {
		t.Fatalf("job-4 still watched after Stop")
	}
}
