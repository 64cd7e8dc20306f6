package workitems

import (
	"context"
	"log/slog"
	"sync"
)

// Tables keeps the latest fragment per job.
type Tables struct {
	mu     sync.RWMutex
	latest map[string]Table
}

type Table struct {
	Page     int
	Fragment []byte
}

func NewTables() *Tables {
	return &Tables{latest: map[string]Table{}}
}

func (t *Tables) Store(jobID string, page int, fragment []byte) {
	t.mu.Lock()
	t.latest[jobID] = Table{Page: page, Fragment: fragment}
	t.mu.Unlock()
}

func (t *Tables) Latest(jobID string) (Table, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tb, ok := t.latest[jobID]
	return tb, ok
}

// LogNotifier writes each event to the log.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Publish(ctx context.Context, event, jobID string) {
	n.Log.DebugContext(ctx, "work-items event", "event", event, "job", jobID)
}

// Watcher runs at most one poller per job and routes state-change
// refreshes to it.
type Watcher struct {
	parent context.Context
	poller *Poller

	mu      sync.Mutex
	running map[string]watch
	wg      sync.WaitGroup
}

type watch struct {
	page, limit int
	cancel      context.CancelFunc
}

func NewWatcher(parent context.Context, p *Poller) *Watcher {
	return &Watcher{parent: parent, poller: p, running: map[string]watch{}}
}

// Start begins polling jobID unless it is already watched.
func (w *Watcher) Start(jobID string, page, limit int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.running[jobID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(w.parent)
	w.running[jobID] = watch{page: page, limit: limit, cancel: cancel}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer cancel()
		_ = w.poller.Run(ctx, jobID, page, limit)
		w.mu.Lock()
		delete(w.running, jobID)
		w.mu.Unlock()
	}()
	return true
}

// Refresh reloads the watched page of jobID. It is a no-op for unwatched jobs.
func (w *Watcher) Refresh(ctx context.Context, jobID string) {
	w.mu.Lock()
	wt, ok := w.running[jobID]
	w.mu.Unlock()
	if !ok {
		return
	}
	w.poller.Refresh(ctx, jobID, wt.page, wt.limit)
}

func (w *Watcher) Watching(jobID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.running[jobID]
	return ok
}

// Stop cancels every poll and waits for them to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for _, wt := range w.running {
		wt.cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// Service pairs a Watcher with the Tables its poller fills.
type Service struct {
	*Watcher
	*Tables
}
