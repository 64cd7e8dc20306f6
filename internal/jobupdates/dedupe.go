package jobupdates

import (
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// offsetDedupe remembers the last applied offset per job and partition so
// messages redelivered after a rebalance are not stored twice.
type offsetDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newOffsetDedupe(size int) *offsetDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, int64](size)
	return &offsetDedupe{lru: c}
}

func dedupeKey(jobID string, partition int32) string {
	return jobID + "/" + strconv.Itoa(int(partition))
}

// stale reports whether offset was already applied.
func (d *offsetDedupe) stale(key string, offset int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && offset <= last
}

func (d *offsetDedupe) applied(key string, offset int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && offset <= last {
		return
	}
	d.lru.Add(key, offset)
}
