// Package doccache memoizes rendered STAC documents per job snapshot, so that
// repeated or concurrent polls for an unchanged job return identical bytes.
package doccache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
	"github.com/mohammed-shakir/harmony-core/internal/core/observability"
	"github.com/mohammed-shakir/harmony-core/internal/job"
	"github.com/mohammed-shakir/harmony-core/internal/stac"
)

// Rendered holds the encoded catalog and items of one job snapshot.
type Rendered struct {
	Fingerprint string
	Catalog     []byte
	Items       [][]byte
}

type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, *Rendered]
}

func New(size int) *Cache {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, *Rendered](size)
	return &Cache{lru: c}
}

// Fingerprint hashes the canonical JSON of the job.
func Fingerprint(j *job.Job) (string, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b)), nil
}

// Get returns the rendered documents for j, building them on a miss.
func (c *Cache) Get(j *job.Job) (*Rendered, error) {
	if err := job.Check(j); err != nil {
		return nil, err
	}
	fp, err := Fingerprint(j)
	if err != nil {
		return nil, err
	}
	key := j.RequestID() + ":" + fp

	c.mu.Lock()
	r, ok := c.lru.Get(key)
	c.mu.Unlock()
	if ok {
		observability.IncDocCache("hit")
		return r, nil
	}
	observability.IncDocCache("miss")

	r, err = render(j, fp)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if prev, ok := c.lru.Get(key); ok {
		r = prev
	} else {
		c.lru.Add(key, r)
	}
	c.mu.Unlock()
	return r, nil
}

// Item returns the encoded item at index.
func (r *Rendered) Item(index int) ([]byte, error) {
	if index < 0 || index >= len(r.Items) {
		return nil, fmt.Errorf("%w: item index %d outside [0,%d)", errs.ErrMalformedInput, index, len(r.Items))
	}
	return r.Items[index], nil
}

func render(j *job.Job, fp string) (*Rendered, error) {
	cat, items, err := stac.Documents(j)
	if err != nil {
		return nil, err
	}
	out := &Rendered{Fingerprint: fp, Items: make([][]byte, 0, len(items))}
	if out.Catalog, err = json.Marshal(cat); err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	for i, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("encode item %d: %w", i, err)
		}
		out.Items = append(out.Items, b)
	}
	return out, nil
}
