// Package jobstore persists job records so STAC documents can be rendered
// from the latest snapshot.
package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mohammed-shakir/harmony-core/internal/job"
	"github.com/mohammed-shakir/harmony-core/internal/store/redisstore"
)

var ErrNotFound = errors.New("job not found")

type Store interface {
	Put(ctx context.Context, j *job.Job) error
	Get(ctx context.Context, id string) (*job.Job, error)
}

func Key(id string) string { return "job:" + id }

type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Redis stores each job as its canonical JSON under job:<requestId>.
type Redis struct {
	kv        kv
	ttl       time.Duration
	opTimeout time.Duration
}

func NewRedis(c *redisstore.Client, ttl, opTimeout time.Duration) *Redis {
	return &Redis{kv: c, ttl: ttl, opTimeout: opTimeout}
}

func (s *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Redis) Put(ctx context.Context, j *job.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.kv.Set(ctx, Key(j.RequestID()), b, s.ttl)
}

func (s *Redis) Get(ctx context.Context, id string) (*job.Job, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	b, err := s.kv.Get(ctx, Key(id))
	if errors.Is(err, redisstore.ErrNil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return job.Decode(b)
}

// Memory is an in-process Store for tests and single-node deployments.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{jobs: map[string][]byte{}}
}

func (m *Memory) Put(_ context.Context, j *job.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.jobs[j.RequestID()] = b
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*job.Job, error) {
	m.mu.RLock()
	b, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job.Decode(b)
}
