package lock

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"vetting/pkg/platform/clock"
	"vetting/pkg/platform/sentinel"
)

const shardCount = 32

type lease struct {
	token   string
	expires time.Time
}

type shard struct {
	mu     sync.Mutex
	leases map[string]lease
}

// Memory is an in-process Locker with sharded mutexes so unrelated keys
// do not contend.
type Memory struct {
	shards [shardCount]*shard
	clock  clock.Clock
}

func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.Real()
	}
	m := &Memory{clock: c}
	for i := range m.shards {
		m.shards[i] = &shard{leases: make(map[string]lease)}
	}
	return m
}

func (m *Memory) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return m.shards[h.Sum32()%shardCount]
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (Release, error) {
	sh := m.shardFor(key)
	now := m.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if held, ok := sh.leases[key]; ok && now.Before(held.expires) {
		return nil, sentinel.ErrLocked
	}
	token := uuid.NewString()
	sh.leases[key] = lease{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		sh.mu.Lock()
		defer sh.mu.Unlock()
		if held, ok := sh.leases[key]; ok && held.token == token {
			delete(sh.leases, key)
		}
		return nil
	}, nil
}
