package locks

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// MemoryStore provides in-process lease management for local/single-node
// deployments. Keys are spread across a fixed set of shards so claims for
// unrelated records never contend on one mutex.
type MemoryStore struct {
	shards [shardCount]memoryShard
	now    func() time.Time
}

type memoryShard struct {
	mu     sync.Mutex
	leases map[string]Lease
}

// NewMemoryStore creates a new in-memory lease store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].leases = make(map[string]Lease)
	}
	return s
}

func (s *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

// TryClaim performs the per-key compare-and-set under the shard mutex.
func (s *MemoryStore) TryClaim(ctx context.Context, key string, holder int, ttl time.Duration) (bool, int, error) {
	if err := ctx.Err(); err != nil {
		return false, 0, err
	}
	if holder <= 0 {
		return false, 0, ErrInvalidHolder
	}

	now := s.now()
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if cur, ok := sh.leases[key]; ok && !cur.Expired(now) && cur.Holder != holder {
		return false, cur.Holder, nil
	}

	sh.leases[key] = Lease{
		Holder:    holder,
		ClaimedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return true, holder, nil
}

// Release removes the lease if the holder value matches. Idempotent.
func (s *MemoryStore) Release(ctx context.Context, key string, holder int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if holder <= 0 {
		return ErrInvalidHolder
	}

	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if cur, ok := sh.leases[key]; ok && cur.Holder == holder {
		delete(sh.leases, key)
	}
	return nil
}

// Status reports the holder value per key, treating expired leases as free.
func (s *MemoryStore) Status(ctx context.Context, keys []string) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	states := make(map[string]int, len(keys))
	for _, key := range keys {
		sh := s.shard(key)
		sh.mu.Lock()
		cur, ok := sh.leases[key]
		sh.mu.Unlock()

		if ok && !cur.Expired(now) {
			states[key] = cur.Holder
		} else {
			states[key] = 0
		}
	}
	return states, nil
}

// Sweep drops expired leases from every shard.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := s.now()
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, lease := range sh.leases {
			if lease.Expired(now) {
				delete(sh.leases, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Count reports the number of live leases across all shards.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := s.now()
	count := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, lease := range sh.leases {
			if !lease.Expired(now) {
				count++
			}
		}
		sh.mu.Unlock()
	}
	return count, nil
}

// Close clears all leases.
func (s *MemoryStore) Close() error {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.leases = make(map[string]Lease)
		sh.mu.Unlock()
	}
	return nil
}
