package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rich1707/Customer-Churn/pkg/types"
)

// Entry is the latest batch of one source.
type Entry struct {
	Batch     *types.Batch
	UpdatedAt time.Time // when Batch was accepted

	// Received counts the batches accepted for the source since it was
	// first seen or last evicted.
	Received int
}

// Store keeps the latest batch per source ID. Entries not refreshed within
// the TTL are hidden from Live and List and removed by Run. A TTL of zero
// keeps entries forever.
//
// Store is safe for concurrent use.
type Store struct {
	ttl     time.Duration
	now     func() time.Time
	onEvict func(sourceIDs []string)

	mu   sync.RWMutex
	data map[string]*Entry
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]*Entry),
	}
}

// OnEvict registers fn to be called by Run with the sources it removed.
// It must be called before Run.
func (s *Store) OnEvict(fn func(sourceIDs []string)) { s.onEvict = fn }

// Put makes b the latest batch of its source and reports whether it was
// accepted. A batch derived before the one already held is refused, so a
// redelivered message cannot roll a source back.
// Callers must not modify b after calling Put.
func (s *Store) Put(b *types.Batch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.data[b.SourceID]
	if ok && cur.Batch.DerivedAt.After(b.DerivedAt) {
		return false
	}
	received := 1
	if ok {
		received = cur.Received + 1
	}
	s.data[b.SourceID] = &Entry{Batch: b, UpdatedAt: s.now(), Received: received}
	return true
}

// Get returns the entry for sourceID even if it has gone stale.
func (s *Store) Get(sourceID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[sourceID]
	return e, ok
}

// Live is Get restricted to entries within the TTL.
func (s *Store) Live(sourceID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[sourceID]
	if !ok || s.stale(e, s.now()) {
		return nil, false
	}
	return e, true
}

// List returns the live entries sorted by source ID.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	now := s.now()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if !s.stale(e, now) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Batch.SourceID < out[j].Batch.SourceID })
	return out
}

// Count returns the number of entries held, stale ones included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes the entries that are stale at now and returns their source
// IDs, sorted.
func (s *Store) Evict(now time.Time) []string {
	s.mu.Lock()
	var removed []string
	for id, e := range s.data {
		if s.stale(e, now) {
			delete(s.data, id)
			removed = append(removed, id)
		}
	}
	s.mu.Unlock()

	sort.Strings(removed)
	return removed
}

func (s *Store) stale(e *Entry, now time.Time) bool {
	return s.ttl > 0 && !e.UpdatedAt.After(now.Add(-s.ttl))
}

// Run evicts stale entries every half TTL (at least every second) until ctx
// is cancelled. With a zero TTL there is nothing to evict and Run returns.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		return
	}
	interval := max(s.ttl/2, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			removed := s.Evict(now)
			if len(removed) == 0 {
				continue
			}
			slog.Info("store: evicted stale sources", "sources", removed)
			if s.onEvict != nil {
				s.onEvict(removed)
			}
		}
	}
}
