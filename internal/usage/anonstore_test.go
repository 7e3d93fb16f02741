package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

type stubCounterStore struct {
	mu     sync.Mutex
	counts map[string]domain.AnonCounts
	gets   int
	err    error
}

func newStubCounterStore() *stubCounterStore {
	return &stubCounterStore{counts: make(map[string]domain.AnonCounts)}
}

func (s *stubCounterStore) Get(_ context.Context, token string) (domain.AnonCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.err != nil {
		return domain.AnonCounts{}, s.err
	}
	return s.counts[token], nil
}

func (s *stubCounterStore) Upsert(_ context.Context, token string, c domain.AnonCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.counts[token] = c
	return nil
}

func newClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			now = now.Add(d)
		}
}

func TestCountsReadsThroughToPersistentStore(t *testing.T) {
	persist := newStubCounterStore()
	persist.counts["sess"] = domain.AnonCounts{QuickUsed: 2, PremiumUsed: 1}

	s := NewAnonymousUsageStore(persist, AnonStoreOptions{}, zerolog.Nop())
	id := domain.Identity{SessionToken: "sess"}

	got := s.Counts(context.Background(), id)
	if got.QuickUsed != 2 || got.PremiumUsed != 1 {
		t.Fatalf("Counts = %+v", got)
	}
	// Second read is served from cache.
	s.Counts(context.Background(), id)
	if persist.gets != 1 {
		t.Fatalf("persistent store hit %d times, want 1", persist.gets)
	}
}

func TestCountsDegradesOnStoreFailure(t *testing.T) {
	persist := newStubCounterStore()
	persist.err = errors.New("connection refused")

	s := NewAnonymousUsageStore(persist, AnonStoreOptions{}, zerolog.Nop())
	got := s.Counts(context.Background(), domain.Identity{SessionToken: "sess"})
	if got.QuickUsed != 0 || got.PremiumUsed != 0 {
		t.Fatalf("Counts = %+v, want zero on store failure", got)
	}
}

func TestCacheExpiryRefetchesFromStore(t *testing.T) {
	persist := newStubCounterStore()
	persist.counts["sess"] = domain.AnonCounts{QuickUsed: 1}

	clock, advance := newClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewAnonymousUsageStore(persist, AnonStoreOptions{CacheTTL: time.Minute}, zerolog.Nop())
	s.SetClock(clock)

	id := domain.Identity{SessionToken: "sess"}
	s.Counts(context.Background(), id)

	// Another process bumped the persistent counter; after the TTL the
	// cache picks it up.
	persist.counts["sess"] = domain.AnonCounts{QuickUsed: 7}
	advance(2 * time.Minute)
	if got := s.Counts(context.Background(), id); got.QuickUsed != 7 {
		t.Fatalf("QuickUsed = %d, want 7 after cache expiry", got.QuickUsed)
	}
}

func TestFallbackSharedByAddress(t *testing.T) {
	s := NewAnonymousUsageStore(nil, AnonStoreOptions{}, zerolog.Nop())

	// Two identities behind one address share one fallback counter. This
	// is the documented weakness of the address key.
	a := domain.Identity{NetworkAddress: "203.0.113.9"}
	b := domain.Identity{NetworkAddress: "203.0.113.9"}
	s.Increment(context.Background(), a, domain.OperationQuick)
	s.Increment(context.Background(), b, domain.OperationQuick)

	if got := s.Counts(context.Background(), a); got.QuickUsed != 2 {
		t.Fatalf("QuickUsed = %d, want 2 (shared counter)", got.QuickUsed)
	}
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	clock, advance := newClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewAnonymousUsageStore(nil, AnonStoreOptions{CacheTTL: time.Minute, FallbackTTL: time.Hour}, zerolog.Nop())
	s.SetClock(clock)

	s.Increment(context.Background(), domain.Identity{SessionToken: "sess"}, domain.OperationQuick)
	s.Increment(context.Background(), domain.Identity{NetworkAddress: "203.0.113.1"}, domain.OperationQuick)

	advance(30 * time.Minute)
	s.Sweep()
	cacheLen, fallbackLen := s.CachedLen()
	if cacheLen != 0 {
		t.Fatalf("cache len = %d, want 0 after TTL", cacheLen)
	}
	if fallbackLen != 1 {
		t.Fatalf("fallback len = %d, want 1 before its TTL", fallbackLen)
	}

	advance(time.Hour)
	s.Sweep()
	if _, fallbackLen = s.CachedLen(); fallbackLen != 0 {
		t.Fatalf("fallback len = %d, want 0 after TTL", fallbackLen)
	}
}

func TestSweepCompactsOldestHalf(t *testing.T) {
	clock, advance := newClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	s := NewAnonymousUsageStore(nil, AnonStoreOptions{FallbackTTL: 24 * time.Hour, MaxFallbackEntries: 4}, zerolog.Nop())
	s.SetClock(clock)

	for i := 0; i < 6; i++ {
		addr := fmt.Sprintf("203.0.113.%d", i)
		s.Increment(context.Background(), domain.Identity{NetworkAddress: addr}, domain.OperationQuick)
		advance(time.Minute)
	}

	s.Sweep()
	_, fallbackLen := s.CachedLen()
	if fallbackLen != 3 {
		t.Fatalf("fallback len = %d, want 3 (oldest half of 6 evicted)", fallbackLen)
	}
	// The newest entries survive.
	if got := s.Counts(context.Background(), domain.Identity{NetworkAddress: "203.0.113.5"}); got.QuickUsed != 1 {
		t.Fatal("newest entry evicted")
	}
	if got := s.Counts(context.Background(), domain.Identity{NetworkAddress: "203.0.113.0"}); got.QuickUsed != 0 {
		t.Fatal("oldest entry survived compaction")
	}
}

func TestIncrementIsAtomicPerKey(t *testing.T) {
	s := NewAnonymousUsageStore(nil, AnonStoreOptions{}, zerolog.Nop())
	id := domain.Identity{SessionToken: "sess"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Increment(context.Background(), id, domain.OperationQuick)
		}()
	}
	wg.Wait()

	if got := s.Counts(context.Background(), id); got.QuickUsed != 50 {
		t.Fatalf("QuickUsed = %d, want 50 (no lost updates)", got.QuickUsed)
	}
}
