package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// AnonStoreOptions tunes the in-process anonymous usage store.
type AnonStoreOptions struct {
	// CacheTTL bounds staleness of session-token entries relative to the
	// persistent counter store.
	CacheTTL time.Duration
	// FallbackTTL bounds the lifetime of network-address entries, which have
	// no persistent backing at all.
	FallbackTTL time.Duration
	// MaxFallbackEntries caps the fallback map. When exceeded, the oldest
	// half by last write is evicted.
	MaxFallbackEntries int
	// SweepInterval is the eviction timer period.
	SweepInterval time.Duration
}

func (o *AnonStoreOptions) applyDefaults() {
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Minute
	}
	if o.FallbackTTL <= 0 {
		o.FallbackTTL = 24 * time.Hour
	}
	if o.MaxFallbackEntries <= 0 {
		o.MaxFallbackEntries = 10000
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
}

type anonEntry struct {
	counts    domain.AnonCounts
	expiresAt time.Time
	lastWrite time.Time
}

// AnonymousUsageStore tracks quick/premium counts for unauthenticated
// callers. Session-token entries are a short-lived cache over the external
// persistent counter store; network-address entries are a best-effort
// fallback with no durable backing. Reads may be stale by up to CacheTTL.
type AnonymousUsageStore struct {
	mu       sync.Mutex
	cache    map[string]*anonEntry
	fallback map[string]*anonEntry

	persist domain.AnonCounterStore
	opts    AnonStoreOptions
	clock   func() time.Time
	logger  zerolog.Logger
}

// NewAnonymousUsageStore builds the store. persist may be nil, in which case
// session-token counters live only in process memory.
func NewAnonymousUsageStore(persist domain.AnonCounterStore, opts AnonStoreOptions, logger zerolog.Logger) *AnonymousUsageStore {
	opts.applyDefaults()
	return &AnonymousUsageStore{
		cache:    make(map[string]*anonEntry),
		fallback: make(map[string]*anonEntry),
		persist:  persist,
		opts:     opts,
		clock:    time.Now,
		logger:   logger,
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *AnonymousUsageStore) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Counts returns the current counters for an anonymous identity. Session
// tokens read through the cache and fall back to the persistent store on a
// miss; identities without a token read the network-address fallback map. A
// persistent-store failure degrades to zero counts rather than an error.
func (s *AnonymousUsageStore) Counts(ctx context.Context, id domain.Identity) domain.AnonCounts {
	now := s.clock()

	key := id.AnonKey()

	if id.HasDurableToken() {
		s.mu.Lock()
		if e, ok := s.cache[key]; ok && now.Before(e.expiresAt) {
			counts := e.counts
			s.mu.Unlock()
			return counts
		}
		s.mu.Unlock()

		counts := domain.AnonCounts{}
		if s.persist != nil {
			got, err := s.persist.Get(ctx, key)
			if err != nil {
				s.logger.Warn().Err(err).Msg("anon counter store read failed, assuming zero usage")
			} else {
				counts = got
			}
		}
		s.mu.Lock()
		// Re-check: a concurrent caller may have refreshed (or bumped) the
		// entry while the store read was in flight. Never clobber a fresh
		// entry.
		if e, ok := s.cache[key]; ok && now.Before(e.expiresAt) {
			counts = e.counts
			s.mu.Unlock()
			return counts
		}
		s.cache[key] = &anonEntry{
			counts:    counts,
			expiresAt: now.Add(s.opts.CacheTTL),
			lastWrite: now,
		}
		s.mu.Unlock()
		return counts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.fallback[key]; ok && now.Before(e.expiresAt) {
		return e.counts
	}
	return domain.AnonCounts{}
}

// Increment bumps the counter for the given class and returns the new
// counts plus whether the caller should push them to the persistent store
// (true only when a durable session token exists). The bump is atomic per
// key: concurrent increments for the same identity never lose updates.
func (s *AnonymousUsageStore) Increment(ctx context.Context, id domain.Identity, class domain.OperationClass) (domain.AnonCounts, bool) {
	now := s.clock()
	key := id.AnonKey()

	if id.HasDurableToken() {
		// Read-through first so the bump lands on top of persisted counts.
		s.Counts(ctx, id)

		s.mu.Lock()
		e, ok := s.cache[key]
		if !ok {
			e = &anonEntry{}
			s.cache[key] = e
		}
		bump(&e.counts, class)
		e.expiresAt = now.Add(s.opts.CacheTTL)
		e.lastWrite = now
		counts := e.counts
		s.mu.Unlock()
		return counts, true
	}

	s.mu.Lock()
	e, ok := s.fallback[key]
	if !ok || !now.Before(e.expiresAt) {
		e = &anonEntry{}
		s.fallback[key] = e
	}
	bump(&e.counts, class)
	e.expiresAt = now.Add(s.opts.FallbackTTL)
	e.lastWrite = now
	counts := e.counts
	s.mu.Unlock()
	return counts, false
}

func bump(c *domain.AnonCounts, class domain.OperationClass) {
	if class == domain.OperationPremium {
		c.PremiumUsed++
	} else {
		c.QuickUsed++
	}
}

// Sweep evicts expired entries from both maps and compacts the fallback map
// when it has grown past its ceiling by dropping the oldest half by last
// write. Forgetting a still-active caller is an accepted trade-off for
// bounded memory under a flood of distinct addresses.
func (s *AnonymousUsageStore) Sweep() {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.cache {
		if !now.Before(e.expiresAt) {
			delete(s.cache, k)
		}
	}
	for k, e := range s.fallback {
		if !now.Before(e.expiresAt) {
			delete(s.fallback, k)
		}
	}

	if len(s.fallback) <= s.opts.MaxFallbackEntries {
		return
	}
	type keyed struct {
		key       string
		lastWrite time.Time
	}
	entries := make([]keyed, 0, len(s.fallback))
	for k, e := range s.fallback {
		entries = append(entries, keyed{key: k, lastWrite: e.lastWrite})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastWrite.Before(entries[j].lastWrite)
	})
	for _, e := range entries[:len(entries)/2] {
		delete(s.fallback, e.key)
	}
}

// Run drives the eviction timer until ctx is cancelled. It is meant to run
// in its own goroutine, fully decoupled from request handling.
func (s *AnonymousUsageStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// CachedLen reports current map sizes. Intended for tests and debugging.
func (s *AnonymousUsageStore) CachedLen() (cache, fallback int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache), len(s.fallback)
}
