package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

type stubProfileStore struct {
	profiles map[string]*domain.Profile
	getErr   error
	updates  []domain.UsageFields
}

func (s *stubProfileStore) Get(_ context.Context, userID string) (*domain.Profile, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *stubProfileStore) UpsertByGoogleSub(_ context.Context, _ string, p *domain.Profile) (*domain.Profile, error) {
	return p, nil
}

func (s *stubProfileStore) UpdateUsage(_ context.Context, userID string, f domain.UsageFields) error {
	s.updates = append(s.updates, f)
	if p, ok := s.profiles[userID]; ok {
		p.QuickUsed = f.QuickUsed
		p.PremiumUsed = f.PremiumUsed
		p.MonthlyUsed = f.MonthlyUsed
		p.MonthlyResetAt = f.MonthlyResetAt
		p.CreditBalance = f.CreditBalance
	}
	return nil
}

func (s *stubProfileStore) SetPlan(_ context.Context, _, _, _ string, _ int) error {
	return nil
}

type stubEventRecorder struct {
	events []domain.UsageEvent
}

func (s *stubEventRecorder) Record(_ context.Context, ev domain.UsageEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func newTestGuard(profiles *stubProfileStore, persist domain.AnonCounterStore, admins []string) (*Guard, *stubEventRecorder) {
	anon := NewAnonymousUsageStore(persist, AnonStoreOptions{}, zerolog.Nop())
	anon.SetClock(func() time.Time { return testNow })
	acct := NewAccountant(DefaultCatalog(), anon)
	acct.SetClock(func() time.Time { return testNow })
	events := &stubEventRecorder{}
	return NewGuard(acct, profiles, persist, events, admins, zerolog.Nop()), events
}

func TestAdmitDenialCarriesUpgradeHint(t *testing.T) {
	profiles := &stubProfileStore{profiles: map[string]*domain.Profile{
		"u1": {UserID: "u1", QuickUsed: 5},
	}}
	g, _ := newTestGuard(profiles, nil, nil)

	_, denial := g.Admit(context.Background(), domain.Identity{UserID: "u1"}, domain.OperationQuick, "en")
	if denial == nil {
		t.Fatal("expected denial at quick limit")
	}
	if denial.Code != CodeLimitReached {
		t.Fatalf("Code = %q, want %q", denial.Code, CodeLimitReached)
	}
	if denial.Tier != TierFree || denial.Used != 5 || denial.Limit != 5 || denial.Remaining != 0 {
		t.Fatalf("denial = %+v", denial)
	}
	if denial.Message == "" {
		t.Fatal("denial must carry an upgrade message")
	}
	if !errors.Is(denial.Err(), domain.ErrLimitReached) {
		t.Fatalf("denial.Err() = %v, want ErrLimitReached", denial.Err())
	}
}

func TestAdmitDowngradesOnProfileStoreFailure(t *testing.T) {
	profiles := &stubProfileStore{getErr: domain.ErrUpstreamUnavailable}
	g, _ := newTestGuard(profiles, nil, nil)

	adm, denial := g.Admit(context.Background(), domain.Identity{UserID: "u1"}, domain.OperationQuick, "en")
	if denial != nil {
		t.Fatalf("profile outage must not deny service: %+v", denial)
	}
	if adm.Profile != nil {
		t.Fatal("outage should resolve to no profile")
	}
	if adm.Decision.Tier != TierFree {
		t.Fatalf("Tier = %q, want free", adm.Decision.Tier)
	}
}

func TestAdminBypassSkipsCounters(t *testing.T) {
	profiles := &stubProfileStore{profiles: map[string]*domain.Profile{}}
	g, events := newTestGuard(profiles, nil, []string{"admin-1"})

	adm, denial := g.Admit(context.Background(), domain.Identity{UserID: "admin-1"}, domain.OperationPremium, "en")
	if denial != nil {
		t.Fatalf("admin denied: %+v", denial)
	}
	if !adm.Bypass || !adm.Decision.CanGenerate {
		t.Fatalf("admission = %+v", adm)
	}
	if adm.Decision.Tier != TierAdmin {
		t.Fatalf("Tier = %q, want %q (bypass must not look like a paying tier)", adm.Decision.Tier, TierAdmin)
	}
	remaining, err := g.Commit(context.Background(), adm, "gen-1", "req-1")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if remaining != -1 {
		t.Fatalf("remaining = %d, want -1 for bypass", remaining)
	}
	if len(profiles.updates) != 0 {
		t.Fatal("bypass must not write counters")
	}
	if len(events.events) != 0 {
		t.Fatal("bypass must not record usage events")
	}
}

func TestCommitWritesBackProfileCounters(t *testing.T) {
	profiles := &stubProfileStore{profiles: map[string]*domain.Profile{
		"u1": {UserID: "u1", QuickUsed: 1},
	}}
	g, events := newTestGuard(profiles, nil, nil)
	id := domain.Identity{UserID: "u1"}

	adm, denial := g.Admit(context.Background(), id, domain.OperationQuick, "en")
	if denial != nil {
		t.Fatalf("denied: %+v", denial)
	}
	remaining, err := g.Commit(context.Background(), adm, "gen-1", "req-1")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if remaining != 3 {
		t.Fatalf("remaining = %d, want 3 after the second of five quick", remaining)
	}
	if len(profiles.updates) != 1 || profiles.updates[0].QuickUsed != 2 {
		t.Fatalf("updates = %+v", profiles.updates)
	}
	if len(events.events) != 1 || events.events[0].GenerationID != "gen-1" {
		t.Fatalf("events = %+v", events.events)
	}
}

func TestCommitInsufficientCredits(t *testing.T) {
	profiles := &stubProfileStore{profiles: map[string]*domain.Profile{
		"u1": {UserID: "u1", Tier: "base", MonthlyUsed: 50, MonthlyResetAt: futureReset(), CreditBalance: 2},
	}}
	g, _ := newTestGuard(profiles, nil, nil)
	id := domain.Identity{UserID: "u1"}

	adm, denial := g.Admit(context.Background(), id, domain.OperationPremium, "en")
	if denial != nil {
		t.Fatalf("denied: %+v", denial)
	}
	if !adm.Decision.UseCredit {
		t.Fatalf("expected credit path, got %+v", adm.Decision)
	}

	// Balance drained between Admit and Commit.
	profiles.profiles["u1"].CreditBalance = 1
	adm.Profile.CreditBalance = 1
	_, err := g.Commit(context.Background(), adm, "gen-1", "req-1")
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("Commit = %v, want ErrInsufficientCredits", err)
	}
	if len(profiles.updates) != 0 {
		t.Fatal("failed commit must not write counters")
	}
}

func TestCommitPersistsDurableAnonymousCounters(t *testing.T) {
	persist := newStubCounterStore()
	g, _ := newTestGuard(&stubProfileStore{}, persist, nil)

	withToken := domain.Identity{SessionToken: "sess", NetworkAddress: "203.0.113.1"}
	adm, denial := g.Admit(context.Background(), withToken, domain.OperationQuick, "en")
	if denial != nil {
		t.Fatalf("denied: %+v", denial)
	}
	remaining, err := g.Commit(context.Background(), adm, "gen-1", "req-1")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("remaining = %d, want 2 after the first of three quick", remaining)
	}
	if got := persist.counts["sess"]; got.QuickUsed != 1 {
		t.Fatalf("persisted counts = %+v", got)
	}

	addressOnly := domain.Identity{NetworkAddress: "203.0.113.2"}
	adm, denial = g.Admit(context.Background(), addressOnly, domain.OperationQuick, "en")
	if denial != nil {
		t.Fatalf("denied: %+v", denial)
	}
	if remaining, err = g.Commit(context.Background(), adm, "gen-2", "req-2"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("remaining = %d, want 2 for a fresh address-only caller", remaining)
	}
	if len(persist.counts) != 1 {
		t.Fatal("address-only identities must never reach the persistent store")
	}
}

func TestAnonymousExhaustionAcrossCommits(t *testing.T) {
	g, _ := newTestGuard(&stubProfileStore{}, nil, nil)
	id := domain.Identity{SessionToken: "sess"}

	for i := 0; i < 3; i++ {
		adm, denial := g.Admit(context.Background(), id, domain.OperationQuick, "en")
		if denial != nil {
			t.Fatalf("quick %d denied: %+v", i, denial)
		}
		remaining, err := g.Commit(context.Background(), adm, "gen", "req")
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if want := 2 - i; remaining != want {
			t.Fatalf("quick %d remaining = %d, want %d", i, remaining, want)
		}
	}
	if _, denial := g.Admit(context.Background(), id, domain.OperationQuick, "en"); denial == nil {
		t.Fatal("fourth quick should be denied")
	}
	if _, denial := g.Admit(context.Background(), id, domain.OperationPremium, "en"); denial != nil {
		t.Fatalf("premium should be unaffected: %+v", denial)
	}
}
