package usage

import (
	"context"
	"time"

	"server/internal/domain"
)

// Decision reason codes.
const (
	ReasonWithinQuota    = "within_quota"
	ReasonCreditOverflow = "credit_overflow"
	ReasonLimitReached   = "limit_reached"
)

// Decision is the outcome of a quota check for one prospective operation.
type Decision struct {
	CanGenerate bool
	Tier        string
	Used        int
	Limit       int
	Remaining   int
	UseCredit   bool
	CreditCost  int
	Reason      string
}

// IncrementResult is the next-state computation for one committed operation.
// It never mutates the profile it was computed from; persistence belongs to
// the caller.
type IncrementResult struct {
	OK     bool
	Reason string

	// Fields carries the post-increment profile counters for authenticated
	// identities. Meaningless when the identity is anonymous.
	Fields domain.UsageFields

	// AnonCounts carries the post-increment counters for anonymous
	// identities.
	AnonCounts domain.AnonCounts

	// ShouldPersist reports whether the caller should write the new state to
	// the external store. False only for the anonymous network-address
	// fallback path, which is never persisted.
	ShouldPersist bool
}

// Accountant is the central decision engine: it resolves tiers, checks
// quotas against the catalog and computes post-commit counter states.
type Accountant struct {
	catalog *Catalog
	ledger  CreditLedger
	anon    *AnonymousUsageStore
	clock   func() time.Time
}

// NewAccountant wires the decision engine. anon must not be nil.
func NewAccountant(catalog *Catalog, anon *AnonymousUsageStore) *Accountant {
	return &Accountant{
		catalog: catalog,
		anon:    anon,
		clock:   time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (a *Accountant) SetClock(clock func() time.Time) {
	a.clock = clock
}

// Ledger exposes the credit cost table.
func (a *Accountant) Ledger() CreditLedger {
	return a.ledger
}

// Catalog exposes the tier catalog.
func (a *Accountant) Catalog() *Catalog {
	return a.catalog
}

// ResolveTier maps an identity and its profile to a tier id. Matching on the
// profile fields is exact and case-sensitive; " active" or "Active" do not
// count as paying.
func (a *Accountant) ResolveTier(id domain.Identity, p *domain.Profile) string {
	if !id.IsAuthenticated() {
		return TierAnonymous
	}
	if p == nil {
		return TierFree
	}
	if p.Tier == TierBase || p.SubscriptionStatus == domain.SubscriptionStatusActive {
		return TierBase
	}
	return TierFree
}

// CheckUsage decides whether one operation of the given class may proceed,
// and whether it would bill against the standing quota or against credits.
// It performs no writes.
func (a *Accountant) CheckUsage(ctx context.Context, id domain.Identity, p *domain.Profile, class domain.OperationClass) Decision {
	tier := a.ResolveTier(id, p)
	desc := a.catalog.TierFor(tier)
	cost := a.ledger.Cost(class)

	if desc.HasMonthlyPool() {
		used := a.effectiveMonthlyUsed(p)
		d := Decision{
			Tier:      tier,
			Used:      used,
			Limit:     desc.MonthlyLimit,
			Remaining: clampZero(desc.MonthlyLimit - used),
		}
		if used < desc.MonthlyLimit {
			d.CanGenerate = true
			d.Reason = ReasonWithinQuota
			return d
		}
		if a.ledger.BalanceOf(p) >= cost {
			d.CanGenerate = true
			d.UseCredit = true
			d.CreditCost = cost
			d.Reason = ReasonCreditOverflow
			return d
		}
		d.Reason = ReasonLimitReached
		return d
	}

	used := a.classUsed(ctx, id, p, class)
	limit := desc.LimitFor(class)
	d := Decision{
		Tier:      tier,
		Used:      used,
		Limit:     limit,
		Remaining: clampZero(limit - used),
	}
	if used < limit {
		d.CanGenerate = true
		d.Reason = ReasonWithinQuota
		return d
	}
	if desc.CanPurchaseCredits && a.ledger.BalanceOf(p) >= cost {
		d.CanGenerate = true
		d.UseCredit = true
		d.CreditCost = cost
		d.Reason = ReasonCreditOverflow
		return d
	}
	d.Reason = ReasonLimitReached
	return d
}

// IncrementUsage computes the counter state after one committed operation.
// For authenticated identities it is pure: the input profile is read, never
// written. For anonymous identities it bumps the in-process store directly.
// The credit path re-checks the balance so a stale CheckUsage read cannot
// drive it negative; shortfall yields a failed result, not an error.
func (a *Accountant) IncrementUsage(ctx context.Context, id domain.Identity, p *domain.Profile, class domain.OperationClass, useCredit bool, creditCost int) IncrementResult {
	if !id.IsAuthenticated() {
		counts, durable := a.anon.Increment(ctx, id, class)
		return IncrementResult{
			OK:            true,
			AnonCounts:    counts,
			ShouldPersist: durable,
		}
	}

	fields := domain.UsageFields{}
	if p != nil {
		fields = domain.UsageFields{
			QuickUsed:      p.QuickUsed,
			PremiumUsed:    p.PremiumUsed,
			MonthlyUsed:    p.MonthlyUsed,
			MonthlyResetAt: p.MonthlyResetAt,
			CreditBalance:  p.CreditBalance,
		}
	}

	if useCredit {
		if fields.CreditBalance < creditCost {
			return IncrementResult{Reason: "insufficient_credits"}
		}
		fields.CreditBalance -= creditCost
	}

	tier := a.ResolveTier(id, p)
	desc := a.catalog.TierFor(tier)
	now := a.clock()
	if desc.HasMonthlyPool() {
		if monthlyResetDue(fields.MonthlyResetAt, now) {
			fields.MonthlyUsed = 0
			fields.MonthlyResetAt = nextMonthlyReset(now)
		}
		fields.MonthlyUsed++
	}
	if class == domain.OperationPremium {
		fields.PremiumUsed++
	} else {
		fields.QuickUsed++
	}

	return IncrementResult{
		OK:            true,
		Fields:        fields,
		ShouldPersist: true,
	}
}

func (a *Accountant) effectiveMonthlyUsed(p *domain.Profile) int {
	if p == nil {
		return 0
	}
	if monthlyResetDue(p.MonthlyResetAt, a.clock()) {
		// Reset is due; the counter write-back happens on the next
		// increment, but the check already sees a fresh pool.
		return 0
	}
	return p.MonthlyUsed
}

func (a *Accountant) classUsed(ctx context.Context, id domain.Identity, p *domain.Profile, class domain.OperationClass) int {
	if !id.IsAuthenticated() {
		counts := a.anon.Counts(ctx, id)
		if class == domain.OperationPremium {
			return counts.PremiumUsed
		}
		return counts.QuickUsed
	}
	if p == nil {
		return 0
	}
	if class == domain.OperationPremium {
		return p.PremiumUsed
	}
	return p.QuickUsed
}

// monthlyResetDue reports whether the stored reset timestamp has passed. A
// zero timestamp means the pool was never stamped and counts as due.
func monthlyResetDue(resetAt, now time.Time) bool {
	return !resetAt.After(now)
}

func nextMonthlyReset(now time.Time) time.Time {
	return now.AddDate(0, 1, 0)
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
