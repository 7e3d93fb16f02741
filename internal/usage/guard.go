package usage

import (
	"context"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

// CodeLimitReached is the machine-readable denial code on the response
// surface.
const CodeLimitReached = "LIMIT_REACHED"

// TierAdmin marks an admission granted through the admin bypass. It is not a
// catalog tier: bypassed operations never touch quota arithmetic, and logs
// and responses must not label an admin as a paying user.
const TierAdmin = "admin"

// Admission is a granted quota check, carried from Admit to Commit.
type Admission struct {
	Identity domain.Identity
	Profile  *domain.Profile
	Class    domain.OperationClass
	Decision Decision
	Bypass   bool
}

// Denial is the structured limit-reached payload for the response surface.
type Denial struct {
	Code      string `json:"code"`
	Tier      string `json:"tier"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message"`
}

// Err exposes the denial as a sentinel for callers that work with the error
// taxonomy rather than the structured payload.
func (d *Denial) Err() error {
	return domain.ErrLimitReached
}

// Guard sits at the request boundary: it admits or denies the expensive
// downstream operation and commits the usage increment only after the
// operation reports success.
type Guard struct {
	accountant *Accountant
	profiles   domain.ProfileStore
	anonStore  domain.AnonCounterStore
	events     domain.UsageEventRecorder
	adminIDs   map[string]struct{}
	logger     zerolog.Logger
}

// NewGuard wires the interceptor. profiles is required; anonStore and events
// may be nil (persistence and analytics become no-ops).
func NewGuard(accountant *Accountant, profiles domain.ProfileStore, anonStore domain.AnonCounterStore, events domain.UsageEventRecorder, adminIDs []string, logger zerolog.Logger) *Guard {
	ids := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return &Guard{
		accountant: accountant,
		profiles:   profiles,
		anonStore:  anonStore,
		events:     events,
		adminIDs:   ids,
		logger:     logger,
	}
}

// Accountant exposes the underlying decision engine.
func (g *Guard) Accountant() *Accountant {
	return g.accountant
}

// Profile fetches the stored profile for an authenticated identity. A store
// failure is downgraded to "no profile": the caller is served on free-tier
// limits instead of being turned away over a bookkeeping outage.
func (g *Guard) Profile(ctx context.Context, id domain.Identity) *domain.Profile {
	if !id.IsAuthenticated() || g.profiles == nil {
		return nil
	}
	p, err := g.profiles.Get(ctx, id.UserID)
	if err != nil {
		g.logger.Warn().Err(err).Str("user_id", id.UserID).Msg("profile fetch failed, downgrading to free tier")
		return nil
	}
	return p
}

// Admit decides whether one operation of the given class may run. A nil
// Denial means go ahead; the returned Admission must be passed to Commit
// after the downstream operation succeeds. locale selects the language of
// the upgrade hint on denial.
func (g *Guard) Admit(ctx context.Context, id domain.Identity, class domain.OperationClass, locale string) (Admission, *Denial) {
	if _, ok := g.adminIDs[id.UserID]; ok && id.IsAuthenticated() {
		g.logger.Info().Str("user_id", id.UserID).Msg("admin bypass: skipping usage accounting")
		return Admission{
			Identity: id,
			Class:    class,
			Bypass:   true,
			Decision: Decision{CanGenerate: true, Tier: TierAdmin, Remaining: -1, Reason: "admin_bypass"},
		}, nil
	}

	profile := g.Profile(ctx, id)
	decision := g.accountant.CheckUsage(ctx, id, profile, class)
	if !decision.CanGenerate {
		g.logger.Info().Err(domain.ErrLimitReached).
			Str("tier", decision.Tier).
			Int("used", decision.Used).
			Int("limit", decision.Limit).
			Msg("generation denied")
		return Admission{}, &Denial{
			Code:      CodeLimitReached,
			Tier:      decision.Tier,
			Used:      decision.Used,
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			Message:   UpgradeMessage(decision.Tier, locale),
		}
	}
	return Admission{
		Identity: id,
		Profile:  profile,
		Class:    class,
		Decision: decision,
	}, nil
}

// Commit records the successful operation: it computes the next counter
// state and pushes it to the external stores. Persistence failures are
// logged, never surfaced; the artifact was already produced. It returns the
// remaining allowance after the increment (bypass is -1) so callers never
// re-derive quota arithmetic from the pre-commit decision. The only error
// returned is domain.ErrInsufficientCredits from the authoritative re-check
// on the credit path.
func (g *Guard) Commit(ctx context.Context, adm Admission, generationID, requestID string) (int, error) {
	if adm.Bypass {
		return -1, nil
	}

	inc := g.accountant.IncrementUsage(ctx, adm.Identity, adm.Profile, adm.Class, adm.Decision.UseCredit, adm.Decision.CreditCost)
	if !inc.OK {
		return 0, domain.ErrInsufficientCredits
	}

	if adm.Identity.IsAuthenticated() {
		if g.profiles != nil {
			if err := g.profiles.UpdateUsage(ctx, adm.Identity.UserID, inc.Fields); err != nil {
				g.logger.Error().Err(err).Str("user_id", adm.Identity.UserID).Msg("usage write-back failed")
			}
		}
	} else if inc.ShouldPersist && g.anonStore != nil {
		if err := g.anonStore.Upsert(ctx, adm.Identity.SessionToken, inc.AnonCounts); err != nil {
			g.logger.Warn().Err(err).Msg("anon counter upsert failed")
		}
	}

	if g.events != nil {
		ev := domain.UsageEvent{
			UserID:       adm.Identity.UserID,
			RequestID:    requestID,
			Class:        adm.Class,
			Tier:         adm.Decision.Tier,
			UsedCredit:   adm.Decision.UseCredit,
			CreditCost:   adm.Decision.CreditCost,
			GenerationID: generationID,
		}
		if err := g.events.Record(ctx, ev); err != nil {
			g.logger.Warn().Err(err).Msg("usage event insert failed")
		}
	}
	return g.remainingAfter(ctx, adm, inc), nil
}

// remainingAfter runs the standing-quota check against the post-increment
// counters, keeping all quota arithmetic inside the accountant.
func (g *Guard) remainingAfter(ctx context.Context, adm Admission, inc IncrementResult) int {
	p := adm.Profile
	if adm.Identity.IsAuthenticated() {
		next := domain.Profile{}
		if p != nil {
			next = *p
		}
		next.QuickUsed = inc.Fields.QuickUsed
		next.PremiumUsed = inc.Fields.PremiumUsed
		next.MonthlyUsed = inc.Fields.MonthlyUsed
		next.MonthlyResetAt = inc.Fields.MonthlyResetAt
		next.CreditBalance = inc.Fields.CreditBalance
		p = &next
	}
	return g.accountant.CheckUsage(ctx, adm.Identity, p, adm.Class).Remaining
}
