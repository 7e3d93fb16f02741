package domain

import "context"

// ProfileStore defines access to authenticated user profiles.
type ProfileStore interface {
	Get(ctx context.Context, userID string) (*Profile, error)
	UpsertByGoogleSub(ctx context.Context, googleSub string, p *Profile) (*Profile, error)
	UpdateUsage(ctx context.Context, userID string, fields UsageFields) error
	SetPlan(ctx context.Context, userID, tier, subscriptionStatus string, creditBalance int) error
}

// AnonCounts is the persisted pair of anonymous per-class counters.
type AnonCounts struct {
	QuickUsed   int
	PremiumUsed int
}

// AnonCounterStore is the cross-process source of truth for anonymous usage,
// keyed by session token. Upsert is best-effort; callers tolerate failure.
type AnonCounterStore interface {
	Get(ctx context.Context, sessionToken string) (AnonCounts, error)
	Upsert(ctx context.Context, sessionToken string, counts AnonCounts) error
}

// GenerationStore persists generation records.
type GenerationStore interface {
	Insert(ctx context.Context, g *Generation) error
	Get(ctx context.Context, id string) (*Generation, error)
	// Transition moves a pending generation to a terminal state. It returns
	// ErrNotFound for unknown ids and ErrAlreadyTerminal when the record has
	// already left the pending state.
	Transition(ctx context.Context, g *Generation) error
}

// UsageEventRecorder captures committed generations for the analytics trail.
// Recording is best-effort and never blocks the request outcome.
type UsageEventRecorder interface {
	Record(ctx context.Context, ev UsageEvent) error
}

// UsageEvent is a single committed generation.
type UsageEvent struct {
	UserID       string
	RequestID    string
	Class        OperationClass
	Tier         string
	UsedCredit   bool
	CreditCost   int
	GenerationID string
}
