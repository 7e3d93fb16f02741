package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// ProfileRepositoryPG implements domain.ProfileStore backed by PostgreSQL.
type ProfileRepositoryPG struct {
	sql infra.SQLExecutor
}

var _ domain.ProfileStore = (*ProfileRepositoryPG)(nil)

// NewProfileRepository creates a new ProfileRepositoryPG.
func NewProfileRepository(sql infra.SQLExecutor) *ProfileRepositoryPG {
	return &ProfileRepositoryPG{sql: sql}
}

// Get fetches a profile by user id. Unknown ids return domain.ErrNotFound;
// any other failure wraps domain.ErrUpstreamUnavailable so callers can
// downgrade instead of denying service.
func (r *ProfileRepositoryPG) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectProfileByID, userID)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: select profile: %v", domain.ErrUpstreamUnavailable, err)
	}
	return p, nil
}

// UpsertByGoogleSub inserts or refreshes a profile from a verified Google
// identity and returns the stored row.
func (r *ProfileRepositoryPG) UpsertByGoogleSub(ctx context.Context, googleSub string, p *domain.Profile) (*domain.Profile, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QUpsertGoogleProfile, googleSub, p.Email, p.Locale)
	stored, err := scanProfile(row)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert profile: %v", domain.ErrUpstreamUnavailable, err)
	}
	return stored, nil
}

// UpdateUsage writes back the post-commit counters.
func (r *ProfileRepositoryPG) UpdateUsage(ctx context.Context, userID string, f domain.UsageFields) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpdateProfileUsage,
		userID, f.QuickUsed, f.PremiumUsed, f.MonthlyUsed, f.MonthlyResetAt, f.CreditBalance)
	if err != nil {
		return fmt.Errorf("%w: update usage: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

// SetPlan assigns a tier, subscription status and credit balance. Used by
// the operator CLI and the (out-of-scope) payment webhook surface.
func (r *ProfileRepositoryPG) SetPlan(ctx context.Context, userID, tier, subscriptionStatus string, creditBalance int) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QSetProfilePlan, userID, tier, subscriptionStatus, creditBalance)
	if err != nil {
		return fmt.Errorf("%w: set plan: %v", domain.ErrUpstreamUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanProfile(row pgx.Row) (*domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(
		&p.UserID, &p.Email, &p.Locale, &p.Tier, &p.SubscriptionStatus,
		&p.QuickUsed, &p.PremiumUsed, &p.MonthlyUsed, &p.MonthlyResetAt,
		&p.CreditBalance, &p.PaymentCustomerID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
