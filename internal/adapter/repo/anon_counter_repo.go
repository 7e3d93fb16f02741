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

// AnonCounterRepositoryPG implements domain.AnonCounterStore backed by
// PostgreSQL. It is the cross-process source of truth for anonymous usage;
// the in-process cache in internal/usage sits on top of it.
type AnonCounterRepositoryPG struct {
	sql infra.SQLExecutor
}

var _ domain.AnonCounterStore = (*AnonCounterRepositoryPG)(nil)

// NewAnonCounterRepository creates a new AnonCounterRepositoryPG.
func NewAnonCounterRepository(sql infra.SQLExecutor) *AnonCounterRepositoryPG {
	return &AnonCounterRepositoryPG{sql: sql}
}

// Get returns the persisted counters for a session token. Unknown tokens are
// zero counts, not an error.
func (r *AnonCounterRepositoryPG) Get(ctx context.Context, sessionToken string) (domain.AnonCounts, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectAnonCounters, sessionToken)
	var c domain.AnonCounts
	if err := row.Scan(&c.QuickUsed, &c.PremiumUsed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AnonCounts{}, nil
		}
		return domain.AnonCounts{}, fmt.Errorf("%w: select anon counters: %v", domain.ErrUpstreamUnavailable, err)
	}
	return c, nil
}

// Upsert stores the counters for a session token.
func (r *AnonCounterRepositoryPG) Upsert(ctx context.Context, sessionToken string, counts domain.AnonCounts) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpsertAnonCounters, sessionToken, counts.QuickUsed, counts.PremiumUsed)
	if err != nil {
		return fmt.Errorf("%w: upsert anon counters: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}
