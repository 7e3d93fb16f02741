package repo

import (
	"context"
	"fmt"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// UsageEventRepositoryPG records committed generations for the analytics
// trail.
type UsageEventRepositoryPG struct {
	sql infra.SQLExecutor
}

var _ domain.UsageEventRecorder = (*UsageEventRepositoryPG)(nil)

// NewUsageEventRepository creates a new UsageEventRepositoryPG.
func NewUsageEventRepository(sql infra.SQLExecutor) *UsageEventRepositoryPG {
	return &UsageEventRepositoryPG{sql: sql}
}

// Record inserts a usage event row.
func (r *UsageEventRepositoryPG) Record(ctx context.Context, ev domain.UsageEvent) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertUsageEvent,
		ev.UserID, ev.RequestID, ev.GenerationID, string(ev.Class), ev.Tier, ev.UsedCredit, ev.CreditCost)
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}
