package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// GenerationRepositoryPG implements domain.GenerationStore backed by
// PostgreSQL.
type GenerationRepositoryPG struct {
	sql infra.SQLExecutor
}

var _ domain.GenerationStore = (*GenerationRepositoryPG)(nil)

// NewGenerationRepository creates a new GenerationRepositoryPG.
func NewGenerationRepository(sql infra.SQLExecutor) *GenerationRepositoryPG {
	return &GenerationRepositoryPG{sql: sql}
}

// Insert stores a new pending generation.
func (r *GenerationRepositoryPG) Insert(ctx context.Context, g *domain.Generation) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertGeneration,
		g.ID, g.OwnerID, g.CapabilityToken, g.SourcePhoto, string(g.Class),
		string(g.Status), g.Watermarked, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert generation: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Get fetches a generation by id.
func (r *GenerationRepositoryPG) Get(ctx context.Context, id string) (*domain.Generation, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGeneration, id)
	var g domain.Generation
	var class, status string
	var completedAt time.Time
	err := row.Scan(
		&g.ID, &g.OwnerID, &g.CapabilityToken, &g.SourcePhoto, &class, &status,
		&g.ResultLocation, &g.ErrorCode, &g.ErrorMessage,
		&g.Watermarked, &g.CreatedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: select generation: %v", domain.ErrUpstreamUnavailable, err)
	}
	g.Class = domain.OperationClass(class)
	g.Status = domain.GenerationStatus(status)
	if completedAt.Unix() > 0 {
		g.CompletedAt = completedAt
	}
	return &g, nil
}

// Transition applies a terminal state. The guarded WHERE clause makes the
// pending check and the update one atomic statement.
func (r *GenerationRepositoryPG) Transition(ctx context.Context, g *domain.Generation) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QTransitionGeneration,
		g.ID, string(g.Status), g.ResultLocation, g.ErrorCode, g.ErrorMessage, g.CompletedAt)
	if err != nil {
		return fmt.Errorf("%w: transition generation: %v", domain.ErrUpstreamUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		cur, err := r.Get(ctx, g.ID)
		if err != nil {
			return err
		}
		if cur.Terminal() {
			return domain.ErrAlreadyTerminal
		}
		return domain.ErrNotFound
	}
	return nil
}
