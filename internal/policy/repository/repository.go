package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"admissions_portal_backend/internal/journeys/domain"
	"admissions_portal_backend/internal/policy/engine"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ChannelUsage aggregates recent communications on one lead+channel pair.
// "Today" is the UTC calendar day of now; the week window is a rolling
// seven days.
func (r *Repository) ChannelUsage(ctx context.Context, tenantID, leadID uuid.UUID, channel domain.ChannelType, now time.Time) (engine.Usage, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	weekStart := now.Add(-7 * 24 * time.Hour)

	var usage engine.Usage
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE occurred_at >= $4),
			COUNT(*) FILTER (WHERE occurred_at >= $5),
			MAX(occurred_at)
		FROM lead_communications
		WHERE tenant_id = $1 AND lead_id = $2 AND kind = $3
	`, tenantID, leadID, string(channel), dayStart, weekStart).Scan(
		&usage.SentToday, &usage.SentThisWeek, &usage.LastSentAt,
	)
	if err != nil {
		return engine.Usage{}, err
	}
	return usage, nil
}
