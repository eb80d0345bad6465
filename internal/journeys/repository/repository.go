package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"admissions_portal_backend/internal/journeys/domain"
)

var ErrNotFound = errors.New("journey not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Publish inserts a new version of the journey identified by its key. The
// previous version keeps serving existing enrollments; nothing is mutated.
func (r *Repository) Publish(ctx context.Context, journey domain.Journey) (domain.Journey, error) {
	stagesJSON, err := json.Marshal(journey.Stages)
	if err != nil {
		return domain.Journey{}, fmt.Errorf("marshal stages: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO journeys (id, tenant_id, key, name, version, active, stages)
		VALUES (
			$1, $2, $3, $4,
			COALESCE((SELECT MAX(version) FROM journeys WHERE tenant_id = $2 AND key = $3), 0) + 1,
			false, $5
		)
		RETURNING id, tenant_id, key, name, version, active, stages, created_at, updated_at
	`, uuid.New(), journey.TenantID, journey.Key, journey.Name, stagesJSON)

	return scanJourney(row)
}

// Activate makes the given version the one new enrollments use. Other
// versions of the same key are deactivated in the same transaction.
func (r *Repository) Activate(ctx context.Context, tenantID, journeyID uuid.UUID) (domain.Journey, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Journey{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var key string
	err = tx.QueryRow(ctx, `
		SELECT key FROM journeys WHERE tenant_id = $1 AND id = $2
	`, tenantID, journeyID).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Journey{}, ErrNotFound
	}
	if err != nil {
		return domain.Journey{}, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE journeys SET active = false, updated_at = NOW()
		WHERE tenant_id = $1 AND key = $2 AND active = true AND id <> $3
	`, tenantID, key, journeyID); err != nil {
		return domain.Journey{}, err
	}

	row := tx.QueryRow(ctx, `
		UPDATE journeys SET active = true, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING id, tenant_id, key, name, version, active, stages, created_at, updated_at
	`, tenantID, journeyID)
	journey, err := scanJourney(row)
	if err != nil {
		return domain.Journey{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Journey{}, err
	}
	return journey, nil
}

func (r *Repository) GetByID(ctx context.Context, tenantID, journeyID uuid.UUID) (domain.Journey, error) {
	journey, err := scanJourney(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, key, name, version, active, stages, created_at, updated_at
		FROM journeys
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, journeyID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Journey{}, ErrNotFound
	}
	return journey, err
}

func (r *Repository) GetActiveByKey(ctx context.Context, tenantID uuid.UUID, key string) (domain.Journey, error) {
	journey, err := scanJourney(r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, key, name, version, active, stages, created_at, updated_at
		FROM journeys
		WHERE tenant_id = $1 AND key = $2 AND active = true
	`, tenantID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Journey{}, ErrNotFound
	}
	return journey, err
}

// List returns all journey versions for the tenant, newest version first
// within each key.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Journey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, key, name, version, active, stages, created_at, updated_at
		FROM journeys
		WHERE tenant_id = $1
		ORDER BY key ASC, version DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	journeys := make([]domain.Journey, 0)
	for rows.Next() {
		journey, err := scanJourney(rows)
		if err != nil {
			return nil, err
		}
		journeys = append(journeys, journey)
	}
	return journeys, rows.Err()
}

// HasAnyForKey reports whether any version of the key exists for the tenant.
// Used by the seed loader to avoid clobbering tenant-authored journeys.
func (r *Repository) HasAnyForKey(ctx context.Context, tenantID uuid.UUID, key string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM journeys WHERE tenant_id = $1 AND key = $2)
	`, tenantID, key).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJourney(row rowScanner) (domain.Journey, error) {
	var j domain.Journey
	var stagesRaw []byte
	if err := row.Scan(&j.ID, &j.TenantID, &j.Key, &j.Name, &j.Version, &j.Active, &stagesRaw, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return domain.Journey{}, err
	}
	if err := json.Unmarshal(stagesRaw, &j.Stages); err != nil {
		return domain.Journey{}, fmt.Errorf("unmarshal stages: %w", err)
	}
	return j, nil
}
