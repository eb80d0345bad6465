package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"admissions_portal_backend/internal/journeys/domain"
)

// RequirementProgress is the verification state of one requirement on one
// enrollment.
type RequirementProgress struct {
	EnrollmentID  uuid.UUID
	RequirementID uuid.UUID
	StageIndex    int
	Status        domain.RequirementStatus
	Note          *string
	UpdatedAt     time.Time
}

// StageApproval records the manual sign-off demanded by approval_required
// stages.
type StageApproval struct {
	EnrollmentID uuid.UUID
	StageIndex   int
	ApprovedBy   uuid.UUID
	ApprovedAt   time.Time
}

// UpsertRequirementProgress sets a requirement's status and returns the
// status it replaced ("pending" when no row existed yet).
func (r *Repository) UpsertRequirementProgress(ctx context.Context, tenantID uuid.UUID, p RequirementProgress) (domain.RequirementStatus, error) {
	previous := domain.RequirementPending

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return previous, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The row lock serializes concurrent updates so each one observes the
	// status the previous writer committed, not a shared stale read.
	err = tx.QueryRow(ctx, `
		SELECT status FROM enrollment_requirement_progress
		WHERE tenant_id = $1 AND enrollment_id = $2 AND requirement_id = $3
		FOR UPDATE
	`, tenantID, p.EnrollmentID, p.RequirementID).Scan(&previous)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return previous, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO enrollment_requirement_progress (
			tenant_id, enrollment_id, requirement_id, stage_index, status, note, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, enrollment_id, requirement_id) DO UPDATE SET
			status = EXCLUDED.status,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at
	`, tenantID, p.EnrollmentID, p.RequirementID, p.StageIndex, p.Status, p.Note, p.UpdatedAt); err != nil {
		return previous, err
	}

	return previous, tx.Commit(ctx)
}

func (r *Repository) ListRequirementProgress(ctx context.Context, tenantID, enrollmentID uuid.UUID) ([]RequirementProgress, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT enrollment_id, requirement_id, stage_index, status, note, updated_at
		FROM enrollment_requirement_progress
		WHERE tenant_id = $1 AND enrollment_id = $2
		ORDER BY stage_index ASC, requirement_id ASC
	`, tenantID, enrollmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	progress := make([]RequirementProgress, 0)
	for rows.Next() {
		var p RequirementProgress
		if err := rows.Scan(&p.EnrollmentID, &p.RequirementID, &p.StageIndex, &p.Status, &p.Note, &p.UpdatedAt); err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}

// ApproveStage records a manual approval. Approving an already-approved stage
// is a no-op, which keeps the operation idempotent for retries.
func (r *Repository) ApproveStage(ctx context.Context, tenantID uuid.UUID, a StageApproval) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO enrollment_stage_approvals (tenant_id, enrollment_id, stage_index, approved_by, approved_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, enrollment_id, stage_index) DO NOTHING
	`, tenantID, a.EnrollmentID, a.StageIndex, a.ApprovedBy, a.ApprovedAt)
	return err
}

func (r *Repository) HasStageApproval(ctx context.Context, tenantID, enrollmentID uuid.UUID, stageIndex int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM enrollment_stage_approvals
			WHERE tenant_id = $1 AND enrollment_id = $2 AND stage_index = $3
		)
	`, tenantID, enrollmentID, stageIndex).Scan(&exists)
	return exists, err
}
