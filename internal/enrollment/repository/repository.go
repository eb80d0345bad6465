package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"admissions_portal_backend/internal/journeys/domain"
)

var (
	ErrNotFound        = errors.New("enrollment not found")
	ErrDuplicateActive = errors.New("lead already has an active enrollment for this journey")
	ErrVersionConflict = errors.New("enrollment was modified concurrently")
)

// Status is the lifecycle state of an enrollment. Completed and exited are
// terminal; no transition ever leaves them.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExited    Status = "exited"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExited
}

// Enrollment tracks one lead's progress through a pinned journey version.
// Version is an optimistic concurrency token; every stage transition
// increments it.
type Enrollment struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	LeadID         uuid.UUID
	JourneyID      uuid.UUID
	JourneyKey     string
	JourneyVersion int
	CurrentStage   int
	Status         Status
	Version        int
	EnrolledAt     time.Time
	StageEnteredAt time.Time
	CompletedAt    *time.Time
	ExitedAt       *time.Time
	ExitReason     *string
}

// TransitionLogEntry is one append-only audit record. A completion or exit is
// logged with FromStage == ToStage alongside the status change.
type TransitionLogEntry struct {
	ID           uuid.UUID
	EnrollmentID uuid.UUID
	TenantID     uuid.UUID
	FromStage    int
	ToStage      int
	FromStatus   Status
	ToStatus     Status
	Trigger      domain.TriggerType
	ActorID      *uuid.UUID
	Note         *string
	OccurredAt   time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const enrollmentColumns = `
	id, tenant_id, lead_id, journey_id, journey_key, journey_version,
	current_stage, status, version, enrolled_at, stage_entered_at,
	completed_at, exited_at, exit_reason
`

// Create inserts a fresh enrollment at stage zero together with its first
// audit log entry. A partial unique index on (tenant_id, lead_id, journey_key)
// where status = 'active' turns concurrent double-enrolls into
// ErrDuplicateActive.
func (r *Repository) Create(ctx context.Context, e Enrollment, entry TransitionLogEntry) (Enrollment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Enrollment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO enrollments (
			id, tenant_id, lead_id, journey_id, journey_key, journey_version,
			current_stage, status, version, enrolled_at, stage_entered_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)
		RETURNING `+enrollmentColumns+`
	`, e.ID, e.TenantID, e.LeadID, e.JourneyID, e.JourneyKey, e.JourneyVersion,
		e.CurrentStage, e.Status, e.EnrolledAt)

	created, err := scanEnrollment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Enrollment{}, ErrDuplicateActive
		}
		return Enrollment{}, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO enrollment_transition_log (
			id, enrollment_id, tenant_id, from_stage, to_stage,
			from_status, to_status, trigger, actor_id, note, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, entry.EnrollmentID, entry.TenantID, entry.FromStage, entry.ToStage,
		entry.FromStatus, entry.ToStatus, entry.Trigger, entry.ActorID, entry.Note, entry.OccurredAt); err != nil {
		return Enrollment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Enrollment{}, err
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, tenantID, enrollmentID uuid.UUID) (Enrollment, error) {
	e, err := scanEnrollment(r.pool.QueryRow(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, enrollmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Enrollment{}, ErrNotFound
	}
	return e, err
}

func (r *Repository) GetActiveByLead(ctx context.Context, tenantID, leadID uuid.UUID, journeyKey string) (Enrollment, error) {
	e, err := scanEnrollment(r.pool.QueryRow(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE tenant_id = $1 AND lead_id = $2 AND journey_key = $3 AND status = 'active'
	`, tenantID, leadID, journeyKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return Enrollment{}, ErrNotFound
	}
	return e, err
}

func (r *Repository) ListByLead(ctx context.Context, tenantID, leadID uuid.UUID) ([]Enrollment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE tenant_id = $1 AND lead_id = $2
		ORDER BY enrolled_at DESC
	`, tenantID, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEnrollments(rows)
}

// ListActive pages active enrollments by id for sweeps and bulk operations.
func (r *Repository) ListActive(ctx context.Context, tenantID uuid.UUID, afterID uuid.UUID, limit int) ([]Enrollment, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+enrollmentColumns+`
		FROM enrollments
		WHERE tenant_id = $1 AND status = 'active' AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`, tenantID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEnrollments(rows)
}

// Transition applies one state change under optimistic concurrency. The log
// entry and the enrollment update commit together; losing the version race
// returns ErrVersionConflict with nothing written.
func (r *Repository) Transition(ctx context.Context, e Enrollment, toStage int, toStatus Status, stageEnteredAt time.Time, entry TransitionLogEntry) (Enrollment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Enrollment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO enrollment_transition_log (
			id, enrollment_id, tenant_id, from_stage, to_stage,
			from_status, to_status, trigger, actor_id, note, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, entry.EnrollmentID, entry.TenantID, entry.FromStage, entry.ToStage,
		entry.FromStatus, entry.ToStatus, entry.Trigger, entry.ActorID, entry.Note, entry.OccurredAt); err != nil {
		return Enrollment{}, err
	}

	var completedAt, exitedAt *time.Time
	var exitReason *string
	switch toStatus {
	case StatusCompleted:
		completedAt = &entry.OccurredAt
	case StatusExited:
		exitedAt = &entry.OccurredAt
		exitReason = entry.Note
	}

	row := tx.QueryRow(ctx, `
		UPDATE enrollments
		SET current_stage = $1,
		    status = $2,
		    version = version + 1,
		    stage_entered_at = $3,
		    completed_at = COALESCE($4, completed_at),
		    exited_at = COALESCE($5, exited_at),
		    exit_reason = COALESCE($6, exit_reason)
		WHERE id = $7 AND tenant_id = $8 AND version = $9
		RETURNING `+enrollmentColumns+`
	`, toStage, toStatus, stageEnteredAt, completedAt, exitedAt, exitReason,
		e.ID, e.TenantID, e.Version)

	updated, err := scanEnrollment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Enrollment{}, ErrVersionConflict
	}
	if err != nil {
		return Enrollment{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Enrollment{}, err
	}
	return updated, nil
}

func (r *Repository) ListTransitionLog(ctx context.Context, tenantID, enrollmentID uuid.UUID) ([]TransitionLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, enrollment_id, tenant_id, from_stage, to_stage,
		       from_status, to_status, trigger, actor_id, note, occurred_at
		FROM enrollment_transition_log
		WHERE tenant_id = $1 AND enrollment_id = $2
		ORDER BY occurred_at ASC, id ASC
	`, tenantID, enrollmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]TransitionLogEntry, 0)
	for rows.Next() {
		var e TransitionLogEntry
		if err := rows.Scan(&e.ID, &e.EnrollmentID, &e.TenantID, &e.FromStage, &e.ToStage,
			&e.FromStatus, &e.ToStatus, &e.Trigger, &e.ActorID, &e.Note, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEnrollment(row pgx.Row) (Enrollment, error) {
	var e Enrollment
	err := row.Scan(
		&e.ID, &e.TenantID, &e.LeadID, &e.JourneyID, &e.JourneyKey, &e.JourneyVersion,
		&e.CurrentStage, &e.Status, &e.Version, &e.EnrolledAt, &e.StageEnteredAt,
		&e.CompletedAt, &e.ExitedAt, &e.ExitReason,
	)
	return e, err
}

func collectEnrollments(rows pgx.Rows) ([]Enrollment, error) {
	enrollments := make([]Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}
