// Package repository provides read access to prospective-student records and
// their derived activity counts. The lifecycle engine treats the lead record
// itself as an external collaborator: everything here is read-only except the
// advisor assignment written by the routing module.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ActivityCounts are the derived counters feeding the feature extractor.
type ActivityCounts struct {
	Calls              int
	Emails             int
	SMS                int
	Meetings           int
	FormSubmissions    int
	Notes              int
	TotalActivities    int
	DocumentsSubmitted int
	DocumentsApproved  int
}

// Snapshot is an immutable view of one lead at a point in time. It is the
// only input to feature extraction; scoring never reads lead fields directly.
type Snapshot struct {
	LeadID           uuid.UUID
	TenantID         uuid.UUID
	Email            *string
	Phone            *string
	Source           *string
	UTMSource        *string
	UTMMedium        *string
	UTMCampaign      *string
	Program          *string
	Tags             []string
	AssignedAdvisor  *uuid.UUID
	ReEnquiryCount   int
	CreatedAt        time.Time
	LastContactAt    *time.Time
	Counts           ActivityCounts
}

func (r *Repository) GetSnapshot(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID) (Snapshot, error) {
	var snap Snapshot
	err := r.pool.QueryRow(ctx, `
		SELECT
			l.id, l.tenant_id, l.email, l.phone, l.source,
			l.utm_source, l.utm_medium, l.utm_campaign, l.program,
			l.tags, l.assigned_advisor_id, l.re_enquiry_count,
			l.created_at, l.last_contact_at,
			COALESCE(c.calls, 0), COALESCE(c.emails, 0), COALESCE(c.sms, 0), COALESCE(c.meetings, 0),
			COALESCE(f.form_submissions, 0),
			COALESCE(n.notes, 0),
			COALESCE(a.total_activities, 0),
			COALESCE(d.submitted, 0), COALESCE(d.approved, 0)
		FROM leads l
		LEFT JOIN LATERAL (
			SELECT
				COUNT(*) FILTER (WHERE kind = 'call') AS calls,
				COUNT(*) FILTER (WHERE kind = 'email') AS emails,
				COUNT(*) FILTER (WHERE kind = 'sms') AS sms,
				COUNT(*) FILTER (WHERE kind = 'meeting') AS meetings
			FROM lead_communications
			WHERE lead_id = l.id AND tenant_id = l.tenant_id
		) c ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS form_submissions
			FROM lead_form_submissions
			WHERE lead_id = l.id AND tenant_id = l.tenant_id
		) f ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS notes
			FROM lead_notes
			WHERE lead_id = l.id AND tenant_id = l.tenant_id
		) n ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS total_activities
			FROM lead_activities
			WHERE lead_id = l.id AND tenant_id = l.tenant_id
		) a ON TRUE
		LEFT JOIN LATERAL (
			SELECT
				COUNT(*) AS submitted,
				COUNT(*) FILTER (WHERE status = 'approved') AS approved
			FROM lead_documents
			WHERE lead_id = l.id AND tenant_id = l.tenant_id
		) d ON TRUE
		WHERE l.id = $1 AND l.tenant_id = $2
	`, leadID, tenantID).Scan(
		&snap.LeadID,
		&snap.TenantID,
		&snap.Email,
		&snap.Phone,
		&snap.Source,
		&snap.UTMSource,
		&snap.UTMMedium,
		&snap.UTMCampaign,
		&snap.Program,
		&snap.Tags,
		&snap.AssignedAdvisor,
		&snap.ReEnquiryCount,
		&snap.CreatedAt,
		&snap.LastContactAt,
		&snap.Counts.Calls,
		&snap.Counts.Emails,
		&snap.Counts.SMS,
		&snap.Counts.Meetings,
		&snap.Counts.FormSubmissions,
		&snap.Counts.Notes,
		&snap.Counts.TotalActivities,
		&snap.Counts.DocumentsSubmitted,
		&snap.Counts.DocumentsApproved,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Tags == nil {
		snap.Tags = []string{}
	}
	return snap, nil
}

func (r *Repository) ListLeadIDs(ctx context.Context, tenantID uuid.UUID, cursor Cursor, limit int) ([]LeadRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, created_at
		FROM leads
		WHERE tenant_id = $1
		  AND (created_at > $2 OR (created_at = $2 AND id > $3))
		ORDER BY created_at ASC, id ASC
		LIMIT $4
	`, tenantID, cursor.CreatedAt, cursor.ID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]LeadRef, 0)
	for rows.Next() {
		var ref LeadRef
		if err := rows.Scan(&ref.ID, &ref.CreatedAt); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

func (r *Repository) CountLeads(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM leads WHERE tenant_id = $1
	`, tenantID).Scan(&count)
	return count, err
}

func (r *Repository) UpdateAdvisor(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID, advisorID *uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET assigned_advisor_id = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, leadID, tenantID, advisorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ClearAdvisors(ctx context.Context, tenantID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET assigned_advisor_id = NULL, updated_at = now()
		WHERE tenant_id = $1 AND assigned_advisor_id IS NOT NULL
	`, tenantID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT tenant_id FROM leads ORDER BY tenant_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tenants := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// Compile-time check that Repository satisfies the composite interface.
var _ LeadsRepository = (*Repository)(nil)
var _ TenantLister = (*Repository)(nil)
