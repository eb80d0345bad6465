package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// SnapshotReader provides the immutable lead snapshot consumed by the
// feature extractor. Read-only.
type SnapshotReader interface {
	GetSnapshot(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID) (Snapshot, error)
}

// LeadLister pages through lead ids for bulk operations.
type LeadLister interface {
	ListLeadIDs(ctx context.Context, tenantID uuid.UUID, cursor Cursor, limit int) ([]LeadRef, error)
	CountLeads(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// TenantLister enumerates tenants that have leads, for scheduled fan-out.
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// AssignmentWriter mutates advisor routing assignments.
type AssignmentWriter interface {
	UpdateAdvisor(ctx context.Context, leadID uuid.UUID, tenantID uuid.UUID, advisorID *uuid.UUID) error
	ClearAdvisors(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// LeadsRepository is the composite interface implemented by Repository.
type LeadsRepository interface {
	SnapshotReader
	LeadLister
	AssignmentWriter
}

// Cursor is a keyset pagination cursor over (created_at, id).
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// LeadRef identifies one lead within a page of results.
type LeadRef struct {
	ID        uuid.UUID
	CreatedAt time.Time
}
