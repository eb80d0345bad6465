package feature

import (
	"testing"
	"time"

	"github.com/google/uuid"

	leadsrepo "admissions_portal_backend/internal/leads/repository"
)

func strPtr(s string) *string { return &s }

func TestExtractBooleans(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	advisor := uuid.New()
	snap := leadsrepo.Snapshot{
		Email:           strPtr("jan@example.com"),
		Phone:           strPtr(""),
		UTMSource:       strPtr("spring-campaign"),
		Source:          strPtr("Partner Referral"),
		AssignedAdvisor: &advisor,
		CreatedAt:       now.Add(-48 * time.Hour),
	}

	v := Extract(snap, now)

	if !v.BoolAt(HasEmail) {
		t.Fatal("expected has_email true")
	}
	if v.BoolAt(HasPhone) {
		t.Fatal("empty phone should not count as present")
	}
	if !v.BoolAt(HasUTM) {
		t.Fatal("expected has_utm true")
	}
	if !v.BoolAt(IsAssigned) {
		t.Fatal("expected is_assigned true")
	}
	if !v.BoolAt(SourceReferral) {
		t.Fatal("expected source_referral true for 'Partner Referral'")
	}
	if v.BoolAt(SourcePaid) {
		t.Fatal("unexpected source_paid")
	}
}

func TestExtractMissingSource(t *testing.T) {
	now := time.Now()
	v := Extract(leadsrepo.Snapshot{CreatedAt: now}, now)

	for _, name := range []string{SourceReferral, SourceOrganic, SourcePaid, SourceWebForm} {
		if v.BoolAt(name) {
			t.Fatalf("lead without a source should not set %s", name)
		}
	}
}

func TestExtractAges(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	contact := now.Add(-36 * time.Hour)
	snap := leadsrepo.Snapshot{
		CreatedAt:     now.Add(-40 * 24 * time.Hour),
		LastContactAt: &contact,
	}

	v := Extract(snap, now)

	if got := v.NumberAt(DaysSinceCreated); got != 40 {
		t.Fatalf("days_since_created = %v, want 40", got)
	}
	if got := v.NumberAt(DaysSinceLastContact); got != 1.5 {
		t.Fatalf("days_since_last_contact = %v, want 1.5", got)
	}
}

func TestExtractNeverContacted(t *testing.T) {
	now := time.Now()
	v := Extract(leadsrepo.Snapshot{CreatedAt: now}, now)

	if _, ok := v[DaysSinceLastContact]; ok {
		t.Fatal("lead never contacted should have no last-contact feature")
	}
	if got := v.NumberAt(DaysSinceLastContact); got != 0 {
		t.Fatalf("absent feature should read neutral, got %v", got)
	}
}

func TestExtractFutureCreatedAtClampsToZero(t *testing.T) {
	now := time.Now()
	v := Extract(leadsrepo.Snapshot{CreatedAt: now.Add(time.Hour)}, now)

	if got := v.NumberAt(DaysSinceCreated); got != 0 {
		t.Fatalf("future created_at should yield 0 days, got %v", got)
	}
}

func TestExtractDocRatio(t *testing.T) {
	now := time.Now()
	snap := leadsrepo.Snapshot{
		CreatedAt: now,
		Counts: leadsrepo.ActivityCounts{
			DocumentsSubmitted: 4,
			DocumentsApproved:  3,
		},
	}

	v := Extract(snap, now)
	if got := v.NumberAt(DocCompletionRatio); got != 0.75 {
		t.Fatalf("doc ratio = %v, want 0.75", got)
	}

	none := Extract(leadsrepo.Snapshot{CreatedAt: now}, now)
	if _, ok := none[DocCompletionRatio]; ok {
		t.Fatal("no submitted documents should omit the ratio feature")
	}
}

func TestExtractDeterministic(t *testing.T) {
	now := time.Now()
	snap := leadsrepo.Snapshot{
		Email:     strPtr("a@b.c"),
		Source:    strPtr("organic"),
		CreatedAt: now.Add(-72 * time.Hour),
		Counts:    leadsrepo.ActivityCounts{Calls: 2, TotalActivities: 7},
	}

	a := Extract(snap, now)
	b := Extract(snap, now)
	for name, val := range a {
		if b[name] != val {
			t.Fatalf("feature %s differs across extractions: %v vs %v", name, val, b[name])
		}
	}
	if len(a) != len(b) {
		t.Fatalf("vector sizes differ: %d vs %d", len(a), len(b))
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, ok := Lookup("no_such_feature"); ok {
		t.Fatal("unknown feature should not resolve")
	}
	def, ok := Lookup(CallsCount)
	if !ok || def.Kind != KindCount || def.CountCap != 5 {
		t.Fatalf("calls_count definition wrong: %+v ok=%v", def, ok)
	}
}
