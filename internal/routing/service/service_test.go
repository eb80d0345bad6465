package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/internal/routing/repository"
	scoringrepo "admissions_portal_backend/internal/scoring/repository"
	"admissions_portal_backend/platform/apperr"
	"admissions_portal_backend/platform/logger"
)

type fakeRules struct {
	rules []repository.Rule
}

func (f *fakeRules) Create(_ context.Context, rule repository.Rule) (repository.Rule, error) {
	f.rules = append(f.rules, rule)
	return rule, nil
}

func (f *fakeRules) Update(_ context.Context, rule repository.Rule) (repository.Rule, error) {
	for i, existing := range f.rules {
		if existing.ID == rule.ID {
			f.rules[i] = rule
			return rule, nil
		}
	}
	return repository.Rule{}, repository.ErrNotFound
}

func (f *fakeRules) Delete(_ context.Context, _, ruleID uuid.UUID) error {
	for i, existing := range f.rules {
		if existing.ID == ruleID {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeRules) Get(_ context.Context, _, ruleID uuid.UUID) (repository.Rule, error) {
	for _, existing := range f.rules {
		if existing.ID == ruleID {
			return existing, nil
		}
	}
	return repository.Rule{}, repository.ErrNotFound
}

func (f *fakeRules) List(_ context.Context, _ uuid.UUID) ([]repository.Rule, error) {
	return f.rules, nil
}

func (f *fakeRules) ListActive(_ context.Context, _ uuid.UUID) ([]repository.Rule, error) {
	// Rules are stored pre-sorted by priority in these tests.
	out := make([]repository.Rule, 0, len(f.rules))
	for _, rule := range f.rules {
		if rule.Active {
			out = append(out, rule)
		}
	}
	return out, nil
}

type fakeSnapshots struct {
	snapshots map[uuid.UUID]leadsrepo.Snapshot
}

func (f *fakeSnapshots) GetSnapshot(_ context.Context, leadID uuid.UUID, _ uuid.UUID) (leadsrepo.Snapshot, error) {
	snap, ok := f.snapshots[leadID]
	if !ok {
		return leadsrepo.Snapshot{}, leadsrepo.ErrNotFound
	}
	return snap, nil
}

type fakeScores struct {
	scores map[uuid.UUID]int
	calls  int
}

func (f *fakeScores) GetCurrentScore(_ context.Context, tenantID, leadID uuid.UUID) (scoringrepo.Score, error) {
	f.calls++
	value, ok := f.scores[leadID]
	if !ok {
		return scoringrepo.Score{}, scoringrepo.ErrScoreNotFound
	}
	return scoringrepo.Score{LeadID: leadID, TenantID: tenantID, Score: value, ComputedAt: time.Now()}, nil
}

func strptr(s string) *string   { return &s }
func f64ptr(v float64) *float64 { return &v }

func newService(rules []repository.Rule, snapshots map[uuid.UUID]leadsrepo.Snapshot, scores map[uuid.UUID]int) (*Service, *fakeScores) {
	scoreReader := &fakeScores{scores: scores}
	return New(
		&fakeRules{rules: rules},
		&fakeSnapshots{snapshots: snapshots},
		scoreReader,
		logger.New("development"),
	), scoreReader
}

func TestRouteFirstMatchWins(t *testing.T) {
	tenantID := uuid.New()
	leadID := uuid.New()
	referralAdvisor := uuid.New()
	fallbackAdvisor := uuid.New()

	rules := []repository.Rule{
		{ID: uuid.New(), Name: "Referrals", Priority: 10, Source: strptr("referral"), AdvisorID: referralAdvisor, Active: true},
		{ID: uuid.New(), Name: "Catch-all", Priority: 100, AdvisorID: fallbackAdvisor, Active: true},
	}
	svc, _ := newService(rules, map[uuid.UUID]leadsrepo.Snapshot{
		leadID: {LeadID: leadID, Source: strptr("Referral")},
	}, nil)

	res, err := svc.Route(context.Background(), tenantID, leadID)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !res.Matched || res.AdvisorID != referralAdvisor {
		t.Fatalf("resolution = %+v, want referral advisor", res)
	}
	if res.RuleName != "Referrals" {
		t.Fatalf("rule = %q", res.RuleName)
	}
}

func TestRouteFallsThroughToCatchAll(t *testing.T) {
	tenantID := uuid.New()
	leadID := uuid.New()
	fallbackAdvisor := uuid.New()

	rules := []repository.Rule{
		{ID: uuid.New(), Name: "Referrals", Priority: 10, Source: strptr("referral"), AdvisorID: uuid.New(), Active: true},
		{ID: uuid.New(), Name: "Inactive", Priority: 20, AdvisorID: uuid.New(), Active: false},
		{ID: uuid.New(), Name: "Catch-all", Priority: 100, AdvisorID: fallbackAdvisor, Active: true},
	}
	svc, _ := newService(rules, map[uuid.UUID]leadsrepo.Snapshot{
		leadID: {LeadID: leadID, Source: strptr("organic")},
	}, nil)

	res, err := svc.Route(context.Background(), tenantID, leadID)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !res.Matched || res.AdvisorID != fallbackAdvisor {
		t.Fatalf("resolution = %+v, want catch-all advisor", res)
	}
}

func TestRouteCombinedMatchers(t *testing.T) {
	tenantID := uuid.New()
	leadID := uuid.New()
	advisorID := uuid.New()

	rules := []repository.Rule{
		{
			ID: uuid.New(), Name: "Hot CS referrals", Priority: 1,
			Source: strptr("referral"), Program: strptr("computer_science"), MinScore: f64ptr(70),
			AdvisorID: advisorID, Active: true,
		},
	}
	snapshots := map[uuid.UUID]leadsrepo.Snapshot{
		leadID: {LeadID: leadID, Source: strptr("referral"), Program: strptr("computer_science")},
	}

	svc, scores := newService(rules, snapshots, map[uuid.UUID]int{leadID: 83})
	res, err := svc.Route(context.Background(), tenantID, leadID)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if !res.Matched || res.AdvisorID != advisorID {
		t.Fatalf("resolution = %+v", res)
	}
	if scores.calls != 1 {
		t.Fatalf("score fetched %d times, want 1", scores.calls)
	}

	// Below threshold: no match.
	svc, _ = newService(rules, snapshots, map[uuid.UUID]int{leadID: 60})
	res, err = svc.Route(context.Background(), tenantID, leadID)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Matched {
		t.Fatalf("score 60 should not match min_score 70: %+v", res)
	}
}

func TestRouteMinScoreWithoutComputedScore(t *testing.T) {
	tenantID := uuid.New()
	leadID := uuid.New()

	rules := []repository.Rule{
		{ID: uuid.New(), Name: "Hot leads", Priority: 1, MinScore: f64ptr(10), AdvisorID: uuid.New(), Active: true},
	}
	svc, _ := newService(rules, map[uuid.UUID]leadsrepo.Snapshot{
		leadID: {LeadID: leadID},
	}, nil)

	res, err := svc.Route(context.Background(), tenantID, leadID)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Matched {
		t.Fatal("lead without a score must not match a min_score rule")
	}
}

func TestRouteNoRules(t *testing.T) {
	tenantID := uuid.New()
	leadID := uuid.New()
	svc, _ := newService(nil, map[uuid.UUID]leadsrepo.Snapshot{
		leadID: {LeadID: leadID},
	}, nil)

	res, err := svc.Route(context.Background(), tenantID, leadID)
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if res.Matched {
		t.Fatalf("no rules should mean no match: %+v", res)
	}
}

func TestRouteUnknownLead(t *testing.T) {
	svc, _ := newService(nil, map[uuid.UUID]leadsrepo.Snapshot{}, nil)
	_, err := svc.Route(context.Background(), uuid.New(), uuid.New())
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("want not-found, got %v", err)
	}
}

func TestRuleValidation(t *testing.T) {
	svc, _ := newService(nil, nil, nil)
	tenantID := uuid.New()

	cases := []struct {
		name string
		rule repository.Rule
	}{
		{"missing name", repository.Rule{TenantID: tenantID, AdvisorID: uuid.New()}},
		{"missing advisor", repository.Rule{TenantID: tenantID, Name: "r"}},
		{"negative priority", repository.Rule{TenantID: tenantID, Name: "r", AdvisorID: uuid.New(), Priority: -1}},
		{"min score out of range", repository.Rule{TenantID: tenantID, Name: "r", AdvisorID: uuid.New(), MinScore: f64ptr(120)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateRule(context.Background(), tc.rule); apperr.GetKind(err) != apperr.KindValidation {
				t.Fatalf("want validation error, got %v", err)
			}
		})
	}
}
