package engine

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"admissions_portal_backend/internal/enrollment/repository"
	"admissions_portal_backend/internal/journeys/domain"
	"admissions_portal_backend/platform/apperr"
)

func testJourney() domain.Journey {
	formID := uuid.New()
	docID := uuid.New()
	return domain.Journey{
		ID:  uuid.New(),
		Key: "default_admissions",
		Stages: []domain.Stage{
			{Index: 0, Name: "Inquiry", Required: true, Completion: domain.CompletionAutoAdvance},
			{
				Index: 1, Name: "Application", Required: true,
				Completion: domain.CompletionAllRequirements,
				Requirements: []domain.Requirement{
					{ID: formID, Type: domain.RequirementForm, Name: "Application form", Mandatory: true},
					{ID: docID, Type: domain.RequirementDocument, Name: "Transcript", Mandatory: false},
				},
			},
			{Index: 2, Name: "Campus tour", Required: false, Completion: domain.CompletionAutoAdvance},
			{Index: 3, Name: "Review", Required: true, Completion: domain.CompletionApprovalRequired},
		},
	}
}

func activeEnrollment(stage int) repository.Enrollment {
	return repository.Enrollment{
		ID:           uuid.New(),
		CurrentStage: stage,
		Status:       repository.StatusActive,
		Version:      1,
	}
}

func TestEvaluateCompletionAllRequirements(t *testing.T) {
	j := testJourney()
	stage, _ := j.StageAt(1)
	form := stage.Requirements[0]

	result := EvaluateCompletion(stage, nil, false)
	if result.Complete {
		t.Fatal("stage with pending mandatory requirement should be incomplete")
	}
	if len(result.MissingRequirements) != 1 || result.MissingRequirements[0] != form.ID {
		t.Fatalf("missing = %v, want [%s]", result.MissingRequirements, form.ID)
	}

	// Optional transcript stays pending; only the mandatory form matters.
	progress := map[uuid.UUID]domain.RequirementStatus{form.ID: domain.RequirementApproved}
	if result := EvaluateCompletion(stage, progress, false); !result.Complete {
		t.Fatalf("mandatory requirement approved, should be complete: %+v", result)
	}

	// Waived counts as satisfied.
	progress[form.ID] = domain.RequirementWaived
	if result := EvaluateCompletion(stage, progress, false); !result.Complete {
		t.Fatal("waived requirement should satisfy completion")
	}

	// Rejected does not.
	progress[form.ID] = domain.RequirementRejected
	if result := EvaluateCompletion(stage, progress, false); result.Complete {
		t.Fatal("rejected requirement must not satisfy completion")
	}
}

func TestEvaluateCompletionSpecificSubset(t *testing.T) {
	reqA := domain.Requirement{ID: uuid.New(), Type: domain.RequirementForm, Name: "A", Mandatory: true}
	reqB := domain.Requirement{ID: uuid.New(), Type: domain.RequirementDocument, Name: "B", Mandatory: true}
	stage := domain.Stage{
		Index:                    0,
		Completion:               domain.CompletionSpecificRequirements,
		CompletionRequirementIDs: []uuid.UUID{reqB.ID},
		Requirements:             []domain.Requirement{reqA, reqB},
	}

	// Only B gates completion even though A is mandatory.
	progress := map[uuid.UUID]domain.RequirementStatus{reqB.ID: domain.RequirementApproved}
	if result := EvaluateCompletion(stage, progress, false); !result.Complete {
		t.Fatalf("subset satisfied, should be complete: %+v", result)
	}

	progress = map[uuid.UUID]domain.RequirementStatus{reqA.ID: domain.RequirementApproved}
	if result := EvaluateCompletion(stage, progress, false); result.Complete {
		t.Fatal("subset unsatisfied, must be incomplete")
	}
}

func TestEvaluateCompletionApprovalRequired(t *testing.T) {
	j := testJourney()
	stage, _ := j.StageAt(3)

	result := EvaluateCompletion(stage, nil, false)
	if result.Complete || !result.NeedsApproval {
		t.Fatalf("approval outstanding, got %+v", result)
	}

	if result := EvaluateCompletion(stage, nil, true); !result.Complete {
		t.Fatalf("approved stage should be complete, got %+v", result)
	}
}

func TestDecideAdvanceTerminalState(t *testing.T) {
	j := testJourney()
	e := activeEnrollment(3)
	e.Status = repository.StatusCompleted

	_, err := DecideAdvance(j, e, 4, domain.TriggerManual, true, CompletionResult{Complete: true})
	if apperr.GetKind(err) != apperr.KindTerminalState {
		t.Fatalf("want terminal-state error, got %v", err)
	}
}

func TestDecideAdvanceSequential(t *testing.T) {
	j := testJourney()

	decision, err := DecideAdvance(j, activeEnrollment(0), 1, domain.TriggerSystem, false, CompletionResult{Complete: true})
	if err != nil {
		t.Fatalf("DecideAdvance: %v", err)
	}
	if decision.ToStage != 1 || decision.ToStatus != repository.StatusActive {
		t.Fatalf("decision = %+v", decision)
	}

	// Backwards and same-stage are rejected.
	if _, err := DecideAdvance(j, activeEnrollment(1), 1, domain.TriggerSystem, false, CompletionResult{Complete: true}); err == nil {
		t.Fatal("same-stage target should be rejected")
	}
	if _, err := DecideAdvance(j, activeEnrollment(2), 1, domain.TriggerSystem, false, CompletionResult{Complete: true}); err == nil {
		t.Fatal("backwards target should be rejected")
	}
}

func TestDecideAdvanceSkipsOnlyOptionalStages(t *testing.T) {
	j := testJourney()

	// Stage 2 (campus tour) is optional and may be skipped.
	decision, err := DecideAdvance(j, activeEnrollment(1), 3, domain.TriggerSystem, false, CompletionResult{Complete: true})
	if err != nil {
		t.Fatalf("skipping optional stage: %v", err)
	}
	if decision.ToStage != 3 {
		t.Fatalf("decision = %+v", decision)
	}

	// Stage 1 (application) is required and may not be skipped.
	if _, err := DecideAdvance(j, activeEnrollment(0), 2, domain.TriggerSystem, false, CompletionResult{Complete: true}); err == nil {
		t.Fatal("skipping a required stage should be rejected")
	}
}

func TestDecideAdvanceManualBypassesCriteria(t *testing.T) {
	j := testJourney()
	incomplete := CompletionResult{MissingRequirements: []uuid.UUID{uuid.New()}}

	// System trigger blocked by unmet criteria.
	if _, err := DecideAdvance(j, activeEnrollment(1), 2, domain.TriggerSystem, false, incomplete); err == nil {
		t.Fatal("system trigger must honor completion criteria")
	}

	// Manual override with an actor goes through.
	if _, err := DecideAdvance(j, activeEnrollment(1), 2, domain.TriggerManual, true, incomplete); err != nil {
		t.Fatalf("manual override: %v", err)
	}

	// Manual without an actor is rejected: overrides stay attributable.
	if _, err := DecideAdvance(j, activeEnrollment(1), 2, domain.TriggerManual, false, incomplete); err == nil {
		t.Fatal("manual trigger without actor should be rejected")
	}
}

func TestDecideAdvancePastFinalCompletes(t *testing.T) {
	j := testJourney()

	decision, err := DecideAdvance(j, activeEnrollment(3), 4, domain.TriggerManual, true, CompletionResult{Complete: true})
	if err != nil {
		t.Fatalf("DecideAdvance: %v", err)
	}
	if decision.ToStatus != repository.StatusCompleted {
		t.Fatalf("want completion, got %+v", decision)
	}
	if decision.ToStage != 3 {
		t.Fatalf("completion should be logged against the final stage, got %d", decision.ToStage)
	}

	// Two past the end is out of range.
	if _, err := DecideAdvance(j, activeEnrollment(3), 5, domain.TriggerManual, true, CompletionResult{Complete: true}); err == nil {
		t.Fatal("target beyond final+1 should be rejected")
	}
}

func TestEvaluateTimingThresholds(t *testing.T) {
	cfg := domain.TimingConfig{ExpectedDays: 3, StallThresholdDays: 7, EscalationThresholdDays: 14}
	// Monday 2025-03-03.
	entered := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	status := EvaluateTiming(cfg, entered, entered.Add(2*24*time.Hour))
	if status.ExpectedExceeded || status.Stalled || status.Escalate {
		t.Fatalf("2 days in stage should raise nothing: %+v", status)
	}

	status = EvaluateTiming(cfg, entered, entered.Add(10*24*time.Hour))
	if !status.ExpectedExceeded || !status.Stalled || status.Escalate {
		t.Fatalf("10 days should stall but not escalate: %+v", status)
	}

	status = EvaluateTiming(cfg, entered, entered.Add(20*24*time.Hour))
	if !status.Escalate {
		t.Fatalf("20 days should escalate: %+v", status)
	}
}

func TestEvaluateTimingZeroThresholdsDisabled(t *testing.T) {
	entered := time.Now().Add(-100 * 24 * time.Hour)
	status := EvaluateTiming(domain.TimingConfig{}, entered, time.Now())
	if status.ExpectedExceeded || status.Stalled || status.Escalate {
		t.Fatalf("zero thresholds must never fire: %+v", status)
	}
}

func TestEvaluateTimingBusinessDays(t *testing.T) {
	cfg := domain.TimingConfig{StallThresholdDays: 5, BusinessHoursOnly: true}
	// Friday 2025-03-07 morning to the next Friday: 7 calendar days, 5 business.
	entered := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	status := EvaluateTiming(cfg, entered, now)
	if status.DaysInStage != 5 {
		t.Fatalf("business days = %v, want 5", status.DaysInStage)
	}
	if status.Stalled {
		t.Fatal("exactly at threshold should not stall")
	}
}
