// Package engine holds the pure decision logic for stage transitions. It has
// no persistence or transport dependencies so every rule is testable with
// plain values.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"admissions_portal_backend/internal/enrollment/repository"
	"admissions_portal_backend/internal/journeys/domain"
	"admissions_portal_backend/platform/apperr"
)

// CompletionResult reports whether a stage's completion criteria are met.
type CompletionResult struct {
	Complete bool
	// MissingRequirements lists the requirement ids still blocking completion.
	MissingRequirements []uuid.UUID
	// NeedsApproval is set when requirements are satisfied but the stage's
	// manual approval is still outstanding.
	NeedsApproval bool
}

// EvaluateCompletion checks the stage's completion policy against recorded
// requirement progress. Requirements with no progress row count as pending.
func EvaluateCompletion(stage domain.Stage, progress map[uuid.UUID]domain.RequirementStatus, approved bool) CompletionResult {
	switch stage.Completion {
	case domain.CompletionAutoAdvance:
		return CompletionResult{Complete: true}

	case domain.CompletionAllRequirements:
		missing := unsatisfiedMandatory(stage, progress)
		return CompletionResult{Complete: len(missing) == 0, MissingRequirements: missing}

	case domain.CompletionSpecificRequirements:
		missing := make([]uuid.UUID, 0)
		for _, id := range stage.CompletionRequirementIDs {
			if !progress[id].Satisfied() {
				missing = append(missing, id)
			}
		}
		return CompletionResult{Complete: len(missing) == 0, MissingRequirements: missing}

	case domain.CompletionApprovalRequired:
		missing := unsatisfiedMandatory(stage, progress)
		if len(missing) > 0 {
			return CompletionResult{MissingRequirements: missing}
		}
		if !approved {
			return CompletionResult{NeedsApproval: true}
		}
		return CompletionResult{Complete: true}

	default:
		// Unknown policies fail closed: nothing auto-advances.
		return CompletionResult{}
	}
}

func unsatisfiedMandatory(stage domain.Stage, progress map[uuid.UUID]domain.RequirementStatus) []uuid.UUID {
	missing := make([]uuid.UUID, 0)
	for _, req := range stage.Requirements {
		if !req.Mandatory {
			continue
		}
		if !progress[req.ID].Satisfied() {
			missing = append(missing, req.ID)
		}
	}
	return missing
}

// AdvanceDecision is the validated outcome of an advance request.
type AdvanceDecision struct {
	ToStage  int
	ToStatus repository.Status
}

// DecideAdvance validates a requested transition against the journey shape,
// the enrollment state, and the current stage's completion result.
//
// A manual trigger with an actor bypasses completion criteria; the audit log
// carries the actor so the override stays attributable. Advancing past the
// final stage completes the enrollment, logged against the final stage.
func DecideAdvance(journey domain.Journey, e repository.Enrollment, target int, trigger domain.TriggerType, hasActor bool, completion CompletionResult) (AdvanceDecision, error) {
	if e.Status.Terminal() {
		return AdvanceDecision{}, apperr.TerminalState(
			fmt.Sprintf("enrollment is %s; no further transitions allowed", e.Status))
	}
	if !trigger.Valid() {
		return AdvanceDecision{}, apperr.Validation(fmt.Sprintf("unknown trigger %q", trigger))
	}
	if trigger == domain.TriggerManual && !hasActor {
		return AdvanceDecision{}, apperr.Validation("manual transitions require an acting user")
	}

	final := journey.FinalStageIndex()
	if target <= e.CurrentStage {
		return AdvanceDecision{}, apperr.Validation(
			fmt.Sprintf("target stage %d is not ahead of current stage %d", target, e.CurrentStage))
	}
	if target > final+1 {
		return AdvanceDecision{}, apperr.Validation(
			fmt.Sprintf("target stage %d is beyond the journey's final stage %d", target, final))
	}

	// Stages between current and target can only be skipped when optional.
	for idx := e.CurrentStage + 1; idx < target && idx <= final; idx++ {
		stage, ok := journey.StageAt(idx)
		if !ok {
			return AdvanceDecision{}, apperr.Validation(fmt.Sprintf("journey has no stage %d", idx))
		}
		if stage.Required {
			return AdvanceDecision{}, apperr.Validation(
				fmt.Sprintf("cannot skip required stage %d (%s)", idx, stage.Name))
		}
	}

	if trigger != domain.TriggerManual && !completion.Complete {
		if completion.NeedsApproval {
			return AdvanceDecision{}, apperr.Validation("stage requires manual approval before advancing")
		}
		return AdvanceDecision{}, apperr.Validation("current stage's completion criteria are not met").
			WithDetails(completion.MissingRequirements)
	}

	if target > final {
		// Completion is recorded against the final stage itself.
		return AdvanceDecision{ToStage: e.CurrentStage, ToStatus: repository.StatusCompleted}, nil
	}
	return AdvanceDecision{ToStage: target, ToStatus: repository.StatusActive}, nil
}

// TimingStatus is the dwell-time evaluation for one enrollment's stage.
type TimingStatus struct {
	DaysInStage      float64
	ExpectedExceeded bool
	Stalled          bool
	Escalate         bool
}

// EvaluateTiming measures how long the enrollment has sat in its stage.
// Thresholds of zero disable the corresponding flag. With BusinessHoursOnly
// set, weekend days do not count toward the dwell time.
func EvaluateTiming(t domain.TimingConfig, enteredAt, now time.Time) TimingStatus {
	days := now.Sub(enteredAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	if t.BusinessHoursOnly {
		days -= weekendDays(enteredAt, now)
		if days < 0 {
			days = 0
		}
	}

	return TimingStatus{
		DaysInStage:      days,
		ExpectedExceeded: t.ExpectedDays > 0 && days > t.ExpectedDays,
		Stalled:          t.StallThresholdDays > 0 && days > t.StallThresholdDays,
		Escalate:         t.EscalationThresholdDays > 0 && days > t.EscalationThresholdDays,
	}
}

// weekendDays counts whole Saturdays and Sundays in [from, to).
func weekendDays(from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	count := 0.0
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for day.Before(to) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return count
}
