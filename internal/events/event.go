// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"admissions_portal_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Scoring Domain Events
// =============================================================================

// LeadScoreComputed is published after the scoring model runs for a lead.
type LeadScoreComputed struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	TenantID     uuid.UUID `json:"tenantId"`
	Score        int       `json:"score"`
	ModelVersion int       `json:"modelVersion"`
}

func (e LeadScoreComputed) EventName() string { return "scoring.lead.score_computed" }

// ScoringModelActivated is published when a tenant switches its active model.
type ScoringModelActivated struct {
	BaseEvent
	ModelID  uuid.UUID `json:"modelId"`
	TenantID uuid.UUID `json:"tenantId"`
	Version  int       `json:"version"`
}

func (e ScoringModelActivated) EventName() string { return "scoring.model.activated" }

// =============================================================================
// Enrollment Domain Events
// =============================================================================

// LeadEnrolled is published when a lead is enrolled into a journey.
type LeadEnrolled struct {
	BaseEvent
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	JourneyID    uuid.UUID `json:"journeyId"`
	TenantID     uuid.UUID `json:"tenantId"`
}

func (e LeadEnrolled) EventName() string { return "enrollment.lead.enrolled" }

// StageAdvanced is published after a stage transition commits.
type StageAdvanced struct {
	BaseEvent
	EnrollmentID uuid.UUID  `json:"enrollmentId"`
	LeadID       uuid.UUID  `json:"leadId"`
	TenantID     uuid.UUID  `json:"tenantId"`
	FromStage    int        `json:"fromStage"`
	ToStage      int        `json:"toStage"`
	Trigger      string     `json:"trigger"`
	ActorID      *uuid.UUID `json:"actorId,omitempty"`
}

func (e StageAdvanced) EventName() string { return "enrollment.stage.advanced" }

// EnrollmentCompleted is published when an enrollment reaches the final stage.
type EnrollmentCompleted struct {
	BaseEvent
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	JourneyID    uuid.UUID `json:"journeyId"`
	TenantID     uuid.UUID `json:"tenantId"`
}

func (e EnrollmentCompleted) EventName() string { return "enrollment.completed" }

// EnrollmentExited is published when an enrollment is removed before completion.
type EnrollmentExited struct {
	BaseEvent
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	JourneyID    uuid.UUID `json:"journeyId"`
	TenantID     uuid.UUID `json:"tenantId"`
	Reason       string    `json:"reason,omitempty"`
}

func (e EnrollmentExited) EventName() string { return "enrollment.exited" }

// StageStalled is published by the timing sweep when an enrollment has sat in
// its current stage past the stall threshold. Reporting only; no state change.
type StageStalled struct {
	BaseEvent
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	TenantID     uuid.UUID `json:"tenantId"`
	StageIndex   int       `json:"stageIndex"`
	DaysInStage  float64   `json:"daysInStage"`
}

func (e StageStalled) EventName() string { return "enrollment.stage.stalled" }

// EscalationRaised is published when an enrollment exceeds the escalation
// threshold for its current stage.
type EscalationRaised struct {
	BaseEvent
	EnrollmentID uuid.UUID `json:"enrollmentId"`
	LeadID       uuid.UUID `json:"leadId"`
	TenantID     uuid.UUID `json:"tenantId"`
	StageIndex   int       `json:"stageIndex"`
	DaysInStage  float64   `json:"daysInStage"`
}

func (e EscalationRaised) EventName() string { return "enrollment.escalation.raised" }

// =============================================================================
// Routing Domain Events
// =============================================================================

// LeadRouted is published when routing rules assign a lead to an advisor.
type LeadRouted struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	TenantID  uuid.UUID `json:"tenantId"`
	AdvisorID uuid.UUID `json:"advisorId"`
	RuleID    uuid.UUID `json:"ruleId"`
}

func (e LeadRouted) EventName() string { return "routing.lead.routed" }

// =============================================================================
// Requirement Domain Events
// =============================================================================

// RequirementStatusChanged is published when a requirement's verification
// status changes on an enrollment (document approved, payment received, ...).
type RequirementStatusChanged struct {
	BaseEvent
	EnrollmentID  uuid.UUID `json:"enrollmentId"`
	RequirementID uuid.UUID `json:"requirementId"`
	TenantID      uuid.UUID `json:"tenantId"`
	OldStatus     string    `json:"oldStatus"`
	NewStatus     string    `json:"newStatus"`
	OccurredTime  time.Time `json:"occurredTime"`
}

func (e RequirementStatusChanged) EventName() string { return "enrollment.requirement.status_changed" }
