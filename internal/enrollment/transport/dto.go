package transport

import (
	"time"

	"github.com/google/uuid"

	"admissions_portal_backend/internal/enrollment/repository"
	"admissions_portal_backend/internal/enrollment/service"
)

type EnrollRequest struct {
	LeadID     uuid.UUID `json:"leadId" validate:"required"`
	JourneyKey string    `json:"journeyKey" validate:"required"`
	// Replace exits an existing active enrollment on the journey instead of
	// failing with a conflict.
	Replace bool `json:"replace"`
}

type BulkEnrollRequest struct {
	LeadIDs    []uuid.UUID `json:"leadIds" validate:"required,min=1,max=1000"`
	JourneyKey string      `json:"journeyKey" validate:"required"`
	// RemoveExisting exits each lead's active enrollment before recreating
	// it, scoped per lead.
	RemoveExisting bool `json:"removeExisting"`
}

type ReEnrollAllRequest struct {
	JourneyKey string `json:"journeyKey" validate:"required"`
	// DryRun reports the scope of the operation without writing anything.
	// Defaults to true so the destructive path needs an explicit opt-in.
	DryRun *bool `json:"dryRun"`
}

type AdvanceRequest struct {
	TargetStage int     `json:"targetStage" validate:"min=0"`
	Trigger     string  `json:"trigger" validate:"required"`
	Note        *string `json:"note" validate:"omitempty,max=1000"`
}

type ExitRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type UpdateRequirementRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note" validate:"omitempty,max=1000"`
}

type EnrollmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	LeadID         uuid.UUID  `json:"leadId"`
	JourneyID      uuid.UUID  `json:"journeyId"`
	JourneyKey     string     `json:"journeyKey"`
	JourneyVersion int        `json:"journeyVersion"`
	CurrentStage   int        `json:"currentStage"`
	Status         string     `json:"status"`
	Version        int        `json:"version"`
	EnrolledAt     time.Time  `json:"enrolledAt"`
	StageEnteredAt time.Time  `json:"stageEnteredAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	ExitedAt       *time.Time `json:"exitedAt,omitempty"`
	ExitReason     *string    `json:"exitReason,omitempty"`
}

type RequirementProgressResponse struct {
	RequirementID uuid.UUID `json:"requirementId"`
	StageIndex    int       `json:"stageIndex"`
	Status        string    `json:"status"`
	Note          *string   `json:"note,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type StateResponse struct {
	Enrollment          EnrollmentResponse            `json:"enrollment"`
	JourneyName         string                        `json:"journeyName"`
	StageName           string                        `json:"stageName"`
	FinalStage          int                           `json:"finalStage"`
	StageComplete       bool                          `json:"stageComplete"`
	MissingRequirements []uuid.UUID                   `json:"missingRequirements,omitempty"`
	NeedsApproval       bool                          `json:"needsApproval"`
	DaysInStage         float64                       `json:"daysInStage"`
	ExpectedExceeded    bool                          `json:"expectedExceeded"`
	Stalled             bool                          `json:"stalled"`
	Escalate            bool                          `json:"escalate"`
	Progress            []RequirementProgressResponse `json:"progress"`
}

type TransitionLogEntryResponse struct {
	ID         uuid.UUID  `json:"id"`
	FromStage  int        `json:"fromStage"`
	ToStage    int        `json:"toStage"`
	FromStatus string     `json:"fromStatus"`
	ToStatus   string     `json:"toStatus"`
	Trigger    string     `json:"trigger"`
	ActorID    *uuid.UUID `json:"actorId,omitempty"`
	Note       *string    `json:"note,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}

type BulkEnrollResponse struct {
	Enrolled        int                   `json:"enrolled"`
	AlreadyEnrolled int                   `json:"alreadyEnrolled"`
	Failed          int                   `json:"failed"`
	Failures        []BulkFailureResponse `json:"failures,omitempty"`
}

type BulkFailureResponse struct {
	LeadID uuid.UUID `json:"leadId"`
	Error  string    `json:"error"`
}

type ReEnrollAllResponse struct {
	DryRun           bool `json:"dryRun"`
	TotalLeads       int  `json:"totalLeads"`
	Exited           int  `json:"exited"`
	Enrolled         int  `json:"enrolled"`
	Routed           int  `json:"routed"`
	SkippedNoRoute   int  `json:"skippedNoRoute"`
	Failed           int  `json:"failed"`
	AssignmentsReset int  `json:"assignmentsReset"`
}

func ToEnrollmentResponse(e repository.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:             e.ID,
		LeadID:         e.LeadID,
		JourneyID:      e.JourneyID,
		JourneyKey:     e.JourneyKey,
		JourneyVersion: e.JourneyVersion,
		CurrentStage:   e.CurrentStage,
		Status:         string(e.Status),
		Version:        e.Version,
		EnrolledAt:     e.EnrolledAt,
		StageEnteredAt: e.StageEnteredAt,
		CompletedAt:    e.CompletedAt,
		ExitedAt:       e.ExitedAt,
		ExitReason:     e.ExitReason,
	}
}

func ToStateResponse(state service.State) StateResponse {
	progress := make([]RequirementProgressResponse, 0, len(state.Progress))
	for _, p := range state.Progress {
		progress = append(progress, RequirementProgressResponse{
			RequirementID: p.RequirementID,
			StageIndex:    p.StageIndex,
			Status:        string(p.Status),
			Note:          p.Note,
			UpdatedAt:     p.UpdatedAt,
		})
	}
	return StateResponse{
		Enrollment:          ToEnrollmentResponse(state.Enrollment),
		JourneyName:         state.JourneyName,
		StageName:           state.StageName,
		FinalStage:          state.FinalStage,
		StageComplete:       state.Completion.Complete,
		MissingRequirements: state.Completion.MissingRequirements,
		NeedsApproval:       state.Completion.NeedsApproval,
		DaysInStage:         state.Timing.DaysInStage,
		ExpectedExceeded:    state.Timing.ExpectedExceeded,
		Stalled:             state.Timing.Stalled,
		Escalate:            state.Timing.Escalate,
		Progress:            progress,
	}
}

func ToTransitionLogResponse(entries []repository.TransitionLogEntry) []TransitionLogEntryResponse {
	out := make([]TransitionLogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, TransitionLogEntryResponse{
			ID:         e.ID,
			FromStage:  e.FromStage,
			ToStage:    e.ToStage,
			FromStatus: string(e.FromStatus),
			ToStatus:   string(e.ToStatus),
			Trigger:    string(e.Trigger),
			ActorID:    e.ActorID,
			Note:       e.Note,
			OccurredAt: e.OccurredAt,
		})
	}
	return out
}
