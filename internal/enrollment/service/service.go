package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"admissions_portal_backend/internal/enrollment/engine"
	"admissions_portal_backend/internal/enrollment/repository"
	"admissions_portal_backend/internal/events"
	"admissions_portal_backend/internal/journeys/domain"
	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/platform/apperr"
	"admissions_portal_backend/platform/config"
	"admissions_portal_backend/platform/logger"
)

// transitionRetries bounds optimistic-concurrency retries before surfacing
// the conflict to the caller.
const transitionRetries = 3

// EnrollmentStore is the persistence boundary for enrollments.
type EnrollmentStore interface {
	Create(ctx context.Context, e repository.Enrollment, entry repository.TransitionLogEntry) (repository.Enrollment, error)
	GetByID(ctx context.Context, tenantID, enrollmentID uuid.UUID) (repository.Enrollment, error)
	GetActiveByLead(ctx context.Context, tenantID, leadID uuid.UUID, journeyKey string) (repository.Enrollment, error)
	ListByLead(ctx context.Context, tenantID, leadID uuid.UUID) ([]repository.Enrollment, error)
	ListActive(ctx context.Context, tenantID uuid.UUID, afterID uuid.UUID, limit int) ([]repository.Enrollment, error)
	Transition(ctx context.Context, e repository.Enrollment, toStage int, toStatus repository.Status, stageEnteredAt time.Time, entry repository.TransitionLogEntry) (repository.Enrollment, error)
	ListTransitionLog(ctx context.Context, tenantID, enrollmentID uuid.UUID) ([]repository.TransitionLogEntry, error)
	UpsertRequirementProgress(ctx context.Context, tenantID uuid.UUID, p repository.RequirementProgress) (domain.RequirementStatus, error)
	ListRequirementProgress(ctx context.Context, tenantID, enrollmentID uuid.UUID) ([]repository.RequirementProgress, error)
	ApproveStage(ctx context.Context, tenantID uuid.UUID, a repository.StageApproval) error
	HasStageApproval(ctx context.Context, tenantID, enrollmentID uuid.UUID, stageIndex int) (bool, error)
}

// JourneyProvider supplies journey definitions from the journeys module.
type JourneyProvider interface {
	GetActiveByKey(ctx context.Context, tenantID uuid.UUID, key string) (domain.Journey, error)
	Get(ctx context.Context, tenantID, journeyID uuid.UUID) (domain.Journey, error)
}

// RouteResult is what the routing module reports for one lead.
type RouteResult struct {
	AdvisorID uuid.UUID
	RuleID    uuid.UUID
	Matched   bool
}

// AdvisorRouter resolves which advisor should own a lead.
type AdvisorRouter interface {
	Route(ctx context.Context, tenantID, leadID uuid.UUID) (RouteResult, error)
}

type Service struct {
	store   EnrollmentStore
	journey JourneyProvider
	leads   leadsrepo.LeadsRepository
	router  AdvisorRouter
	bus     events.Bus
	log     *logger.Logger
	bulkCfg config.BulkConfig
	now     func() time.Time
}

func New(store EnrollmentStore, journey JourneyProvider, leads leadsrepo.LeadsRepository, router AdvisorRouter, bus events.Bus, log *logger.Logger, bulkCfg config.BulkConfig) *Service {
	return &Service{
		store:   store,
		journey: journey,
		leads:   leads,
		router:  router,
		bus:     bus,
		log:     log,
		bulkCfg: bulkCfg,
		now:     time.Now,
	}
}

// Enroll places a lead at stage zero of the active journey version for the
// given key. The version is pinned at enroll time; later journey publishes
// never move an existing enrollment. An existing active enrollment on the
// same journey is a conflict unless replace is set, in which case it is
// exited first and a fresh enrollment created.
func (s *Service) Enroll(ctx context.Context, tenantID, leadID uuid.UUID, journeyKey string, actorID *uuid.UUID, replace bool) (repository.Enrollment, error) {
	if _, err := s.leads.GetSnapshot(ctx, leadID, tenantID); err != nil {
		if errors.Is(err, leadsrepo.ErrNotFound) {
			return repository.Enrollment{}, apperr.NotFound("lead not found")
		}
		return repository.Enrollment{}, err
	}

	journey, err := s.journey.GetActiveByKey(ctx, tenantID, journeyKey)
	if err != nil {
		return repository.Enrollment{}, err
	}

	now := s.now()
	note := "enrolled"
	e := repository.Enrollment{
		ID:             uuid.New(),
		TenantID:       tenantID,
		LeadID:         leadID,
		JourneyID:      journey.ID,
		JourneyKey:     journey.Key,
		JourneyVersion: journey.Version,
		CurrentStage:   0,
		Status:         repository.StatusActive,
		EnrolledAt:     now,
	}
	entry := repository.TransitionLogEntry{
		ID:           uuid.New(),
		EnrollmentID: e.ID,
		TenantID:     tenantID,
		FromStage:    0,
		ToStage:      0,
		FromStatus:   repository.StatusActive,
		ToStatus:     repository.StatusActive,
		Trigger:      domain.TriggerSystem,
		ActorID:      actorID,
		Note:         &note,
		OccurredAt:   now,
	}

	created, err := s.store.Create(ctx, e, entry)
	if errors.Is(err, repository.ErrDuplicateActive) {
		if !replace {
			return repository.Enrollment{}, apperr.Conflict("lead already has an active enrollment for journey " + journeyKey)
		}
		if err := s.exitExisting(ctx, tenantID, leadID, journey.Key, actorID); err != nil {
			return repository.Enrollment{}, err
		}
		created, err = s.store.Create(ctx, e, entry)
	}
	if err != nil {
		return repository.Enrollment{}, err
	}

	s.bus.Publish(ctx, events.LeadEnrolled{
		BaseEvent:    events.NewBaseEvent(),
		EnrollmentID: created.ID,
		LeadID:       leadID,
		JourneyID:    journey.ID,
		TenantID:     tenantID,
	})
	return created, nil
}

// exitExisting closes the lead's active enrollment on the journey so a
// replacement can be created. A vanished enrollment is fine; someone else
// already closed it.
func (s *Service) exitExisting(ctx context.Context, tenantID, leadID uuid.UUID, journeyKey string, actorID *uuid.UUID) error {
	existing, err := s.store.GetActiveByLead(ctx, tenantID, leadID, journeyKey)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.Exit(ctx, tenantID, existing.ID, "replaced", actorID); err != nil {
		return err
	}
	return nil
}

// AdvanceStep moves an enrollment toward the target stage. Lost optimistic
// concurrency races are retried against fresh state a bounded number of
// times before reporting a retryable conflict.
func (s *Service) AdvanceStep(ctx context.Context, tenantID, enrollmentID uuid.UUID, target int, trigger domain.TriggerType, actorID *uuid.UUID, note *string) (repository.Enrollment, error) {
	var lastErr error
	for attempt := 0; attempt < transitionRetries; attempt++ {
		updated, err := s.advanceOnce(ctx, tenantID, enrollmentID, target, trigger, actorID, note)
		if errors.Is(err, repository.ErrVersionConflict) {
			lastErr = err
			continue
		}
		return updated, err
	}

	s.log.Warn("stage transition lost version race after retries",
		"enrollment_id", enrollmentID, "target", target, "error", lastErr)
	return repository.Enrollment{}, apperr.ConcurrentModification("enrollment was modified concurrently; retry")
}

func (s *Service) advanceOnce(ctx context.Context, tenantID, enrollmentID uuid.UUID, target int, trigger domain.TriggerType, actorID *uuid.UUID, note *string) (repository.Enrollment, error) {
	e, err := s.store.GetByID(ctx, tenantID, enrollmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Enrollment{}, apperr.NotFound("enrollment not found")
	}
	if err != nil {
		return repository.Enrollment{}, err
	}

	journey, err := s.journey.Get(ctx, tenantID, e.JourneyID)
	if err != nil {
		return repository.Enrollment{}, err
	}

	completion, err := s.evaluateCurrentStage(ctx, journey, e)
	if err != nil {
		return repository.Enrollment{}, err
	}

	decision, err := engine.DecideAdvance(journey, e, target, trigger, actorID != nil, completion)
	if err != nil {
		return repository.Enrollment{}, err
	}

	now := s.now()
	entry := repository.TransitionLogEntry{
		ID:           uuid.New(),
		EnrollmentID: e.ID,
		TenantID:     tenantID,
		FromStage:    e.CurrentStage,
		ToStage:      decision.ToStage,
		FromStatus:   e.Status,
		ToStatus:     decision.ToStatus,
		Trigger:      trigger,
		ActorID:      actorID,
		Note:         note,
		OccurredAt:   now,
	}

	updated, err := s.store.Transition(ctx, e, decision.ToStage, decision.ToStatus, now, entry)
	if err != nil {
		return repository.Enrollment{}, err
	}

	s.log.StageTransition(e.ID.String(), entry.FromStage, entry.ToStage, string(trigger))
	if decision.ToStatus == repository.StatusCompleted {
		s.bus.Publish(ctx, events.EnrollmentCompleted{
			BaseEvent:    events.NewBaseEvent(),
			EnrollmentID: e.ID,
			LeadID:       e.LeadID,
			JourneyID:    e.JourneyID,
			TenantID:     tenantID,
		})
	} else {
		s.bus.Publish(ctx, events.StageAdvanced{
			BaseEvent:    events.NewBaseEvent(),
			EnrollmentID: e.ID,
			LeadID:       e.LeadID,
			TenantID:     tenantID,
			FromStage:    entry.FromStage,
			ToStage:      entry.ToStage,
			Trigger:      string(trigger),
			ActorID:      actorID,
		})
	}
	return updated, nil
}

func (s *Service) evaluateCurrentStage(ctx context.Context, journey domain.Journey, e repository.Enrollment) (engine.CompletionResult, error) {
	stage, ok := journey.StageAt(e.CurrentStage)
	if !ok {
		return engine.CompletionResult{}, apperr.Internal("enrollment references unknown stage")
	}

	progressRows, err := s.store.ListRequirementProgress(ctx, e.TenantID, e.ID)
	if err != nil {
		return engine.CompletionResult{}, err
	}
	progress := make(map[uuid.UUID]domain.RequirementStatus, len(progressRows))
	for _, row := range progressRows {
		progress[row.RequirementID] = row.Status
	}

	approved := false
	if stage.Completion == domain.CompletionApprovalRequired {
		approved, err = s.store.HasStageApproval(ctx, e.TenantID, e.ID, e.CurrentStage)
		if err != nil {
			return engine.CompletionResult{}, err
		}
	}

	return engine.EvaluateCompletion(stage, progress, approved), nil
}

// Exit removes an enrollment from its journey before completion. The stage
// does not change; only the status does, logged with from == to.
func (s *Service) Exit(ctx context.Context, tenantID, enrollmentID uuid.UUID, reason string, actorID *uuid.UUID) (repository.Enrollment, error) {
	e, err := s.store.GetByID(ctx, tenantID, enrollmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Enrollment{}, apperr.NotFound("enrollment not found")
	}
	if err != nil {
		return repository.Enrollment{}, err
	}
	if e.Status.Terminal() {
		return repository.Enrollment{}, apperr.TerminalState("enrollment is already " + string(e.Status))
	}

	now := s.now()
	entry := repository.TransitionLogEntry{
		ID:           uuid.New(),
		EnrollmentID: e.ID,
		TenantID:     tenantID,
		FromStage:    e.CurrentStage,
		ToStage:      e.CurrentStage,
		FromStatus:   e.Status,
		ToStatus:     repository.StatusExited,
		Trigger:      domain.TriggerManual,
		ActorID:      actorID,
		Note:         &reason,
		OccurredAt:   now,
	}

	updated, err := s.store.Transition(ctx, e, e.CurrentStage, repository.StatusExited, e.StageEnteredAt, entry)
	if errors.Is(err, repository.ErrVersionConflict) {
		return repository.Enrollment{}, apperr.ConcurrentModification("enrollment was modified concurrently; retry")
	}
	if err != nil {
		return repository.Enrollment{}, err
	}

	s.bus.Publish(ctx, events.EnrollmentExited{
		BaseEvent:    events.NewBaseEvent(),
		EnrollmentID: e.ID,
		LeadID:       e.LeadID,
		JourneyID:    e.JourneyID,
		TenantID:     tenantID,
		Reason:       reason,
	})
	return updated, nil
}

// UpdateRequirement records a requirement status change and, when that makes
// the current stage complete, advances the enrollment automatically.
func (s *Service) UpdateRequirement(ctx context.Context, tenantID, enrollmentID, requirementID uuid.UUID, status domain.RequirementStatus, note *string, actorID *uuid.UUID) error {
	if !status.Valid() {
		return apperr.Validation("unknown requirement status " + string(status))
	}

	e, err := s.store.GetByID(ctx, tenantID, enrollmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("enrollment not found")
	}
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return apperr.TerminalState("enrollment is " + string(e.Status))
	}

	journey, err := s.journey.Get(ctx, tenantID, e.JourneyID)
	if err != nil {
		return err
	}
	stageIndex, requirement, found := findRequirement(journey, requirementID)
	if !found {
		return apperr.NotFound("requirement does not belong to this journey")
	}

	previous, err := s.store.UpsertRequirementProgress(ctx, tenantID, repository.RequirementProgress{
		EnrollmentID:  enrollmentID,
		RequirementID: requirementID,
		StageIndex:    stageIndex,
		Status:        status,
		Note:          note,
		UpdatedAt:     s.now(),
	})
	if err != nil {
		return err
	}
	if previous == status {
		return nil
	}

	s.bus.Publish(ctx, events.RequirementStatusChanged{
		BaseEvent:     events.NewBaseEvent(),
		EnrollmentID:  enrollmentID,
		RequirementID: requirementID,
		TenantID:      tenantID,
		OldStatus:     string(previous),
		NewStatus:     string(status),
		OccurredTime:  s.now(),
	})

	if status.Satisfied() && stageIndex == e.CurrentStage {
		s.tryAutoAdvance(ctx, tenantID, enrollmentID, e.CurrentStage+1, requirementTrigger(requirement.Type))
	}
	return nil
}

// Approve records the manual sign-off for an approval_required stage and
// advances the enrollment if that unblocked it.
func (s *Service) Approve(ctx context.Context, tenantID, enrollmentID uuid.UUID, actorID uuid.UUID) error {
	e, err := s.store.GetByID(ctx, tenantID, enrollmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("enrollment not found")
	}
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return apperr.TerminalState("enrollment is " + string(e.Status))
	}

	if err := s.store.ApproveStage(ctx, tenantID, repository.StageApproval{
		EnrollmentID: enrollmentID,
		StageIndex:   e.CurrentStage,
		ApprovedBy:   actorID,
		ApprovedAt:   s.now(),
	}); err != nil {
		return err
	}

	s.tryAutoAdvance(ctx, tenantID, enrollmentID, e.CurrentStage+1, domain.TriggerSystem)
	return nil
}

// tryAutoAdvance attempts a system-triggered advance and swallows validation
// failures: the requirement change itself already succeeded, the stage just
// is not ready yet.
func (s *Service) tryAutoAdvance(ctx context.Context, tenantID, enrollmentID uuid.UUID, target int, trigger domain.TriggerType) {
	if _, err := s.AdvanceStep(ctx, tenantID, enrollmentID, target, trigger, nil, nil); err != nil {
		if apperr.GetKind(err) == apperr.KindValidation {
			return
		}
		s.log.Warn("auto-advance failed", "enrollment_id", enrollmentID, "target", target, "error", err)
	}
}

func requirementTrigger(t domain.RequirementType) domain.TriggerType {
	switch t {
	case domain.RequirementDocument:
		return domain.TriggerDocumentApproved
	case domain.RequirementPayment:
		return domain.TriggerPaymentReceived
	default:
		return domain.TriggerAllRequirementsCompleted
	}
}

func findRequirement(journey domain.Journey, requirementID uuid.UUID) (int, domain.Requirement, bool) {
	for _, stage := range journey.Stages {
		for _, req := range stage.Requirements {
			if req.ID == requirementID {
				return stage.Index, req, true
			}
		}
	}
	return 0, domain.Requirement{}, false
}

// State is a full read model of one enrollment: position, completion, and
// timing in a single response.
type State struct {
	Enrollment  repository.Enrollment
	StageName   string
	Completion  engine.CompletionResult
	Timing      engine.TimingStatus
	Progress    []repository.RequirementProgress
	JourneyName string
	FinalStage  int
}

func (s *Service) GetState(ctx context.Context, tenantID, enrollmentID uuid.UUID) (State, error) {
	e, err := s.store.GetByID(ctx, tenantID, enrollmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return State{}, apperr.NotFound("enrollment not found")
	}
	if err != nil {
		return State{}, err
	}

	journey, err := s.journey.Get(ctx, tenantID, e.JourneyID)
	if err != nil {
		return State{}, err
	}
	stage, ok := journey.StageAt(e.CurrentStage)
	if !ok {
		return State{}, apperr.Internal("enrollment references unknown stage")
	}

	completion, err := s.evaluateCurrentStage(ctx, journey, e)
	if err != nil {
		return State{}, err
	}
	progress, err := s.store.ListRequirementProgress(ctx, tenantID, enrollmentID)
	if err != nil {
		return State{}, err
	}

	return State{
		Enrollment:  e,
		StageName:   stage.Name,
		Completion:  completion,
		Timing:      engine.EvaluateTiming(stage.Timing, e.StageEnteredAt, s.now()),
		Progress:    progress,
		JourneyName: journey.Name,
		FinalStage:  journey.FinalStageIndex(),
	}, nil
}

func (s *Service) ListByLead(ctx context.Context, tenantID, leadID uuid.UUID) ([]repository.Enrollment, error) {
	return s.store.ListByLead(ctx, tenantID, leadID)
}

func (s *Service) ListTransitionLog(ctx context.Context, tenantID, enrollmentID uuid.UUID) ([]repository.TransitionLogEntry, error) {
	if _, err := s.store.GetByID(ctx, tenantID, enrollmentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("enrollment not found")
		}
		return nil, err
	}
	return s.store.ListTransitionLog(ctx, tenantID, enrollmentID)
}
