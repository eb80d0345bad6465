package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"admissions_portal_backend/internal/enrollment/engine"
	"admissions_portal_backend/internal/enrollment/repository"
	"admissions_portal_backend/internal/events"
	"admissions_portal_backend/internal/journeys/domain"
	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/platform/apperr"
)

const listPageSize = 200

// BulkEnrollResult reports a bulk enroll run. Already-enrolled leads count as
// success so the operation is idempotent under retries.
type BulkEnrollResult struct {
	Enrolled        int
	AlreadyEnrolled int
	Failed          int
	Failures        []BulkFailure
}

type BulkFailure struct {
	LeadID uuid.UUID
	Err    string
}

// BulkEnroll enrolls many leads with bounded concurrency and per-lead
// isolation: one failure never aborts the rest. With removeExisting set,
// each lead's active enrollment on the journey is exited and recreated;
// the exit is scoped to that lead only.
func (s *Service) BulkEnroll(ctx context.Context, tenantID uuid.UUID, leadIDs []uuid.UUID, journeyKey string, removeExisting bool, actorID *uuid.UUID) (BulkEnrollResult, error) {
	// Resolve the journey once up front; a missing journey fails the whole
	// request rather than once per lead.
	if _, err := s.journey.GetActiveByKey(ctx, tenantID, journeyKey); err != nil {
		return BulkEnrollResult{}, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bulkCfg.GetBulkConcurrency())

	var mu sync.Mutex
	result := BulkEnrollResult{}

	for _, leadID := range leadIDs {
		leadID := leadID
		g.Go(func() error {
			_, err := s.Enroll(ctx, tenantID, leadID, journeyKey, actorID, removeExisting)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Enrolled++
			case apperr.GetKind(err) == apperr.KindConflict:
				result.AlreadyEnrolled++
			default:
				result.Failed++
				result.Failures = append(result.Failures, BulkFailure{LeadID: leadID, Err: err.Error()})
				s.log.Warn("bulk enroll failed", "lead_id", leadID, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

// ReEnrollAllResult reports the outcome of a tenant-wide re-enroll.
type ReEnrollAllResult struct {
	DryRun           bool
	TotalLeads       int
	Exited           int
	Enrolled         int
	Routed           int
	SkippedNoRoute   int
	Failed           int
	AssignmentsReset int
}

// ProgressFunc receives periodic progress during long bulk runs.
type ProgressFunc func(processed, total int)

// ReEnrollAll exits every lead's active enrollment on the journey, clears
// advisor assignments, re-enrolls each lead on the current active version,
// and re-routes it. Leads no routing rule matches stay unassigned and are
// counted as skipped. With dryRun set, nothing is written; only the scope of
// the operation is reported.
func (s *Service) ReEnrollAll(ctx context.Context, tenantID uuid.UUID, journeyKey string, dryRun bool, actorID *uuid.UUID, onProgress ProgressFunc) (ReEnrollAllResult, error) {
	journey, err := s.journey.GetActiveByKey(ctx, tenantID, journeyKey)
	if err != nil {
		return ReEnrollAllResult{}, err
	}

	total, err := s.leads.CountLeads(ctx, tenantID)
	if err != nil {
		return ReEnrollAllResult{}, err
	}
	result := ReEnrollAllResult{DryRun: dryRun, TotalLeads: total}
	if dryRun {
		return result, nil
	}

	reset, err := s.leads.ClearAdvisors(ctx, tenantID)
	if err != nil {
		return result, err
	}
	result.AssignmentsReset = reset

	processed := 0
	cursor := leadsrepo.Cursor{}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := s.leads.ListLeadIDs(ctx, tenantID, cursor, listPageSize)
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			break
		}

		for _, lead := range page {
			s.reEnrollOne(ctx, tenantID, lead.ID, journey.Key, actorID, &result)
			processed++
			if onProgress != nil && processed%listPageSize == 0 {
				onProgress(processed, total)
			}
		}

		last := page[len(page)-1]
		cursor = leadsrepo.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	if onProgress != nil {
		onProgress(processed, total)
	}
	return result, nil
}

func (s *Service) reEnrollOne(ctx context.Context, tenantID, leadID uuid.UUID, journeyKey string, actorID *uuid.UUID, result *ReEnrollAllResult) {
	existing, err := s.store.GetActiveByLead(ctx, tenantID, leadID, journeyKey)
	if err == nil {
		if _, err := s.Exit(ctx, tenantID, existing.ID, "re-enrolled", actorID); err != nil {
			result.Failed++
			s.log.Warn("re-enroll: exit failed", "lead_id", leadID, "error", err)
			return
		}
		result.Exited++
	} else if !errors.Is(err, repository.ErrNotFound) {
		result.Failed++
		s.log.Warn("re-enroll: lookup failed", "lead_id", leadID, "error", err)
		return
	}

	if _, err := s.Enroll(ctx, tenantID, leadID, journeyKey, actorID, false); err != nil {
		result.Failed++
		s.log.Warn("re-enroll: enroll failed", "lead_id", leadID, "error", err)
		return
	}
	result.Enrolled++

	route, err := s.router.Route(ctx, tenantID, leadID)
	if err != nil {
		result.Failed++
		s.log.Warn("re-enroll: routing failed", "lead_id", leadID, "error", err)
		return
	}
	if !route.Matched {
		result.SkippedNoRoute++
		return
	}

	advisorID := route.AdvisorID
	if err := s.leads.UpdateAdvisor(ctx, leadID, tenantID, &advisorID); err != nil {
		result.Failed++
		s.log.Warn("re-enroll: assignment failed", "lead_id", leadID, "error", err)
		return
	}
	result.Routed++

	s.bus.Publish(ctx, events.LeadRouted{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		TenantID:  tenantID,
		AdvisorID: route.AdvisorID,
		RuleID:    route.RuleID,
	})
}

// SweepResult reports one timing sweep over a tenant's active enrollments.
type SweepResult struct {
	Scanned     int
	Stalled     int
	Escalated   int
	AutoAdvance int
}

// SweepTiming walks active enrollments, publishes stall and escalation
// events for overdue stages, and advances auto_advance stages whose dwell
// time passed the expected duration.
func (s *Service) SweepTiming(ctx context.Context, tenantID uuid.UUID) (SweepResult, error) {
	result := SweepResult{}
	afterID := uuid.Nil

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := s.store.ListActive(ctx, tenantID, afterID, listPageSize)
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			return result, nil
		}

		for _, e := range page {
			result.Scanned++
			s.sweepOne(ctx, tenantID, e, &result)
		}
		afterID = page[len(page)-1].ID
	}
}

func (s *Service) sweepOne(ctx context.Context, tenantID uuid.UUID, e repository.Enrollment, result *SweepResult) {
	journey, err := s.journey.Get(ctx, tenantID, e.JourneyID)
	if err != nil {
		s.log.Warn("sweep: journey lookup failed", "enrollment_id", e.ID, "error", err)
		return
	}
	stage, ok := journey.StageAt(e.CurrentStage)
	if !ok {
		s.log.Warn("sweep: enrollment references unknown stage", "enrollment_id", e.ID, "stage", e.CurrentStage)
		return
	}

	timing := engine.EvaluateTiming(stage.Timing, e.StageEnteredAt, s.now())

	if timing.Escalate {
		result.Escalated++
		s.bus.Publish(ctx, events.EscalationRaised{
			BaseEvent:    events.NewBaseEvent(),
			EnrollmentID: e.ID,
			LeadID:       e.LeadID,
			TenantID:     tenantID,
			StageIndex:   e.CurrentStage,
			DaysInStage:  timing.DaysInStage,
		})
	} else if timing.Stalled {
		result.Stalled++
		s.bus.Publish(ctx, events.StageStalled{
			BaseEvent:    events.NewBaseEvent(),
			EnrollmentID: e.ID,
			LeadID:       e.LeadID,
			TenantID:     tenantID,
			StageIndex:   e.CurrentStage,
			DaysInStage:  timing.DaysInStage,
		})
	}

	if stage.Completion == domain.CompletionAutoAdvance && timing.ExpectedExceeded {
		if _, err := s.AdvanceStep(ctx, tenantID, e.ID, e.CurrentStage+1, domain.TriggerSystem, nil, nil); err == nil {
			result.AutoAdvance++
		}
	}
}
