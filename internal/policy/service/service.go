package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	enrollrepo "admissions_portal_backend/internal/enrollment/repository"
	"admissions_portal_backend/internal/journeys/domain"
	"admissions_portal_backend/internal/policy/engine"
	"admissions_portal_backend/platform/apperr"
	"admissions_portal_backend/platform/config"
	"admissions_portal_backend/platform/logger"
)

// EnrollmentReader resolves an enrollment's current position.
type EnrollmentReader interface {
	GetByID(ctx context.Context, tenantID, enrollmentID uuid.UUID) (enrollrepo.Enrollment, error)
}

// JourneyProvider supplies the pinned journey version for an enrollment.
type JourneyProvider interface {
	Get(ctx context.Context, tenantID, journeyID uuid.UUID) (domain.Journey, error)
}

// UsageReader supplies recent communication counts for a lead+channel pair.
type UsageReader interface {
	ChannelUsage(ctx context.Context, tenantID, leadID uuid.UUID, channel domain.ChannelType, now time.Time) (engine.Usage, error)
}

type Service struct {
	enrollments EnrollmentReader
	journeys    JourneyProvider
	usage       UsageReader
	cfg         config.PolicyConfig
	log         *logger.Logger
	now         func() time.Time
}

func New(enrollments EnrollmentReader, journeys JourneyProvider, usage UsageReader, cfg config.PolicyConfig, log *logger.Logger) *Service {
	return &Service{
		enrollments: enrollments,
		journeys:    journeys,
		usage:       usage,
		cfg:         cfg,
		log:         log,
		now:         time.Now,
	}
}

// Preview is a dry-run policy decision for one enrollment's current stage.
type Preview struct {
	Decision    engine.Decision
	StageIndex  int
	StageName   string
	Usage       engine.Usage
	EvaluatedAt time.Time
}

// PreviewDecision resolves the enrollment's current stage and answers
// whether the candidate communication would be allowed now. It never
// records anything; callers dispatch (or not) based on the decision.
func (s *Service) PreviewDecision(ctx context.Context, tenantID, enrollmentID uuid.UUID, channel domain.ChannelType, priority int) (Preview, error) {
	if !channel.Valid() {
		return Preview{}, apperr.Validation("unknown channel type")
	}

	e, err := s.enrollments.GetByID(ctx, tenantID, enrollmentID)
	if errors.Is(err, enrollrepo.ErrNotFound) {
		return Preview{}, apperr.NotFound("enrollment not found")
	}
	if err != nil {
		return Preview{}, err
	}

	journey, err := s.journeys.Get(ctx, tenantID, e.JourneyID)
	if err != nil {
		return Preview{}, err
	}
	stage, ok := journey.StageAt(e.CurrentStage)
	if !ok {
		return Preview{}, apperr.Internal("enrollment references unknown stage")
	}

	now := s.now()
	usage, err := s.usage.ChannelUsage(ctx, tenantID, e.LeadID, channel, now)
	if err != nil {
		return Preview{}, err
	}

	hours := engine.BusinessHours{
		StartHour: s.cfg.GetBusinessHoursStart(),
		EndHour:   s.cfg.GetBusinessHoursEnd(),
	}
	decision := engine.Decide(stage, engine.Action{Channel: channel, Priority: priority}, usage, now, hours)

	return Preview{
		Decision:    decision,
		StageIndex:  stage.Index,
		StageName:   stage.Name,
		Usage:       usage,
		EvaluatedAt: now,
	}, nil
}
