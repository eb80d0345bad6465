package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"admissions_portal_backend/internal/journeys/domain"
	"admissions_portal_backend/internal/journeys/repository"
	"admissions_portal_backend/platform/apperr"
	"admissions_portal_backend/platform/logger"
)

// JourneyStore is the persistence boundary for journey definitions.
type JourneyStore interface {
	Publish(ctx context.Context, journey domain.Journey) (domain.Journey, error)
	Activate(ctx context.Context, tenantID, journeyID uuid.UUID) (domain.Journey, error)
	GetByID(ctx context.Context, tenantID, journeyID uuid.UUID) (domain.Journey, error)
	GetActiveByKey(ctx context.Context, tenantID uuid.UUID, key string) (domain.Journey, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.Journey, error)
	HasAnyForKey(ctx context.Context, tenantID uuid.UUID, key string) (bool, error)
}

type Service struct {
	store JourneyStore
	seeds []domain.Journey
	log   *logger.Logger
}

func New(store JourneyStore, seeds []domain.Journey, log *logger.Logger) *Service {
	return &Service{store: store, seeds: seeds, log: log}
}

// Publish validates and stores a new journey version. The version is never
// active on publish; activation is a separate, explicit step.
func (s *Service) Publish(ctx context.Context, journey domain.Journey) (domain.Journey, error) {
	if err := journey.Validate(); err != nil {
		return domain.Journey{}, apperr.Validation(err.Error())
	}
	return s.store.Publish(ctx, journey)
}

func (s *Service) Activate(ctx context.Context, tenantID, journeyID uuid.UUID) (domain.Journey, error) {
	journey, err := s.store.Activate(ctx, tenantID, journeyID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Journey{}, apperr.NotFound("journey not found")
	}
	return journey, err
}

func (s *Service) Get(ctx context.Context, tenantID, journeyID uuid.UUID) (domain.Journey, error) {
	journey, err := s.store.GetByID(ctx, tenantID, journeyID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Journey{}, apperr.NotFound("journey not found")
	}
	return journey, err
}

func (s *Service) GetActiveByKey(ctx context.Context, tenantID uuid.UUID, key string) (domain.Journey, error) {
	journey, err := s.store.GetActiveByKey(ctx, tenantID, key)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Journey{}, apperr.NotFound("no active journey for key " + key)
	}
	return journey, err
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Journey, error) {
	return s.store.List(ctx, tenantID)
}

// ApplySeeds publishes and activates the bundled seed journeys for a tenant.
// Keys the tenant already has a version for are skipped so tenant-authored
// definitions are never clobbered. Returns the keys that were applied.
func (s *Service) ApplySeeds(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	applied := make([]string, 0, len(s.seeds))
	for _, seedJourney := range s.seeds {
		exists, err := s.store.HasAnyForKey(ctx, tenantID, seedJourney.Key)
		if err != nil {
			return applied, err
		}
		if exists {
			continue
		}

		seedJourney.TenantID = tenantID
		published, err := s.store.Publish(ctx, seedJourney)
		if err != nil {
			return applied, err
		}
		if _, err := s.store.Activate(ctx, tenantID, published.ID); err != nil {
			return applied, err
		}

		s.log.Info("seed journey applied", "tenant_id", tenantID, "key", seedJourney.Key)
		applied = append(applied, seedJourney.Key)
	}
	return applied, nil
}
