package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"admissions_portal_backend/internal/events"
	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/internal/scoring/feature"
	"admissions_portal_backend/internal/scoring/repository"
	"admissions_portal_backend/platform/apperr"
	"admissions_portal_backend/platform/config"
	"admissions_portal_backend/platform/logger"
)

const baseScore = 50.0

// ScoreStore is the persistence boundary the service needs from the scoring
// repository.
type ScoreStore interface {
	CreateModel(ctx context.Context, tenantID uuid.UUID, name string, weights map[string]float64) (repository.Model, error)
	ActivateModel(ctx context.Context, tenantID, modelID uuid.UUID) error
	GetActiveModel(ctx context.Context, tenantID uuid.UUID) (repository.Model, error)
	GetModel(ctx context.Context, tenantID, modelID uuid.UUID) (repository.Model, error)
	ListModels(ctx context.Context, tenantID uuid.UUID) ([]repository.Model, error)
	SaveScore(ctx context.Context, score repository.Score, features map[string]float64) error
	GetCurrentScore(ctx context.Context, tenantID, leadID uuid.UUID) (repository.Score, error)
	ListScoreHistory(ctx context.Context, tenantID, leadID uuid.UUID, limit int) ([]repository.HistoryEntry, error)
}

type Service struct {
	store   ScoreStore
	leads   leadsrepo.SnapshotReader
	bus     events.Bus
	log     *logger.Logger
	cfg     config.ScoringConfig
	bulkCfg config.BulkConfig
	now     func() time.Time
}

func New(store ScoreStore, leads leadsrepo.SnapshotReader, bus events.Bus, log *logger.Logger, cfg config.ScoringConfig, bulkCfg config.BulkConfig) *Service {
	return &Service{
		store:   store,
		leads:   leads,
		bus:     bus,
		log:     log,
		cfg:     cfg,
		bulkCfg: bulkCfg,
		now:     time.Now,
	}
}

// ComputedScore is the outcome of one scoring run. Breakdown is truncated to
// the configured report limit; the full breakdown is what gets persisted.
type ComputedScore struct {
	LeadID       uuid.UUID
	Score        int
	ModelID      uuid.UUID
	ModelVersion int
	Breakdown    []repository.BreakdownEntry
	ComputedAt   time.Time
	// Neutral is set when the tenant has no active model. The score is the
	// base value, nothing is persisted, and no event is published.
	Neutral bool
}

// ComputeScore runs the tenant's active model against the lead's current
// snapshot and persists the result. A tenant without an active model gets the
// neutral base score back with no persistence; that is an expected state
// during onboarding, not an error.
func (s *Service) ComputeScore(ctx context.Context, tenantID, leadID uuid.UUID) (ComputedScore, error) {
	snap, err := s.leads.GetSnapshot(ctx, leadID, tenantID)
	if err != nil {
		if errors.Is(err, leadsrepo.ErrNotFound) {
			return ComputedScore{}, apperr.NotFound("lead not found")
		}
		return ComputedScore{}, err
	}

	model, err := s.store.GetActiveModel(ctx, tenantID)
	if errors.Is(err, repository.ErrNoActiveModel) {
		return ComputedScore{
			LeadID:     leadID,
			Score:      clampScore(baseScore),
			Breakdown:  []repository.BreakdownEntry{},
			ComputedAt: s.now(),
			Neutral:    true,
		}, nil
	}
	if err != nil {
		return ComputedScore{}, err
	}

	computedAt := s.now()
	vector := feature.Extract(snap, computedAt)
	score, breakdown := s.evaluate(model, vector)

	record := repository.Score{
		LeadID:       leadID,
		TenantID:     tenantID,
		Score:        score,
		ModelID:      model.ID,
		ModelVersion: model.Version,
		Breakdown:    breakdown,
		ComputedAt:   computedAt,
	}
	if err := s.store.SaveScore(ctx, record, numericVector(vector)); err != nil {
		return ComputedScore{}, err
	}

	s.bus.Publish(ctx, events.LeadScoreComputed{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       leadID,
		TenantID:     tenantID,
		Score:        score,
		ModelVersion: model.Version,
	})

	return ComputedScore{
		LeadID:       leadID,
		Score:        score,
		ModelID:      model.ID,
		ModelVersion: model.Version,
		Breakdown:    truncate(breakdown, s.cfg.GetBreakdownReportLimit()),
		ComputedAt:   computedAt,
	}, nil
}

// evaluate applies the model's weights to the feature vector. The result is
// deterministic for a given (model, vector) pair: map iteration order is
// neutralized by sorting the breakdown before returning. Points accumulate
// as floats; the final score rounds to an integer in [0,100].
func (s *Service) evaluate(model repository.Model, vector feature.Vector) (int, []repository.BreakdownEntry) {
	score := baseScore
	breakdown := make([]repository.BreakdownEntry, 0, len(model.Weights))

	for name, weight := range model.Weights {
		def, known := feature.Lookup(name)
		if !known {
			// Unknown feature names resolve neutral so a model authored
			// against a newer catalog does not break scoring.
			continue
		}

		var value, points float64
		switch def.Kind {
		case feature.KindBool:
			if vector.BoolAt(name) {
				value = 1
				points = weight * 10
			}
		case feature.KindDecay:
			denom, ceiling := s.decayParams(name)
			value = math.Min(vector.NumberAt(name)/denom, ceiling)
			points = weight * value * 10
		case feature.KindRatio:
			value = clamp(vector.NumberAt(name), 0, 1)
			points = weight * value * 10
		case feature.KindCount:
			value = math.Min(vector.NumberAt(name), def.CountCap)
			points = weight * value
		}

		if points == 0 {
			continue
		}
		score += points
		breakdown = append(breakdown, repository.BreakdownEntry{
			Feature: name,
			Label:   def.Label,
			Weight:  weight,
			Value:   value,
			Points:  points,
			Impact:  impact(points),
		})
	}

	sort.Slice(breakdown, func(i, j int) bool {
		ai, aj := math.Abs(breakdown[i].Points), math.Abs(breakdown[j].Points)
		if ai != aj {
			return ai > aj
		}
		return breakdown[i].Feature < breakdown[j].Feature
	})

	return clampScore(score), breakdown
}

func (s *Service) decayParams(name string) (denominator, ceiling float64) {
	switch name {
	case feature.DaysSinceLastContact:
		return s.cfg.GetContactDecayDenominatorDays(), s.cfg.GetContactDecayCap()
	default:
		return s.cfg.GetCreatedDecayDenominatorDays(), s.cfg.GetCreatedDecayCap()
	}
}

// BulkResult reports the outcome of a bulk scoring run. Failures are partial;
// one lead failing never aborts the rest.
type BulkResult struct {
	Scored   int
	Failed   int
	Failures []BulkFailure
}

type BulkFailure struct {
	LeadID uuid.UUID
	Err    string
}

// BulkScore recomputes scores for the given leads with bounded concurrency.
func (s *Service) BulkScore(ctx context.Context, tenantID uuid.UUID, leadIDs []uuid.UUID) (BulkResult, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bulkCfg.GetBulkConcurrency())

	var mu sync.Mutex
	result := BulkResult{}

	for _, leadID := range leadIDs {
		leadID := leadID
		g.Go(func() error {
			_, err := s.ComputeScore(ctx, tenantID, leadID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Failures = append(result.Failures, BulkFailure{LeadID: leadID, Err: err.Error()})
				s.log.Warn("bulk score failed", "lead_id", leadID, "error", err)
				return nil
			}
			result.Scored++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) GetScore(ctx context.Context, tenantID, leadID uuid.UUID) (repository.Score, error) {
	score, err := s.store.GetCurrentScore(ctx, tenantID, leadID)
	if errors.Is(err, repository.ErrScoreNotFound) {
		return repository.Score{}, apperr.NotFound("lead has not been scored")
	}
	if err != nil {
		return repository.Score{}, err
	}
	score.Breakdown = truncate(score.Breakdown, s.cfg.GetBreakdownReportLimit())
	return score, nil
}

func (s *Service) GetHistory(ctx context.Context, tenantID, leadID uuid.UUID, limit int) ([]repository.HistoryEntry, error) {
	return s.store.ListScoreHistory(ctx, tenantID, leadID, limit)
}

func (s *Service) CreateModel(ctx context.Context, tenantID uuid.UUID, name string, weights map[string]float64) (repository.Model, error) {
	if len(weights) == 0 {
		return repository.Model{}, apperr.Validation("model requires at least one feature weight")
	}
	for featureName := range weights {
		if _, known := feature.Lookup(featureName); !known {
			s.log.Warn("model references unknown feature", "feature", featureName)
		}
	}
	return s.store.CreateModel(ctx, tenantID, name, weights)
}

func (s *Service) ActivateModel(ctx context.Context, tenantID, modelID uuid.UUID) (repository.Model, error) {
	if err := s.store.ActivateModel(ctx, tenantID, modelID); err != nil {
		if errors.Is(err, repository.ErrModelNotFound) {
			return repository.Model{}, apperr.NotFound("scoring model not found")
		}
		return repository.Model{}, err
	}
	model, err := s.store.GetModel(ctx, tenantID, modelID)
	if err != nil {
		return repository.Model{}, err
	}

	s.bus.Publish(ctx, events.ScoringModelActivated{
		BaseEvent: events.NewBaseEvent(),
		ModelID:   modelID,
		TenantID:  tenantID,
		Version:   model.Version,
	})
	return model, nil
}

func (s *Service) ListModels(ctx context.Context, tenantID uuid.UUID) ([]repository.Model, error) {
	return s.store.ListModels(ctx, tenantID)
}

func numericVector(v feature.Vector) map[string]float64 {
	out := make(map[string]float64, len(v))
	for name, val := range v {
		if val.Bool {
			out[name] = 1
			continue
		}
		out[name] = val.Number
	}
	return out
}

func truncate(entries []repository.BreakdownEntry, limit int) []repository.BreakdownEntry {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	return entries[:limit]
}

func impact(points float64) string {
	if points < 0 {
		return "negative"
	}
	return "positive"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampScore(value float64) int {
	rounded := int(math.Round(value))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
