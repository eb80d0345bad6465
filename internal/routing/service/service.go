package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/internal/routing/repository"
	scoringrepo "admissions_portal_backend/internal/scoring/repository"
	"admissions_portal_backend/platform/apperr"
	"admissions_portal_backend/platform/logger"
)

// RuleStore is the persistence boundary for routing rules.
type RuleStore interface {
	Create(ctx context.Context, rule repository.Rule) (repository.Rule, error)
	Update(ctx context.Context, rule repository.Rule) (repository.Rule, error)
	Delete(ctx context.Context, tenantID, ruleID uuid.UUID) error
	Get(ctx context.Context, tenantID, ruleID uuid.UUID) (repository.Rule, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]repository.Rule, error)
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]repository.Rule, error)
}

// ScoreReader reads the current score of a lead from the scoring module.
type ScoreReader interface {
	GetCurrentScore(ctx context.Context, tenantID, leadID uuid.UUID) (scoringrepo.Score, error)
}

type Service struct {
	store  RuleStore
	leads  leadsrepo.SnapshotReader
	scores ScoreReader
	log    *logger.Logger
}

func New(store RuleStore, leads leadsrepo.SnapshotReader, scores ScoreReader, log *logger.Logger) *Service {
	return &Service{store: store, leads: leads, scores: scores, log: log}
}

// Resolution is the outcome of routing one lead.
type Resolution struct {
	AdvisorID uuid.UUID
	RuleID    uuid.UUID
	RuleName  string
	Matched   bool
}

// Route evaluates the tenant's active rules against the lead, in ascending
// priority order, and returns the first match. A rule with a min_score
// matcher never matches a lead that has no computed score.
func (s *Service) Route(ctx context.Context, tenantID, leadID uuid.UUID) (Resolution, error) {
	snap, err := s.leads.GetSnapshot(ctx, leadID, tenantID)
	if errors.Is(err, leadsrepo.ErrNotFound) {
		return Resolution{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return Resolution{}, err
	}

	rules, err := s.store.ListActive(ctx, tenantID)
	if err != nil {
		return Resolution{}, err
	}
	if len(rules) == 0 {
		return Resolution{}, nil
	}

	// The score is fetched at most once, and only when some rule needs it.
	var score *float64
	scoreLoaded := false
	loadScore := func() (*float64, error) {
		if scoreLoaded {
			return score, nil
		}
		scoreLoaded = true
		current, err := s.scores.GetCurrentScore(ctx, tenantID, leadID)
		if errors.Is(err, scoringrepo.ErrScoreNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		v := float64(current.Score)
		score = &v
		return score, nil
	}

	for _, rule := range rules {
		if rule.Source != nil && !matchText(*rule.Source, snap.Source) {
			continue
		}
		if rule.Program != nil && !matchText(*rule.Program, snap.Program) {
			continue
		}
		if rule.MinScore != nil {
			current, err := loadScore()
			if err != nil {
				return Resolution{}, err
			}
			if current == nil || *current < *rule.MinScore {
				continue
			}
		}
		return Resolution{
			AdvisorID: rule.AdvisorID,
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			Matched:   true,
		}, nil
	}
	return Resolution{}, nil
}

func matchText(want string, have *string) bool {
	return have != nil && strings.EqualFold(want, *have)
}

func (s *Service) CreateRule(ctx context.Context, rule repository.Rule) (repository.Rule, error) {
	if err := validateRule(rule); err != nil {
		return repository.Rule{}, err
	}
	rule.ID = uuid.New()
	return s.store.Create(ctx, rule)
}

func (s *Service) UpdateRule(ctx context.Context, rule repository.Rule) (repository.Rule, error) {
	if err := validateRule(rule); err != nil {
		return repository.Rule{}, err
	}
	updated, err := s.store.Update(ctx, rule)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Rule{}, apperr.NotFound("routing rule not found")
	}
	return updated, err
}

func (s *Service) DeleteRule(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	err := s.store.Delete(ctx, tenantID, ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("routing rule not found")
	}
	return err
}

func (s *Service) GetRule(ctx context.Context, tenantID, ruleID uuid.UUID) (repository.Rule, error) {
	rule, err := s.store.Get(ctx, tenantID, ruleID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Rule{}, apperr.NotFound("routing rule not found")
	}
	return rule, err
}

func (s *Service) ListRules(ctx context.Context, tenantID uuid.UUID) ([]repository.Rule, error) {
	return s.store.List(ctx, tenantID)
}

func validateRule(rule repository.Rule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return apperr.Validation("rule name is required")
	}
	if rule.AdvisorID == uuid.Nil {
		return apperr.Validation("rule advisor is required")
	}
	if rule.Priority < 0 {
		return apperr.Validation("rule priority must not be negative")
	}
	if rule.MinScore != nil && (*rule.MinScore < 0 || *rule.MinScore > 100) {
		return apperr.Validation("min_score must be between 0 and 100")
	}
	return nil
}
