// Package scoring wires the lead scoring bounded context: weighted models,
// score computation with auditable breakdowns, and score history.
package scoring

import (
	"admissions_portal_backend/internal/events"
	apphttp "admissions_portal_backend/internal/http"
	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/internal/scoring/handler"
	"admissions_portal_backend/internal/scoring/repository"
	"admissions_portal_backend/internal/scoring/service"
	"admissions_portal_backend/platform/config"
	"admissions_portal_backend/platform/logger"
	"admissions_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ModuleConfig interface {
	config.ScoringConfig
	config.BulkConfig
}

type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

func NewModule(pool *pgxpool.Pool, leads leadsrepo.SnapshotReader, bus events.Bus, log *logger.Logger, cfg ModuleConfig, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, leads, bus, log, cfg, cfg)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc, repo: repo}
}

// Repository exposes score reads for cross-module wiring (routing).
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

func (m *Module) Name() string {
	return "scoring"
}

// Service exposes the scoring service for cross-module wiring (scheduler,
// backfill CLI).
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Tenant.Group("/scoring")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
