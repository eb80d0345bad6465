// Package routing wires advisor assignment: priority-ordered matching rules
// over lead source, program, and current score.
package routing

import (
	apphttp "admissions_portal_backend/internal/http"
	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/internal/routing/handler"
	"admissions_portal_backend/internal/routing/repository"
	"admissions_portal_backend/internal/routing/service"
	"admissions_portal_backend/platform/logger"
	"admissions_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

func NewModule(pool *pgxpool.Pool, leads leadsrepo.SnapshotReader, scores service.ScoreReader, log *logger.Logger, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, leads, scores, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

func (m *Module) Name() string {
	return "routing"
}

// Service exposes the resolver for cross-module wiring (enrollment).
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Tenant.Group("/routing")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
