// Package enrollment wires the journey enrollment bounded context: stage
// progression with optimistic concurrency, requirement tracking, approvals,
// bulk enrollment, and timing sweeps.
package enrollment

import (
	"admissions_portal_backend/internal/enrollment/handler"
	"admissions_portal_backend/internal/enrollment/repository"
	"admissions_portal_backend/internal/enrollment/service"
	"admissions_portal_backend/internal/events"
	apphttp "admissions_portal_backend/internal/http"
	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/platform/config"
	"admissions_portal_backend/platform/logger"
	"admissions_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    *repository.Repository
}

func NewModule(pool *pgxpool.Pool, journeys service.JourneyProvider, leads leadsrepo.LeadsRepository, router service.AdvisorRouter, bus events.Bus, log *logger.Logger, cfg config.BulkConfig, val *validator.Validator) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, journeys, leads, router, bus, log, cfg)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc, repo: repo}
}

// Repository exposes enrollment reads for cross-module wiring (policy).
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

func (m *Module) Name() string {
	return "enrollment"
}

// Service exposes the enrollment service for cross-module wiring (scheduler
// timing sweeps).
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Tenant.Group("/enrollments")
	m.handler.RegisterRoutes(group)

	// Lead-centric read mounted alongside the other lead routes.
	ctx.Tenant.GET("/leads/:leadId/enrollments", m.handler.LeadEnrollments)
}

var _ apphttp.Module = (*Module)(nil)
