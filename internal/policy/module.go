// Package policy wires the channel policy engine: pure communication
// decisions over a stage's channel rules, previewed via HTTP before any
// dispatcher acts.
package policy

import (
	apphttp "admissions_portal_backend/internal/http"
	"admissions_portal_backend/internal/policy/handler"
	"admissions_portal_backend/internal/policy/repository"
	"admissions_portal_backend/internal/policy/service"
	"admissions_portal_backend/platform/config"
	"admissions_portal_backend/platform/logger"
	"admissions_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

func NewModule(pool *pgxpool.Pool, enrollments service.EnrollmentReader, journeys service.JourneyProvider, cfg config.PolicyConfig, log *logger.Logger, val *validator.Validator) *Module {
	usage := repository.New(pool)
	svc := service.New(enrollments, journeys, usage, cfg, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

func (m *Module) Name() string {
	return "policy"
}

func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Tenant.Group("/policy")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
