// Package journeys wires the journey definition bounded context: versioned
// stage templates, activation, and seed defaults.
package journeys

import (
	apphttp "admissions_portal_backend/internal/http"
	"admissions_portal_backend/internal/journeys/domain"
	"admissions_portal_backend/internal/journeys/handler"
	"admissions_portal_backend/internal/journeys/repository"
	"admissions_portal_backend/internal/journeys/seed"
	"admissions_portal_backend/internal/journeys/service"
	"admissions_portal_backend/platform/logger"
	"admissions_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule builds the journeys module. The seed path is optional; an empty
// path or unreadable file just means no defaults are available.
func NewModule(pool *pgxpool.Pool, log *logger.Logger, val *validator.Validator, seedPath string) *Module {
	var seeds []domain.Journey
	if seedPath != "" {
		loaded, err := seed.Load(seedPath)
		if err != nil {
			log.Warn("journey seed file not loaded", "path", seedPath, "error", err)
		} else {
			seeds = loaded
		}
	}

	repo := repository.New(pool)
	svc := service.New(repo, seeds, log)
	h := handler.New(svc, val)

	return &Module{handler: h, service: svc}
}

func (m *Module) Name() string {
	return "journeys"
}

// Service exposes the journeys service for cross-module wiring (enrollment
// needs journey definitions).
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Tenant.Group("/journeys")
	m.handler.RegisterRoutes(group)
}

var _ apphttp.Module = (*Module)(nil)
