package main

import (
	"context"
	"os"
	"strings"
	"time"

	"admissions_portal_backend/internal/config"
	"admissions_portal_backend/internal/events"
	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/internal/scoring"
	"admissions_portal_backend/platform/db"
	"admissions_portal_backend/platform/logger"
	"admissions_portal_backend/platform/validator"

	"github.com/google/uuid"
)

const pageSize = 200

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting score backfill")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	leadsRepo := leadsrepo.New(pool)
	scoringModule := scoring.NewModule(pool, leadsRepo, eventBus, log, cfg, val)
	scorer := scoringModule.Service()

	tenants, err := resolveTenants(ctx, leadsRepo)
	if err != nil {
		log.Error("failed to resolve tenants", "error", err)
		panic("failed to resolve tenants: " + err.Error())
	}
	if len(tenants) == 0 {
		log.Info("no tenants to backfill")
		return
	}

	var scored int
	var failed int

	for _, tenantID := range tenants {
		cursor := leadsrepo.Cursor{}

		for {
			refs, err := leadsRepo.ListLeadIDs(ctx, tenantID, cursor, pageSize)
			if err != nil {
				log.Error("failed to list leads", "tenantId", tenantID, "error", err)
				break
			}
			if len(refs) == 0 {
				break
			}

			ids := make([]uuid.UUID, 0, len(refs))
			for _, ref := range refs {
				ids = append(ids, ref.ID)
				cursor = leadsrepo.Cursor{CreatedAt: ref.CreatedAt, ID: ref.ID}
			}

			pageCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			result, err := scorer.BulkScore(pageCtx, tenantID, ids)
			cancel()
			if err != nil {
				log.Error("bulk score page failed", "tenantId", tenantID, "error", err)
				failed += len(ids)
				continue
			}

			scored += result.Scored
			failed += result.Failed
			for _, failure := range result.Failures {
				log.Warn("lead scoring failed", "tenantId", tenantID, "leadId", failure.LeadID, "error", failure.Err)
			}

			log.Info("scored page", "tenantId", tenantID, "scored", result.Scored, "failed", result.Failed)
		}
	}

	log.Info("score backfill completed", "tenants", len(tenants), "scored", scored, "failed", failed)
}

// resolveTenants honors an optional TENANT_ID to limit the run to one tenant.
func resolveTenants(ctx context.Context, repo *leadsrepo.Repository) ([]uuid.UUID, error) {
	raw := strings.TrimSpace(os.Getenv("TENANT_ID"))
	if raw != "" {
		tenantID, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		return []uuid.UUID{tenantID}, nil
	}

	return repo.ListTenantIDs(ctx)
}
