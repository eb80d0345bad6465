package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	enrollsvc "admissions_portal_backend/internal/enrollment/service"
	leadsrepo "admissions_portal_backend/internal/leads/repository"
	scoringsvc "admissions_portal_backend/internal/scoring/service"
	"admissions_portal_backend/platform/config"
	"admissions_portal_backend/platform/logger"
)

const rescorePageSize = 200

// TimingSweeper runs one stall/escalation sweep for a tenant.
type TimingSweeper interface {
	SweepTiming(ctx context.Context, tenantID uuid.UUID) (enrollsvc.SweepResult, error)
}

// LeadScorer recomputes scores for a batch of leads.
type LeadScorer interface {
	BulkScore(ctx context.Context, tenantID uuid.UUID, leadIDs []uuid.UUID) (scoringsvc.BulkResult, error)
}

type Worker struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	sweeper TimingSweeper
	scorer  LeadScorer
	leads   leadsrepo.LeadLister
	log     *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweeper TimingSweeper, scorer LeadScorer, leads leadsrepo.LeadLister, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:  server,
		mux:     mux,
		sweeper: sweeper,
		scorer:  scorer,
		leads:   leads,
		log:     log,
	}

	mux.HandleFunc(TaskTimingSweep, w.handleTimingSweep)
	mux.HandleFunc(TaskBulkRescore, w.handleBulkRescore)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleTimingSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTimingSweepPayload(task)
	if err != nil {
		return err
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	result, err := w.sweeper.SweepTiming(ctx, tenantID)
	if err != nil {
		return err
	}

	w.log.Info("timing sweep finished",
		"tenant_id", tenantID,
		"scanned", result.Scanned,
		"stalled", result.Stalled,
		"escalated", result.Escalated,
		"auto_advanced", result.AutoAdvance,
	)
	return nil
}

func (w *Worker) handleBulkRescore(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseBulkRescorePayload(task)
	if err != nil {
		return err
	}
	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return err
	}

	var scored, failed int
	cursor := leadsrepo.Cursor{}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := w.leads.ListLeadIDs(ctx, tenantID, cursor, rescorePageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		ids := make([]uuid.UUID, 0, len(page))
		for _, ref := range page {
			ids = append(ids, ref.ID)
		}
		result, err := w.scorer.BulkScore(ctx, tenantID, ids)
		if err != nil {
			return err
		}
		scored += result.Scored
		failed += result.Failed

		last := page[len(page)-1]
		cursor = leadsrepo.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}

	w.log.Info("bulk rescore finished", "tenant_id", tenantID, "scored", scored, "failed", failed)
	return nil
}
