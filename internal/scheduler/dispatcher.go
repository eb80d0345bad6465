package scheduler

import (
	"context"
	"time"

	leadsrepo "admissions_portal_backend/internal/leads/repository"
	"admissions_portal_backend/platform/logger"
)

// Dispatcher periodically enqueues per-tenant lifecycle tasks: timing sweeps
// on a short interval and full rescores on a long one.
type Dispatcher struct {
	client          *Client
	tenants         leadsrepo.TenantLister
	log             *logger.Logger
	sweepInterval   time.Duration
	rescoreInterval time.Duration
}

func NewDispatcher(client *Client, tenants leadsrepo.TenantLister, log *logger.Logger, sweepInterval, rescoreInterval time.Duration) *Dispatcher {
	return &Dispatcher{
		client:          client,
		tenants:         tenants,
		log:             log,
		sweepInterval:   sweepInterval,
		rescoreInterval: rescoreInterval,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.tenants == nil {
		return
	}

	sweep := time.NewTicker(d.sweepInterval)
	defer sweep.Stop()
	rescore := time.NewTicker(d.rescoreInterval)
	defer rescore.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			d.fanOut(ctx, "sweep", func(ctx context.Context, tenantID string) error {
				return d.client.EnqueueTimingSweep(ctx, TimingSweepPayload{TenantID: tenantID})
			})
		case <-rescore.C:
			d.fanOut(ctx, "rescore", func(ctx context.Context, tenantID string) error {
				return d.client.EnqueueBulkRescore(ctx, BulkRescorePayload{TenantID: tenantID})
			})
		}
	}
}

func (d *Dispatcher) fanOut(ctx context.Context, kind string, enqueue func(context.Context, string) error) {
	tenants, err := d.tenants.ListTenantIDs(ctx)
	if err != nil {
		d.log.Warn("tenant listing failed", "task", kind, "error", err)
		return
	}

	for _, tenantID := range tenants {
		if err := enqueue(ctx, tenantID.String()); err != nil {
			d.log.Warn("task enqueue failed", "task", kind, "tenant_id", tenantID, "error", err)
		}
	}
	d.log.Info("tasks enqueued", "task", kind, "tenants", len(tenants))
}
