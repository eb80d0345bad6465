// Package adapters bridges module boundaries: thin translations between one
// module's exposed service and another module's consumer-side port.
package adapters

import (
	"context"

	"github.com/google/uuid"

	enrollsvc "admissions_portal_backend/internal/enrollment/service"
	routingsvc "admissions_portal_backend/internal/routing/service"
)

// AdvisorRouter adapts the routing resolver to the enrollment module's
// routing port.
type AdvisorRouter struct {
	routing *routingsvc.Service
}

func NewAdvisorRouter(routing *routingsvc.Service) *AdvisorRouter {
	return &AdvisorRouter{routing: routing}
}

func (a *AdvisorRouter) Route(ctx context.Context, tenantID, leadID uuid.UUID) (enrollsvc.RouteResult, error) {
	res, err := a.routing.Route(ctx, tenantID, leadID)
	if err != nil {
		return enrollsvc.RouteResult{}, err
	}
	return enrollsvc.RouteResult{
		AdvisorID: res.AdvisorID,
		RuleID:    res.RuleID,
		Matched:   res.Matched,
	}, nil
}

var _ enrollsvc.AdvisorRouter = (*AdvisorRouter)(nil)
