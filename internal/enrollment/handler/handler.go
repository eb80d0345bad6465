package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"admissions_portal_backend/internal/enrollment/service"
	"admissions_portal_backend/internal/enrollment/transport"
	"admissions_portal_backend/internal/journeys/domain"
	"admissions_portal_backend/platform/httpkit"
	"admissions_portal_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Enroll)
	rg.POST("/bulk", h.BulkEnroll)
	rg.POST("/re-enroll-all", h.ReEnrollAll)

	rg.GET("/:enrollmentId", h.GetState)
	rg.GET("/:enrollmentId/log", h.GetTransitionLog)
	rg.POST("/:enrollmentId/advance", h.Advance)
	rg.POST("/:enrollmentId/exit", h.Exit)
	rg.POST("/:enrollmentId/approve", h.Approve)
	rg.PUT("/:enrollmentId/requirements/:requirementId", h.UpdateRequirement)
}

// actor returns the authenticated actor as an optional pointer. Most
// operations record it when present; manual overrides insist on it at the
// service layer.
func actor(c *gin.Context) *uuid.UUID {
	if id, ok := httpkit.ActorID(c); ok {
		return &id
	}
	return nil
}

func (h *Handler) Enroll(c *gin.Context) {
	var req transport.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	e, err := h.svc.Enroll(c.Request.Context(), tenantID, req.LeadID, req.JourneyKey, actor(c), req.Replace)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToEnrollmentResponse(e))
}

func (h *Handler) BulkEnroll(c *gin.Context) {
	var req transport.BulkEnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	result, err := h.svc.BulkEnroll(c.Request.Context(), tenantID, req.LeadIDs, req.JourneyKey, req.RemoveExisting, actor(c))
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.BulkEnrollResponse{
		Enrolled:        result.Enrolled,
		AlreadyEnrolled: result.AlreadyEnrolled,
		Failed:          result.Failed,
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, transport.BulkFailureResponse{LeadID: f.LeadID, Error: f.Err})
	}
	httpkit.OK(c, resp)
}

func (h *Handler) ReEnrollAll(c *gin.Context) {
	var req transport.ReEnrollAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	dryRun := true
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	result, err := h.svc.ReEnrollAll(c.Request.Context(), tenantID, req.JourneyKey, dryRun, actor(c), nil)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ReEnrollAllResponse{
		DryRun:           result.DryRun,
		TotalLeads:       result.TotalLeads,
		Exited:           result.Exited,
		Enrolled:         result.Enrolled,
		Routed:           result.Routed,
		SkippedNoRoute:   result.SkippedNoRoute,
		Failed:           result.Failed,
		AssignmentsReset: result.AssignmentsReset,
	})
}

func (h *Handler) GetState(c *gin.Context) {
	enrollmentID, err := uuid.Parse(c.Param("enrollmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	state, err := h.svc.GetState(c.Request.Context(), tenantID, enrollmentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToStateResponse(state))
}

func (h *Handler) GetTransitionLog(c *gin.Context) {
	enrollmentID, err := uuid.Parse(c.Param("enrollmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	entries, err := h.svc.ListTransitionLog(c.Request.Context(), tenantID, enrollmentID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := transport.ToTransitionLogResponse(entries)
	httpkit.OK(c, gin.H{"items": out, "total": len(out)})
}

func (h *Handler) Advance(c *gin.Context) {
	enrollmentID, err := uuid.Parse(c.Param("enrollmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	trigger := domain.TriggerType(req.Trigger)
	if !trigger.Valid() {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, "unknown trigger type")
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	e, err := h.svc.AdvanceStep(c.Request.Context(), tenantID, enrollmentID, req.TargetStage, trigger, actor(c), req.Note)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToEnrollmentResponse(e))
}

func (h *Handler) Exit(c *gin.Context) {
	enrollmentID, err := uuid.Parse(c.Param("enrollmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.ExitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	e, err := h.svc.Exit(c.Request.Context(), tenantID, enrollmentID, req.Reason, actor(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToEnrollmentResponse(e))
}

func (h *Handler) Approve(c *gin.Context) {
	enrollmentID, err := uuid.Parse(c.Param("enrollmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}
	actorID, ok := httpkit.ActorID(c)
	if !ok {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, "approval requires an actor")
		return
	}

	if err := h.svc.Approve(c.Request.Context(), tenantID, enrollmentID, actorID); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"approved": true})
}

func (h *Handler) UpdateRequirement(c *gin.Context) {
	enrollmentID, err := uuid.Parse(c.Param("enrollmentId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	requirementID, err := uuid.Parse(c.Param("requirementId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.UpdateRequirementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, err.Error())
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	status := domain.RequirementStatus(req.Status)
	err = h.svc.UpdateRequirement(c.Request.Context(), tenantID, enrollmentID, requirementID, status, req.Note, actor(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"updated": true})
}

// LeadEnrollments lists all enrollments for one lead, mounted under the
// leads route tree.
func (h *Handler) LeadEnrollments(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	enrollments, err := h.svc.ListByLead(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.EnrollmentResponse, 0, len(enrollments))
	for _, e := range enrollments {
		out = append(out, transport.ToEnrollmentResponse(e))
	}
	httpkit.OK(c, gin.H{"items": out, "total": len(out)})
}
