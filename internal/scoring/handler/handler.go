package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"admissions_portal_backend/internal/scoring/service"
	"admissions_portal_backend/internal/scoring/transport"
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
	rg.POST("/models", h.CreateModel)
	rg.GET("/models", h.ListModels)
	rg.POST("/models/:modelId/activate", h.ActivateModel)

	rg.POST("/leads/:leadId/compute", h.ComputeScore)
	rg.GET("/leads/:leadId", h.GetScore)
	rg.GET("/leads/:leadId/history", h.GetHistory)
	rg.POST("/leads/bulk-compute", h.BulkCompute)
}

func (h *Handler) CreateModel(c *gin.Context) {
	var req transport.CreateModelRequest
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

	model, err := h.svc.CreateModel(c.Request.Context(), tenantID, req.Name, req.Weights)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToModelResponse(model))
}

func (h *Handler) ListModels(c *gin.Context) {
	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	models, err := h.svc.ListModels(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.ModelResponse, 0, len(models))
	for _, m := range models {
		out = append(out, transport.ToModelResponse(m))
	}
	httpkit.OK(c, gin.H{"items": out, "total": len(out)})
}

func (h *Handler) ActivateModel(c *gin.Context) {
	modelID, err := uuid.Parse(c.Param("modelId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	model, err := h.svc.ActivateModel(c.Request.Context(), tenantID, modelID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToModelResponse(model))
}

func (h *Handler) ComputeScore(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	computed, err := h.svc.ComputeScore(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.ScoreResponse{
		LeadID:       computed.LeadID,
		Score:        computed.Score,
		ModelVersion: computed.ModelVersion,
		Breakdown:    transport.ToBreakdown(computed.Breakdown),
		ComputedAt:   computed.ComputedAt,
		Neutral:      computed.Neutral,
	}
	if !computed.Neutral {
		resp.ModelID = &computed.ModelID
	}
	httpkit.OK(c, resp)
}

func (h *Handler) GetScore(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	score, err := h.svc.GetScore(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	modelID := score.ModelID
	httpkit.OK(c, transport.ScoreResponse{
		LeadID:       score.LeadID,
		Score:        score.Score,
		ModelID:      &modelID,
		ModelVersion: score.ModelVersion,
		Breakdown:    transport.ToBreakdown(score.Breakdown),
		ComputedAt:   score.ComputedAt,
	})
}

func (h *Handler) GetHistory(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	entries, err := h.svc.GetHistory(c.Request.Context(), tenantID, leadID, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.HistoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, transport.HistoryEntryResponse{
			Score:         e.Score,
			PreviousScore: e.PreviousScore,
			ModelVersion:  e.ModelVersion,
			ComputedAt:    e.ComputedAt,
		})
	}
	httpkit.OK(c, gin.H{"items": out, "total": len(out)})
}

func (h *Handler) BulkCompute(c *gin.Context) {
	var req transport.BulkComputeRequest
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

	result, err := h.svc.BulkScore(c.Request.Context(), tenantID, req.LeadIDs)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.BulkComputeResponse{Scored: result.Scored, Failed: result.Failed}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, transport.BulkFailureResponse{LeadID: f.LeadID, Error: f.Err})
	}
	httpkit.OK(c, resp)
}
