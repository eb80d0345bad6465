package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"admissions_portal_backend/internal/routing/service"
	"admissions_portal_backend/internal/routing/transport"
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
	rg.POST("/rules", h.CreateRule)
	rg.GET("/rules", h.ListRules)
	rg.GET("/rules/:ruleId", h.GetRule)
	rg.PUT("/rules/:ruleId", h.UpdateRule)
	rg.DELETE("/rules/:ruleId", h.DeleteRule)

	rg.GET("/preview/:leadId", h.Preview)
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req transport.RuleRequest
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

	rule, err := h.svc.CreateRule(c.Request.Context(), req.ToRule(tenantID))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToRuleResponse(rule))
}

func (h *Handler) ListRules(c *gin.Context) {
	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	rules, err := h.svc.ListRules(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.RuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, transport.ToRuleResponse(rule))
	}
	httpkit.OK(c, gin.H{"items": out, "total": len(out)})
}

func (h *Handler) GetRule(c *gin.Context) {
	ruleID, err := uuid.Parse(c.Param("ruleId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	rule, err := h.svc.GetRule(c.Request.Context(), tenantID, ruleID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRuleResponse(rule))
}

func (h *Handler) UpdateRule(c *gin.Context) {
	ruleID, err := uuid.Parse(c.Param("ruleId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	var req transport.RuleRequest
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

	rule := req.ToRule(tenantID)
	rule.ID = ruleID
	updated, err := h.svc.UpdateRule(c.Request.Context(), rule)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToRuleResponse(updated))
}

func (h *Handler) DeleteRule(c *gin.Context) {
	ruleID, err := uuid.Parse(c.Param("ruleId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	if err := h.svc.DeleteRule(c.Request.Context(), tenantID, ruleID); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Preview resolves routing for a lead without assigning anyone.
func (h *Handler) Preview(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	res, err := h.svc.Route(c.Request.Context(), tenantID, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPreviewResponse(res))
}
