package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"admissions_portal_backend/internal/journeys/domain"
	"admissions_portal_backend/internal/policy/service"
	"admissions_portal_backend/internal/policy/transport"
	"admissions_portal_backend/platform/httpkit"
	"admissions_portal_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/preview", h.Preview)
}

func (h *Handler) Preview(c *gin.Context) {
	var req transport.PreviewRequest
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

	preview, err := h.svc.PreviewDecision(c.Request.Context(), tenantID, req.EnrollmentID, domain.ChannelType(req.Channel), req.Priority)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToPreviewResponse(preview))
}
