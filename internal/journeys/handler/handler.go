package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"admissions_portal_backend/internal/journeys/service"
	"admissions_portal_backend/internal/journeys/transport"
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
	rg.POST("", h.Publish)
	rg.GET("", h.List)
	rg.GET("/:journeyId", h.Get)
	rg.POST("/:journeyId/activate", h.Activate)
	rg.POST("/seed", h.ApplySeeds)
}

func (h *Handler) Publish(c *gin.Context) {
	var req transport.PublishJourneyRequest
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

	journey, err := h.svc.Publish(c.Request.Context(), req.ToDomain(tenantID))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToJourneyResponse(journey))
}

func (h *Handler) List(c *gin.Context) {
	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	journeys, err := h.svc.List(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.JourneyResponse, 0, len(journeys))
	for _, j := range journeys {
		out = append(out, transport.ToJourneyResponse(j))
	}
	httpkit.OK(c, gin.H{"items": out, "total": len(out)})
}

func (h *Handler) Get(c *gin.Context) {
	journeyID, err := uuid.Parse(c.Param("journeyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	journey, err := h.svc.Get(c.Request.Context(), tenantID, journeyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToJourneyResponse(journey))
}

func (h *Handler) Activate(c *gin.Context) {
	journeyID, err := uuid.Parse(c.Param("journeyId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}

	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	journey, err := h.svc.Activate(c.Request.Context(), tenantID, journeyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToJourneyResponse(journey))
}

func (h *Handler) ApplySeeds(c *gin.Context) {
	tenantID, ok := httpkit.MustTenantID(c)
	if !ok {
		return
	}

	applied, err := h.svc.ApplySeeds(c.Request.Context(), tenantID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"applied": applied})
}
