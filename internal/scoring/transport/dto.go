package transport

import (
	"time"

	"github.com/google/uuid"

	"admissions_portal_backend/internal/scoring/repository"
)

type CreateModelRequest struct {
	Name    string             `json:"name" validate:"required,min=2,max=100"`
	Weights map[string]float64 `json:"weights" validate:"required,min=1"`
}

type ModelResponse struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Version     int                `json:"version"`
	Weights     map[string]float64 `json:"weights"`
	Active      bool               `json:"active"`
	CreatedAt   time.Time          `json:"createdAt"`
	ActivatedAt *time.Time         `json:"activatedAt,omitempty"`
}

type BreakdownEntry struct {
	Feature string  `json:"feature"`
	Label   string  `json:"label"`
	Weight  float64 `json:"weight"`
	Value   float64 `json:"value"`
	Points  float64 `json:"points"`
	Impact  string  `json:"impact"`
}

type ScoreResponse struct {
	LeadID       uuid.UUID        `json:"leadId"`
	Score        int              `json:"score"`
	ModelID      *uuid.UUID       `json:"modelId,omitempty"`
	ModelVersion int              `json:"modelVersion"`
	Breakdown    []BreakdownEntry `json:"breakdown"`
	ComputedAt   time.Time        `json:"computedAt"`
	Neutral      bool             `json:"neutral,omitempty"`
}

type HistoryEntryResponse struct {
	Score         int       `json:"score"`
	PreviousScore *int      `json:"previousScore,omitempty"`
	ModelVersion  int       `json:"modelVersion"`
	ComputedAt    time.Time `json:"computedAt"`
}

type BulkComputeRequest struct {
	LeadIDs []uuid.UUID `json:"leadIds" validate:"required,min=1,max=1000"`
}

type BulkFailureResponse struct {
	LeadID uuid.UUID `json:"leadId"`
	Error  string    `json:"error"`
}

type BulkComputeResponse struct {
	Scored   int                   `json:"scored"`
	Failed   int                   `json:"failed"`
	Failures []BulkFailureResponse `json:"failures,omitempty"`
}

func ToModelResponse(m repository.Model) ModelResponse {
	return ModelResponse{
		ID:          m.ID,
		Name:        m.Name,
		Version:     m.Version,
		Weights:     m.Weights,
		Active:      m.Active,
		CreatedAt:   m.CreatedAt,
		ActivatedAt: m.ActivatedAt,
	}
}

func ToBreakdown(entries []repository.BreakdownEntry) []BreakdownEntry {
	out := make([]BreakdownEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, BreakdownEntry(e))
	}
	return out
}
