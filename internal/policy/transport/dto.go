package transport

import (
	"time"

	"github.com/google/uuid"

	"admissions_portal_backend/internal/policy/service"
)

type PreviewRequest struct {
	EnrollmentID uuid.UUID `json:"enrollmentId" validate:"required"`
	Channel      string    `json:"channel" validate:"required,oneof=email sms call in_person video portal_message"`
	Priority     int       `json:"priority" validate:"min=0"`
}

type PreviewResponse struct {
	Allowed      bool       `json:"allowed"`
	Reason       string     `json:"reason,omitempty"`
	StageIndex   int        `json:"stageIndex"`
	StageName    string     `json:"stageName"`
	SentToday    int        `json:"sentToday"`
	SentThisWeek int        `json:"sentThisWeek"`
	LastSentAt   *time.Time `json:"lastSentAt,omitempty"`
	EvaluatedAt  time.Time  `json:"evaluatedAt"`
}

func ToPreviewResponse(p service.Preview) PreviewResponse {
	return PreviewResponse{
		Allowed:      p.Decision.Allowed,
		Reason:       string(p.Decision.Reason),
		StageIndex:   p.StageIndex,
		StageName:    p.StageName,
		SentToday:    p.Usage.SentToday,
		SentThisWeek: p.Usage.SentThisWeek,
		LastSentAt:   p.Usage.LastSentAt,
		EvaluatedAt:  p.EvaluatedAt,
	}
}
