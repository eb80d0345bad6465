package transport

import (
	"time"

	"github.com/google/uuid"

	"admissions_portal_backend/internal/journeys/domain"
)

type PublishJourneyRequest struct {
	Key    string         `json:"key" validate:"required,min=2,max=100"`
	Name   string         `json:"name" validate:"required,min=2,max=200"`
	Stages []StageRequest `json:"stages" validate:"required,min=1,dive"`
}

type StageRequest struct {
	Index                    int                  `json:"index"`
	Name                     string               `json:"name" validate:"required"`
	Required                 bool                 `json:"required"`
	ParallelAllowed          bool                 `json:"parallelAllowed"`
	Completion               string               `json:"completion" validate:"required"`
	CompletionRequirementIDs []uuid.UUID          `json:"completionRequirementIds"`
	Timing                   TimingRequest        `json:"timing"`
	Requirements             []RequirementRequest `json:"requirements" validate:"dive"`
	ChannelRules             []ChannelRuleRequest `json:"channelRules" validate:"dive"`
}

type TimingRequest struct {
	ExpectedDays            float64 `json:"expectedDays" validate:"min=0"`
	StallThresholdDays      float64 `json:"stallThresholdDays" validate:"min=0"`
	EscalationThresholdDays float64 `json:"escalationThresholdDays" validate:"min=0"`
	BusinessHoursOnly       bool    `json:"businessHoursOnly"`
}

type RequirementRequest struct {
	ID           *uuid.UUID `json:"id"`
	Type         string     `json:"type" validate:"required"`
	Name         string     `json:"name" validate:"required"`
	Mandatory    bool       `json:"mandatory"`
	ReminderDays []int      `json:"reminderDays"`
}

type ChannelRuleRequest struct {
	Channel      string              `json:"channel" validate:"required"`
	Allowed      bool                `json:"allowed"`
	MinPriority  int                 `json:"minPriority" validate:"min=0,max=10"`
	Restrictions RestrictionsRequest `json:"restrictions"`
	Caps         CapsRequest         `json:"caps"`
}

type RestrictionsRequest struct {
	BusinessHoursOnly bool              `json:"businessHoursOnly"`
	AllowedDays       []int             `json:"allowedDays" validate:"dive,min=0,max=6"`
	Blackouts         []BlackoutRequest `json:"blackouts" validate:"dive"`
}

type BlackoutRequest struct {
	StartHour int `json:"startHour" validate:"min=0,max=23"`
	EndHour   int `json:"endHour" validate:"min=1,max=24"`
}

type CapsRequest struct {
	MaxPerDay       int     `json:"maxPerDay" validate:"min=0"`
	MaxPerWeek      int     `json:"maxPerWeek" validate:"min=0"`
	MinHoursBetween float64 `json:"minHoursBetween" validate:"min=0"`
}

type JourneyResponse struct {
	ID        uuid.UUID       `json:"id"`
	Key       string          `json:"key"`
	Name      string          `json:"name"`
	Version   int             `json:"version"`
	Active    bool            `json:"active"`
	Stages    []StageResponse `json:"stages"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type StageResponse struct {
	Index                    int                   `json:"index"`
	Name                     string                `json:"name"`
	Required                 bool                  `json:"required"`
	ParallelAllowed          bool                  `json:"parallelAllowed"`
	Completion               string                `json:"completion"`
	CompletionRequirementIDs []uuid.UUID           `json:"completionRequirementIds,omitempty"`
	Timing                   TimingRequest         `json:"timing"`
	Requirements             []RequirementResponse `json:"requirements,omitempty"`
	ChannelRules             []ChannelRuleRequest  `json:"channelRules,omitempty"`
}

type RequirementResponse struct {
	ID           uuid.UUID `json:"id"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Mandatory    bool      `json:"mandatory"`
	ReminderDays []int     `json:"reminderDays,omitempty"`
}

// ToDomain converts the publish request into a domain journey. Requirement
// ids are generated when the client did not supply them.
func (r PublishJourneyRequest) ToDomain(tenantID uuid.UUID) domain.Journey {
	journey := domain.Journey{
		TenantID: tenantID,
		Key:      r.Key,
		Name:     r.Name,
		Stages:   make([]domain.Stage, 0, len(r.Stages)),
	}

	for _, sr := range r.Stages {
		stage := domain.Stage{
			Index:                    sr.Index,
			Name:                     sr.Name,
			Required:                 sr.Required,
			ParallelAllowed:          sr.ParallelAllowed,
			Completion:               domain.CompletionPolicy(sr.Completion),
			CompletionRequirementIDs: sr.CompletionRequirementIDs,
			Timing: domain.TimingConfig{
				ExpectedDays:            sr.Timing.ExpectedDays,
				StallThresholdDays:      sr.Timing.StallThresholdDays,
				EscalationThresholdDays: sr.Timing.EscalationThresholdDays,
				BusinessHoursOnly:       sr.Timing.BusinessHoursOnly,
			},
		}
		for _, rr := range sr.Requirements {
			id := uuid.New()
			if rr.ID != nil {
				id = *rr.ID
			}
			stage.Requirements = append(stage.Requirements, domain.Requirement{
				ID:           id,
				Type:         domain.RequirementType(rr.Type),
				Name:         rr.Name,
				Mandatory:    rr.Mandatory,
				ReminderDays: rr.ReminderDays,
			})
		}
		for _, cr := range sr.ChannelRules {
			stage.ChannelRules = append(stage.ChannelRules, cr.toDomain())
		}
		journey.Stages = append(journey.Stages, stage)
	}

	return journey
}

func (r ChannelRuleRequest) toDomain() domain.ChannelRule {
	rule := domain.ChannelRule{
		Channel:     domain.ChannelType(r.Channel),
		Allowed:     r.Allowed,
		MinPriority: r.MinPriority,
		Restrictions: domain.TimeRestrictions{
			BusinessHoursOnly: r.Restrictions.BusinessHoursOnly,
		},
		Caps: domain.FrequencyCaps{
			MaxPerDay:       r.Caps.MaxPerDay,
			MaxPerWeek:      r.Caps.MaxPerWeek,
			MinHoursBetween: r.Caps.MinHoursBetween,
		},
	}
	for _, day := range r.Restrictions.AllowedDays {
		rule.Restrictions.AllowedDays = append(rule.Restrictions.AllowedDays, time.Weekday(day))
	}
	for _, b := range r.Restrictions.Blackouts {
		rule.Restrictions.Blackouts = append(rule.Restrictions.Blackouts, domain.BlackoutWindow{
			StartHour: b.StartHour,
			EndHour:   b.EndHour,
		})
	}
	return rule
}

func ToJourneyResponse(j domain.Journey) JourneyResponse {
	resp := JourneyResponse{
		ID:        j.ID,
		Key:       j.Key,
		Name:      j.Name,
		Version:   j.Version,
		Active:    j.Active,
		Stages:    make([]StageResponse, 0, len(j.Stages)),
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}

	for _, stage := range j.Stages {
		sr := StageResponse{
			Index:                    stage.Index,
			Name:                     stage.Name,
			Required:                 stage.Required,
			ParallelAllowed:          stage.ParallelAllowed,
			Completion:               string(stage.Completion),
			CompletionRequirementIDs: stage.CompletionRequirementIDs,
			Timing: TimingRequest{
				ExpectedDays:            stage.Timing.ExpectedDays,
				StallThresholdDays:      stage.Timing.StallThresholdDays,
				EscalationThresholdDays: stage.Timing.EscalationThresholdDays,
				BusinessHoursOnly:       stage.Timing.BusinessHoursOnly,
			},
		}
		for _, req := range stage.Requirements {
			sr.Requirements = append(sr.Requirements, RequirementResponse{
				ID:           req.ID,
				Type:         string(req.Type),
				Name:         req.Name,
				Mandatory:    req.Mandatory,
				ReminderDays: req.ReminderDays,
			})
		}
		for _, rule := range stage.ChannelRules {
			sr.ChannelRules = append(sr.ChannelRules, fromDomainRule(rule))
		}
		resp.Stages = append(resp.Stages, sr)
	}

	return resp
}

func fromDomainRule(rule domain.ChannelRule) ChannelRuleRequest {
	out := ChannelRuleRequest{
		Channel:     string(rule.Channel),
		Allowed:     rule.Allowed,
		MinPriority: rule.MinPriority,
		Restrictions: RestrictionsRequest{
			BusinessHoursOnly: rule.Restrictions.BusinessHoursOnly,
		},
		Caps: CapsRequest{
			MaxPerDay:       rule.Caps.MaxPerDay,
			MaxPerWeek:      rule.Caps.MaxPerWeek,
			MinHoursBetween: rule.Caps.MinHoursBetween,
		},
	}
	for _, day := range rule.Restrictions.AllowedDays {
		out.Restrictions.AllowedDays = append(out.Restrictions.AllowedDays, int(day))
	}
	for _, b := range rule.Restrictions.Blackouts {
		out.Restrictions.Blackouts = append(out.Restrictions.Blackouts, BlackoutRequest{
			StartHour: b.StartHour,
			EndHour:   b.EndHour,
		})
	}
	return out
}
