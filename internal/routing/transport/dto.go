package transport

import (
	"time"

	"github.com/google/uuid"

	"admissions_portal_backend/internal/routing/repository"
	"admissions_portal_backend/internal/routing/service"
)

type RuleRequest struct {
	Name      string    `json:"name" validate:"required,max=200"`
	Priority  int       `json:"priority" validate:"min=0"`
	Source    *string   `json:"source" validate:"omitempty,max=100"`
	Program   *string   `json:"program" validate:"omitempty,max=200"`
	MinScore  *float64  `json:"minScore" validate:"omitempty,min=0,max=100"`
	AdvisorID uuid.UUID `json:"advisorId" validate:"required"`
	Active    *bool     `json:"active"`
}

type RuleResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Priority  int       `json:"priority"`
	Source    *string   `json:"source,omitempty"`
	Program   *string   `json:"program,omitempty"`
	MinScore  *float64  `json:"minScore,omitempty"`
	AdvisorID uuid.UUID `json:"advisorId"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PreviewResponse struct {
	Matched   bool       `json:"matched"`
	AdvisorID *uuid.UUID `json:"advisorId,omitempty"`
	RuleID    *uuid.UUID `json:"ruleId,omitempty"`
	RuleName  string     `json:"ruleName,omitempty"`
}

func (r RuleRequest) ToRule(tenantID uuid.UUID) repository.Rule {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return repository.Rule{
		TenantID:  tenantID,
		Name:      r.Name,
		Priority:  r.Priority,
		Source:    r.Source,
		Program:   r.Program,
		MinScore:  r.MinScore,
		AdvisorID: r.AdvisorID,
		Active:    active,
	}
}

func ToRuleResponse(rule repository.Rule) RuleResponse {
	return RuleResponse{
		ID:        rule.ID,
		Name:      rule.Name,
		Priority:  rule.Priority,
		Source:    rule.Source,
		Program:   rule.Program,
		MinScore:  rule.MinScore,
		AdvisorID: rule.AdvisorID,
		Active:    rule.Active,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	}
}

func ToPreviewResponse(res service.Resolution) PreviewResponse {
	if !res.Matched {
		return PreviewResponse{}
	}
	advisorID := res.AdvisorID
	ruleID := res.RuleID
	return PreviewResponse{
		Matched:   true,
		AdvisorID: &advisorID,
		RuleID:    &ruleID,
		RuleName:  res.RuleName,
	}
}
