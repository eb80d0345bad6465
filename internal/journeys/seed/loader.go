// Package seed loads journey definitions from YAML so a fresh tenant can
// start from a curated default instead of authoring stages by hand.
package seed

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"admissions_portal_backend/internal/journeys/domain"
)

type file struct {
	Journeys []journeyYAML `yaml:"journeys"`
}

type journeyYAML struct {
	Key    string      `yaml:"key"`
	Name   string      `yaml:"name"`
	Stages []stageYAML `yaml:"stages"`
}

type stageYAML struct {
	Index                  int               `yaml:"index"`
	Name                   string            `yaml:"name"`
	Required               bool              `yaml:"required"`
	ParallelAllowed        bool              `yaml:"parallel_allowed"`
	Completion             string            `yaml:"completion"`
	CompletionRequirements []string          `yaml:"completion_requirements"`
	Timing                 timingYAML        `yaml:"timing"`
	Requirements           []requirementYAML `yaml:"requirements"`
	ChannelRules           []channelRuleYAML `yaml:"channel_rules"`
}

type timingYAML struct {
	ExpectedDays            float64 `yaml:"expected_days"`
	StallThresholdDays      float64 `yaml:"stall_threshold_days"`
	EscalationThresholdDays float64 `yaml:"escalation_threshold_days"`
	BusinessHoursOnly       bool    `yaml:"business_hours_only"`
}

type requirementYAML struct {
	Type         string `yaml:"type"`
	Name         string `yaml:"name"`
	Mandatory    bool   `yaml:"mandatory"`
	ReminderDays []int  `yaml:"reminder_days"`
}

type channelRuleYAML struct {
	Channel      string           `yaml:"channel"`
	Allowed      bool             `yaml:"allowed"`
	MinPriority  int              `yaml:"min_priority"`
	Restrictions restrictionsYAML `yaml:"restrictions"`
	Caps         capsYAML         `yaml:"caps"`
}

type restrictionsYAML struct {
	BusinessHoursOnly bool           `yaml:"business_hours_only"`
	AllowedDays       []string       `yaml:"allowed_days"`
	Blackouts         []blackoutYAML `yaml:"blackouts"`
}

type blackoutYAML struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

type capsYAML struct {
	MaxPerDay       int     `yaml:"max_per_day"`
	MaxPerWeek      int     `yaml:"max_per_week"`
	MinHoursBetween float64 `yaml:"min_hours_between"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Load parses the seed file and returns validated journey templates. The
// returned journeys carry no tenant or version; callers publish them per
// tenant.
func Load(path string) ([]domain.Journey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(raw)
}

// Parse converts seed YAML into domain journeys.
func Parse(raw []byte) ([]domain.Journey, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse seed yaml: %w", err)
	}

	journeys := make([]domain.Journey, 0, len(f.Journeys))
	for _, jy := range f.Journeys {
		journey, err := convertJourney(jy)
		if err != nil {
			return nil, err
		}
		if err := journey.Validate(); err != nil {
			return nil, fmt.Errorf("seed journey invalid: %w", err)
		}
		journeys = append(journeys, journey)
	}
	return journeys, nil
}

func convertJourney(jy journeyYAML) (domain.Journey, error) {
	journey := domain.Journey{
		Key:    jy.Key,
		Name:   jy.Name,
		Stages: make([]domain.Stage, 0, len(jy.Stages)),
	}

	for _, sy := range jy.Stages {
		stage, err := convertStage(jy.Key, sy)
		if err != nil {
			return domain.Journey{}, err
		}
		journey.Stages = append(journey.Stages, stage)
	}
	return journey, nil
}

func convertStage(journeyKey string, sy stageYAML) (domain.Stage, error) {
	stage := domain.Stage{
		Index:           sy.Index,
		Name:            sy.Name,
		Required:        sy.Required,
		ParallelAllowed: sy.ParallelAllowed,
		Completion:      domain.CompletionPolicy(sy.Completion),
		Timing: domain.TimingConfig{
			ExpectedDays:            sy.Timing.ExpectedDays,
			StallThresholdDays:      sy.Timing.StallThresholdDays,
			EscalationThresholdDays: sy.Timing.EscalationThresholdDays,
			BusinessHoursOnly:       sy.Timing.BusinessHoursOnly,
		},
	}

	// Requirement ids are generated here; the completion subset references
	// requirements by name in YAML and is resolved to the generated ids.
	byName := make(map[string]uuid.UUID, len(sy.Requirements))
	for _, ry := range sy.Requirements {
		req := domain.Requirement{
			ID:           uuid.New(),
			Type:         domain.RequirementType(ry.Type),
			Name:         ry.Name,
			Mandatory:    ry.Mandatory,
			ReminderDays: ry.ReminderDays,
		}
		if _, dup := byName[ry.Name]; dup {
			return domain.Stage{}, fmt.Errorf("journey %q stage %d: duplicate requirement name %q", journeyKey, sy.Index, ry.Name)
		}
		byName[ry.Name] = req.ID
		stage.Requirements = append(stage.Requirements, req)
	}

	for _, name := range sy.CompletionRequirements {
		id, ok := byName[name]
		if !ok {
			return domain.Stage{}, fmt.Errorf("journey %q stage %d: completion references unknown requirement %q", journeyKey, sy.Index, name)
		}
		stage.CompletionRequirementIDs = append(stage.CompletionRequirementIDs, id)
	}

	for _, cy := range sy.ChannelRules {
		rule, err := convertChannelRule(journeyKey, sy.Index, cy)
		if err != nil {
			return domain.Stage{}, err
		}
		stage.ChannelRules = append(stage.ChannelRules, rule)
	}

	return stage, nil
}

func convertChannelRule(journeyKey string, stageIndex int, cy channelRuleYAML) (domain.ChannelRule, error) {
	rule := domain.ChannelRule{
		Channel:     domain.ChannelType(cy.Channel),
		Allowed:     cy.Allowed,
		MinPriority: cy.MinPriority,
		Restrictions: domain.TimeRestrictions{
			BusinessHoursOnly: cy.Restrictions.BusinessHoursOnly,
		},
		Caps: domain.FrequencyCaps{
			MaxPerDay:       cy.Caps.MaxPerDay,
			MaxPerWeek:      cy.Caps.MaxPerWeek,
			MinHoursBetween: cy.Caps.MinHoursBetween,
		},
	}

	for _, day := range cy.Restrictions.AllowedDays {
		weekday, ok := weekdays[strings.ToLower(day)]
		if !ok {
			return domain.ChannelRule{}, fmt.Errorf("journey %q stage %d: unknown weekday %q", journeyKey, stageIndex, day)
		}
		rule.Restrictions.AllowedDays = append(rule.Restrictions.AllowedDays, weekday)
	}

	for _, by := range cy.Restrictions.Blackouts {
		rule.Restrictions.Blackouts = append(rule.Restrictions.Blackouts, domain.BlackoutWindow{
			StartHour: by.StartHour,
			EndHour:   by.EndHour,
		})
	}

	return rule, nil
}
