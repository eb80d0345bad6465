// Package domain provides core business types for journey definitions.
// Stage, requirement, and channel configuration are tagged variants rather
// than loose JSON so the stage engine can match on them exhaustively.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RequirementType identifies what kind of evidence satisfies a requirement.
type RequirementType string

const (
	RequirementDocument     RequirementType = "document"
	RequirementTest         RequirementType = "test"
	RequirementInterview    RequirementType = "interview"
	RequirementPayment      RequirementType = "payment"
	RequirementForm         RequirementType = "form"
	RequirementVerification RequirementType = "verification"
	RequirementCustom       RequirementType = "custom"
)

var knownRequirementTypes = map[RequirementType]struct{}{
	RequirementDocument:     {},
	RequirementTest:         {},
	RequirementInterview:    {},
	RequirementPayment:      {},
	RequirementForm:         {},
	RequirementVerification: {},
	RequirementCustom:       {},
}

// Valid reports whether t is a known requirement type.
func (t RequirementType) Valid() bool {
	_, ok := knownRequirementTypes[t]
	return ok
}

// ChannelType identifies a communication medium.
type ChannelType string

const (
	ChannelEmail         ChannelType = "email"
	ChannelSMS           ChannelType = "sms"
	ChannelCall          ChannelType = "call"
	ChannelInPerson      ChannelType = "in_person"
	ChannelVideo         ChannelType = "video"
	ChannelPortalMessage ChannelType = "portal_message"
)

var knownChannelTypes = map[ChannelType]struct{}{
	ChannelEmail:         {},
	ChannelSMS:           {},
	ChannelCall:          {},
	ChannelInPerson:      {},
	ChannelVideo:         {},
	ChannelPortalMessage: {},
}

// Valid reports whether c is a known channel type.
func (c ChannelType) Valid() bool {
	_, ok := knownChannelTypes[c]
	return ok
}

// TriggerType identifies what caused a stage transition.
type TriggerType string

const (
	TriggerManual                   TriggerType = "manual"
	TriggerDocumentApproved         TriggerType = "document_approved"
	TriggerPaymentReceived          TriggerType = "payment_received"
	TriggerAllRequirementsCompleted TriggerType = "all_requirements_completed"
	TriggerSystem                   TriggerType = "system"
)

var knownTriggerTypes = map[TriggerType]struct{}{
	TriggerManual:                   {},
	TriggerDocumentApproved:         {},
	TriggerPaymentReceived:          {},
	TriggerAllRequirementsCompleted: {},
	TriggerSystem:                   {},
}

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	_, ok := knownTriggerTypes[t]
	return ok
}

// CompletionPolicy controls how a stage decides it is complete.
type CompletionPolicy string

const (
	// CompletionAllRequirements requires every mandatory requirement to be satisfied.
	CompletionAllRequirements CompletionPolicy = "all_requirements"
	// CompletionSpecificRequirements requires only the listed subset.
	CompletionSpecificRequirements CompletionPolicy = "specific_requirements"
	// CompletionApprovalRequired additionally requires a manual approval
	// action regardless of requirement completion.
	CompletionApprovalRequired CompletionPolicy = "approval_required"
	// CompletionAutoAdvance permits automatic advancement once completion is detected.
	CompletionAutoAdvance CompletionPolicy = "auto_advance"
)

var knownCompletionPolicies = map[CompletionPolicy]struct{}{
	CompletionAllRequirements:      {},
	CompletionSpecificRequirements: {},
	CompletionApprovalRequired:     {},
	CompletionAutoAdvance:          {},
}

// Valid reports whether p is a known completion policy.
func (p CompletionPolicy) Valid() bool {
	_, ok := knownCompletionPolicies[p]
	return ok
}

// RequirementStatus is the verification state of a requirement on one enrollment.
type RequirementStatus string

const (
	RequirementPending   RequirementStatus = "pending"
	RequirementSubmitted RequirementStatus = "submitted"
	RequirementApproved  RequirementStatus = "approved"
	RequirementRejected  RequirementStatus = "rejected"
	RequirementWaived    RequirementStatus = "waived"
)

// Satisfied reports whether the status counts as a success state for
// completion criteria.
func (s RequirementStatus) Satisfied() bool {
	return s == RequirementApproved || s == RequirementWaived
}

var knownRequirementStatuses = map[RequirementStatus]struct{}{
	RequirementPending:   {},
	RequirementSubmitted: {},
	RequirementApproved:  {},
	RequirementRejected:  {},
	RequirementWaived:    {},
}

// Valid reports whether s is a known requirement status.
func (s RequirementStatus) Valid() bool {
	_, ok := knownRequirementStatuses[s]
	return ok
}

// TimingConfig holds per-stage dwell-time policy. Thresholds are in days;
// zero disables the corresponding check.
type TimingConfig struct {
	ExpectedDays            float64
	StallThresholdDays      float64
	EscalationThresholdDays float64
	BusinessHoursOnly       bool
}

// BlackoutWindow is an hour-of-day window during which a channel is silent.
// Start is inclusive, End exclusive. Windows never wrap midnight; a quiet
// period crossing midnight is expressed as two windows.
type BlackoutWindow struct {
	StartHour int
	EndHour   int
}

// Contains reports whether the given hour falls inside the window.
func (w BlackoutWindow) Contains(hour int) bool {
	return hour >= w.StartHour && hour < w.EndHour
}

// TimeRestrictions limit when a channel may be used.
type TimeRestrictions struct {
	BusinessHoursOnly bool
	// AllowedDays restricts usage to the listed weekdays. Empty = all days.
	AllowedDays []time.Weekday
	Blackouts   []BlackoutWindow
}

// FrequencyCaps limit how often a channel may be used per lead.
// Zero values disable the corresponding cap.
type FrequencyCaps struct {
	MaxPerDay       int
	MaxPerWeek      int
	MinHoursBetween float64
}

// ChannelRule configures one channel's eligibility for a stage.
type ChannelRule struct {
	Channel      ChannelType
	Allowed      bool
	MinPriority  int
	Restrictions TimeRestrictions
	Caps         FrequencyCaps
}

// Requirement is a discrete condition that gates stage completion.
type Requirement struct {
	ID           uuid.UUID
	Type         RequirementType
	Name         string
	Mandatory    bool
	ReminderDays []int
}

// Stage is one step of a journey.
type Stage struct {
	Index           int
	Name            string
	Required        bool
	ParallelAllowed bool
	Timing          TimingConfig
	Completion      CompletionPolicy
	// CompletionRequirementIDs lists the subset consulted when Completion is
	// CompletionSpecificRequirements. Ignored otherwise.
	CompletionRequirementIDs []uuid.UUID
	Requirements             []Requirement
	ChannelRules             []ChannelRule
}

// Rule returns the channel rule for the given channel, if configured.
func (s Stage) Rule(channel ChannelType) (ChannelRule, bool) {
	for _, rule := range s.ChannelRules {
		if rule.Channel == channel {
			return rule, true
		}
	}
	return ChannelRule{}, false
}

// Journey is a named, versioned lifecycle template owned by a tenant.
type Journey struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Key       string
	Name      string
	Version   int
	Active    bool
	Stages    []Stage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StageAt returns the stage with the given order index.
func (j Journey) StageAt(index int) (Stage, bool) {
	for _, stage := range j.Stages {
		if stage.Index == index {
			return stage, true
		}
	}
	return Stage{}, false
}

// FinalStageIndex returns the highest stage index.
func (j Journey) FinalStageIndex() int {
	final := -1
	for _, stage := range j.Stages {
		if stage.Index > final {
			final = stage.Index
		}
	}
	return final
}

// Validate checks structural invariants: at least one stage, contiguous
// unique stage indexes from zero, and known enum values throughout.
func (j Journey) Validate() error {
	if j.Key == "" {
		return fmt.Errorf("journey key is required")
	}
	if len(j.Stages) == 0 {
		return fmt.Errorf("journey %q has no stages", j.Key)
	}

	seen := make(map[int]struct{}, len(j.Stages))
	for _, stage := range j.Stages {
		if stage.Index < 0 || stage.Index >= len(j.Stages) {
			return fmt.Errorf("journey %q: stage index %d out of range", j.Key, stage.Index)
		}
		if _, dup := seen[stage.Index]; dup {
			return fmt.Errorf("journey %q: duplicate stage index %d", j.Key, stage.Index)
		}
		seen[stage.Index] = struct{}{}

		if !stage.Completion.Valid() {
			return fmt.Errorf("journey %q stage %d: unknown completion policy %q", j.Key, stage.Index, stage.Completion)
		}
		if stage.Completion == CompletionSpecificRequirements && len(stage.CompletionRequirementIDs) == 0 {
			return fmt.Errorf("journey %q stage %d: specific_requirements needs a requirement subset", j.Key, stage.Index)
		}
		for _, req := range stage.Requirements {
			if !req.Type.Valid() {
				return fmt.Errorf("journey %q stage %d: unknown requirement type %q", j.Key, stage.Index, req.Type)
			}
		}
		for _, rule := range stage.ChannelRules {
			if !rule.Channel.Valid() {
				return fmt.Errorf("journey %q stage %d: unknown channel %q", j.Key, stage.Index, rule.Channel)
			}
			for _, window := range rule.Restrictions.Blackouts {
				if window.StartHour < 0 || window.EndHour > 24 || window.StartHour >= window.EndHour {
					return fmt.Errorf("journey %q stage %d: invalid blackout window %d-%d", j.Key, stage.Index, window.StartHour, window.EndHour)
				}
			}
		}
	}

	return nil
}
