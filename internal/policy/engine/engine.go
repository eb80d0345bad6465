// Package engine decides whether a candidate communication is allowed right
// now under a stage's channel rules. Decisions are pure: same inputs, same
// answer, no side effects, safe for preview and dry-run callers.
package engine

import (
	"time"

	"admissions_portal_backend/internal/journeys/domain"
)

// Reason explains why a communication was denied.
type Reason string

const (
	ReasonChannelNotAllowed      Reason = "channel_not_allowed"
	ReasonPriorityBelowThreshold Reason = "priority_below_threshold"
	ReasonOutsideAllowedHours    Reason = "outside_allowed_hours"
	ReasonOutsideAllowedDays     Reason = "outside_allowed_days"
	ReasonBlackoutWindow         Reason = "blackout_window"
	ReasonDailyCapReached        Reason = "frequency_cap_daily"
	ReasonWeeklyCapReached       Reason = "frequency_cap_weekly"
	ReasonMinGapNotElapsed       Reason = "min_gap_not_elapsed"
)

// Action is a candidate communication to a lead.
type Action struct {
	Channel  domain.ChannelType
	Priority int
}

// Usage summarizes recent sends on one lead+channel pair.
type Usage struct {
	SentToday    int
	SentThisWeek int
	LastSentAt   *time.Time
}

// BusinessHours is the tenant's working window, start inclusive, end
// exclusive.
type BusinessHours struct {
	StartHour int
	EndHour   int
}

// Decision is the outcome of one policy check. Reason is empty when allowed.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

// Decide evaluates the stage's rule for the action's channel in fixed order:
// channel allowed, priority threshold, time restrictions, frequency caps.
// The first failing check wins. A channel with no rule on the stage is not
// allowed.
func Decide(stage domain.Stage, action Action, usage Usage, now time.Time, hours BusinessHours) Decision {
	rule, ok := stage.Rule(action.Channel)
	if !ok || !rule.Allowed {
		return deny(ReasonChannelNotAllowed)
	}

	if action.Priority < rule.MinPriority {
		return deny(ReasonPriorityBelowThreshold)
	}

	if rule.Restrictions.BusinessHoursOnly {
		hour := now.Hour()
		if hour < hours.StartHour || hour >= hours.EndHour {
			return deny(ReasonOutsideAllowedHours)
		}
	}
	if len(rule.Restrictions.AllowedDays) > 0 && !dayAllowed(rule.Restrictions.AllowedDays, now.Weekday()) {
		return deny(ReasonOutsideAllowedDays)
	}
	for _, window := range rule.Restrictions.Blackouts {
		if window.Contains(now.Hour()) {
			return deny(ReasonBlackoutWindow)
		}
	}

	if rule.Caps.MaxPerDay > 0 && usage.SentToday >= rule.Caps.MaxPerDay {
		return deny(ReasonDailyCapReached)
	}
	if rule.Caps.MaxPerWeek > 0 && usage.SentThisWeek >= rule.Caps.MaxPerWeek {
		return deny(ReasonWeeklyCapReached)
	}
	if rule.Caps.MinHoursBetween > 0 && usage.LastSentAt != nil {
		elapsed := now.Sub(*usage.LastSentAt).Hours()
		if elapsed < rule.Caps.MinHoursBetween {
			return deny(ReasonMinGapNotElapsed)
		}
	}

	return Decision{Allowed: true}
}

func dayAllowed(days []time.Weekday, day time.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
