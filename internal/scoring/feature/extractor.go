package feature

import (
	"strings"
	"time"

	leadsrepo "admissions_portal_backend/internal/leads/repository"
)

// Vector holds the extracted feature values for one lead. Lookups for
// features the extractor did not set return neutral values (false, 0).
type Vector map[string]Value

// Value is a single extracted feature value.
type Value struct {
	Bool   bool
	Number float64
}

// BoolAt returns the boolean value for name, false when absent.
func (v Vector) BoolAt(name string) bool {
	return v[name].Bool
}

// NumberAt returns the numeric value for name, 0 when absent.
func (v Vector) NumberAt(name string) float64 {
	return v[name].Number
}

// Extract derives the feature vector from a lead snapshot. It is a pure
// function of its inputs so the same snapshot always yields the same vector.
func Extract(snap leadsrepo.Snapshot, now time.Time) Vector {
	v := Vector{}

	v[HasEmail] = Value{Bool: snap.Email != nil && *snap.Email != ""}
	v[HasPhone] = Value{Bool: snap.Phone != nil && *snap.Phone != ""}
	v[HasUTM] = Value{Bool: snap.UTMSource != nil && *snap.UTMSource != ""}
	v[IsAssigned] = Value{Bool: snap.AssignedAdvisor != nil}

	source := ""
	if snap.Source != nil {
		source = normalizeSource(*snap.Source)
	}
	switch source {
	case "referral":
		v[SourceReferral] = Value{Bool: true}
	case "organic":
		v[SourceOrganic] = Value{Bool: true}
	case "paid":
		v[SourcePaid] = Value{Bool: true}
	case "web_form":
		v[SourceWebForm] = Value{Bool: true}
	}

	v[DaysSinceCreated] = Value{Number: daysSince(snap.CreatedAt, now)}
	if snap.LastContactAt != nil {
		v[DaysSinceLastContact] = Value{Number: daysSince(*snap.LastContactAt, now)}
	}

	if snap.Counts.DocumentsSubmitted > 0 {
		ratio := float64(snap.Counts.DocumentsApproved) / float64(snap.Counts.DocumentsSubmitted)
		v[DocCompletionRatio] = Value{Number: ratio}
	}

	v[CallsCount] = Value{Number: float64(snap.Counts.Calls)}
	v[MeetingsCount] = Value{Number: float64(snap.Counts.Meetings)}
	v[FormSubmissionsCount] = Value{Number: float64(snap.Counts.FormSubmissions)}
	v[NotesCount] = Value{Number: float64(snap.Counts.Notes)}
	v[TotalActivitiesCount] = Value{Number: float64(snap.Counts.TotalActivities)}
	v[ReEnquiryCount] = Value{Number: float64(snap.ReEnquiryCount)}

	return v
}

func daysSince(t, now time.Time) float64 {
	if t.After(now) {
		return 0
	}
	return now.Sub(t).Hours() / 24
}

func normalizeSource(source string) string {
	s := strings.ToLower(strings.TrimSpace(source))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	switch s {
	case "referral", "partner_referral", "student_referral":
		return "referral"
	case "organic", "seo", "organic_search":
		return "organic"
	case "paid", "ppc", "paid_search", "paid_social":
		return "paid"
	case "web_form", "webform", "website", "landing_page":
		return "web_form"
	default:
		return s
	}
}
