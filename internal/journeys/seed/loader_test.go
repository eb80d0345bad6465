package seed

import (
	"strings"
	"testing"
	"time"

	"admissions_portal_backend/internal/journeys/domain"
)

const sampleYAML = `
journeys:
  - key: default_admissions
    name: Default Admissions
    stages:
      - index: 0
        name: Inquiry
        required: true
        completion: auto_advance
        timing:
          expected_days: 3
          stall_threshold_days: 7
          escalation_threshold_days: 14
        channel_rules:
          - channel: sms
            allowed: true
            restrictions:
              business_hours_only: true
              allowed_days: [monday, tuesday, wednesday, thursday, friday]
              blackouts:
                - start_hour: 20
                  end_hour: 24
            caps:
              max_per_day: 2
              max_per_week: 6
              min_hours_between: 4
      - index: 1
        name: Application
        required: true
        completion: specific_requirements
        completion_requirements: [Application form]
        requirements:
          - type: form
            name: Application form
            mandatory: true
            reminder_days: [3, 7]
          - type: document
            name: Transcript
            mandatory: false
`

func TestParseSeed(t *testing.T) {
	journeys, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(journeys) != 1 {
		t.Fatalf("got %d journeys, want 1", len(journeys))
	}

	j := journeys[0]
	if j.Key != "default_admissions" || len(j.Stages) != 2 {
		t.Fatalf("unexpected journey: key=%s stages=%d", j.Key, len(j.Stages))
	}

	inquiry, ok := j.StageAt(0)
	if !ok {
		t.Fatal("missing stage 0")
	}
	if inquiry.Completion != domain.CompletionAutoAdvance {
		t.Fatalf("stage 0 completion = %s", inquiry.Completion)
	}
	rule, ok := inquiry.Rule(domain.ChannelSMS)
	if !ok {
		t.Fatal("missing sms rule")
	}
	if !rule.Restrictions.BusinessHoursOnly || len(rule.Restrictions.AllowedDays) != 5 {
		t.Fatalf("sms restrictions wrong: %+v", rule.Restrictions)
	}
	if rule.Restrictions.AllowedDays[0] != time.Monday {
		t.Fatalf("first allowed day = %v, want Monday", rule.Restrictions.AllowedDays[0])
	}
	if rule.Caps.MaxPerDay != 2 || rule.Caps.MinHoursBetween != 4 {
		t.Fatalf("sms caps wrong: %+v", rule.Caps)
	}

	application, _ := j.StageAt(1)
	if len(application.CompletionRequirementIDs) != 1 {
		t.Fatalf("completion subset not resolved: %+v", application.CompletionRequirementIDs)
	}
	if application.CompletionRequirementIDs[0] != application.Requirements[0].ID {
		t.Fatal("completion subset should reference the application form requirement")
	}
}

func TestParseSeedUnknownWeekday(t *testing.T) {
	bad := strings.Replace(sampleYAML, "monday", "moonday", 1)
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected error for unknown weekday")
	}
}

func TestParseSeedUnknownCompletionRequirement(t *testing.T) {
	bad := strings.Replace(sampleYAML, "completion_requirements: [Application form]", "completion_requirements: [Essay]", 1)
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected error for unresolved completion requirement")
	}
}

func TestParseSeedRejectsInvalidJourney(t *testing.T) {
	bad := strings.Replace(sampleYAML, "index: 1", "index: 5", 1)
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatal("expected validation error for non-contiguous stage index")
	}
}
