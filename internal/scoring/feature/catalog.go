package feature

// Kind determines how the scoring model scales a feature's weight.
type Kind int

const (
	// KindBool contributes weight*10 when true, nothing when false.
	KindBool Kind = iota
	// KindDecay contributes weight * min(days/denominator, cap) * 10. Used
	// for the two age penalties so they saturate instead of growing unbounded.
	KindDecay
	// KindRatio contributes weight * ratio * 10 for ratios bounded to [0,1].
	KindRatio
	// KindCount contributes weight * min(count, cap) with a feature-specific
	// cap so one rapidly-incrementing counter cannot dominate the score.
	KindCount
)

// Definition describes one feature the extractor produces.
type Definition struct {
	Name  string
	Label string
	Kind  Kind
	// CountCap bounds KindCount features. Zero for other kinds.
	CountCap float64
}

// Feature names. The scoring model references features by these names; a
// weight naming anything else resolves to a neutral zero contribution.
const (
	HasEmail       = "has_email"
	HasPhone       = "has_phone"
	HasUTM         = "has_utm"
	IsAssigned     = "is_assigned"
	SourceReferral = "source_referral"
	SourceOrganic  = "source_organic"
	SourcePaid     = "source_paid"
	SourceWebForm  = "source_web_form"

	DaysSinceCreated     = "days_since_created_penalty"
	DaysSinceLastContact = "days_since_last_contact_penalty"

	DocCompletionRatio = "doc_completion_ratio"

	CallsCount           = "calls_count"
	MeetingsCount        = "meetings_count"
	FormSubmissionsCount = "form_submissions_count"
	NotesCount           = "notes_count"
	TotalActivitiesCount = "total_activities_count"
	ReEnquiryCount       = "re_enquiry_count"
)

var catalog = map[string]Definition{
	HasEmail:       {Name: HasEmail, Label: "Has email address", Kind: KindBool},
	HasPhone:       {Name: HasPhone, Label: "Has phone number", Kind: KindBool},
	HasUTM:         {Name: HasUTM, Label: "Has campaign attribution", Kind: KindBool},
	IsAssigned:     {Name: IsAssigned, Label: "Assigned to advisor", Kind: KindBool},
	SourceReferral: {Name: SourceReferral, Label: "Referral source", Kind: KindBool},
	SourceOrganic:  {Name: SourceOrganic, Label: "Organic source", Kind: KindBool},
	SourcePaid:     {Name: SourcePaid, Label: "Paid source", Kind: KindBool},
	SourceWebForm:  {Name: SourceWebForm, Label: "Web form source", Kind: KindBool},

	DaysSinceCreated:     {Name: DaysSinceCreated, Label: "Days since created", Kind: KindDecay},
	DaysSinceLastContact: {Name: DaysSinceLastContact, Label: "Days since last contact", Kind: KindDecay},

	DocCompletionRatio: {Name: DocCompletionRatio, Label: "Document completion", Kind: KindRatio},

	CallsCount:           {Name: CallsCount, Label: "Calls", Kind: KindCount, CountCap: 5},
	MeetingsCount:        {Name: MeetingsCount, Label: "Meetings", Kind: KindCount, CountCap: 3},
	FormSubmissionsCount: {Name: FormSubmissionsCount, Label: "Form submissions", Kind: KindCount, CountCap: 3},
	NotesCount:           {Name: NotesCount, Label: "Notes", Kind: KindCount, CountCap: 5},
	TotalActivitiesCount: {Name: TotalActivitiesCount, Label: "Total activities", Kind: KindCount, CountCap: 10},
	ReEnquiryCount:       {Name: ReEnquiryCount, Label: "Re-enquiries", Kind: KindCount, CountCap: 3},
}

// Lookup returns the definition for a feature name. Unknown names return
// ok=false; the scoring model treats them as neutral rather than failing.
func Lookup(name string) (Definition, bool) {
	def, ok := catalog[name]
	return def, ok
}
