package clinicalfile

import (
	"strings"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
)

// Section names used by UpdateSection.
const (
	SectionHistory     = "history"
	SectionExamination = "examination"
	SectionAssessment  = "assessment"
)

// field addresses one clinical-file value. Exactly one of text and list is
// set.
type field struct {
	section string
	text    func(*patient.Sections) *string
	list    func(*patient.Sections) *[]string
}

var fields = map[string]field{
	"chief_complaint": {section: SectionHistory, text: func(s *patient.Sections) *string { return &s.History.ChiefComplaint }},
	"hpi":             {section: SectionHistory, text: func(s *patient.Sections) *string { return &s.History.HPI }},
	"past_medical_history": {section: SectionHistory, text: func(s *patient.Sections) *string {
		return &s.History.PastMedicalHistory
	}},
	"medication_history": {section: SectionHistory, text: func(s *patient.Sections) *string {
		return &s.History.MedicationHistory
	}},
	"allergy_history": {section: SectionHistory, list: func(s *patient.Sections) *[]string { return &s.History.AllergyHistory }},
	"family_history":  {section: SectionHistory, text: func(s *patient.Sections) *string { return &s.History.FamilyHistory }},
	"social_history":  {section: SectionHistory, text: func(s *patient.Sections) *string { return &s.History.SocialHistory }},
	"general_examination": {section: SectionExamination, text: func(s *patient.Sections) *string {
		return &s.Examination.GeneralExamination
	}},
	"systemic_examination": {section: SectionExamination, text: func(s *patient.Sections) *string {
		return &s.Examination.SystemicExamination
	}},
	"provisional_diagnosis": {section: SectionAssessment, text: func(s *patient.Sections) *string {
		return &s.Assessment.ProvisionalDiagnosis
	}},
	"differentials": {section: SectionAssessment, text: func(s *patient.Sections) *string {
		return &s.Assessment.Differentials
	}},
}

// suggestionTargets maps overlay keys whose name differs from the field
// they fill.
var suggestionTargets = map[string]string{
	"structured_hpi": "hpi",
}

// targetOf returns the field an overlay key applies to.
func targetOf(key string) (string, field, bool) {
	name := key
	if t, ok := suggestionTargets[key]; ok {
		name = t
	}
	f, ok := fields[name]
	return name, f, ok
}

// apply writes an accepted suggestion. List fields gain the suggested
// items; text fields are replaced.
func (f field) apply(s *patient.Sections, sg patient.Suggestion) {
	if f.list != nil {
		items := sg.Items
		if len(items) == 0 && strings.TrimSpace(sg.Text) != "" {
			items = []string{strings.TrimSpace(sg.Text)}
		}
		dst := f.list(s)
		*dst = append(append([]string{}, *dst...), items...)
		return
	}
	text := sg.Text
	if text == "" && len(sg.Items) > 0 {
		text = strings.Join(sg.Items, ", ")
	}
	*f.text(s) = text
}

// current renders a field's value as text.
func (f field) current(s *patient.Sections) string {
	if f.list != nil {
		return strings.Join(*f.list(s), ", ")
	}
	return *f.text(s)
}
