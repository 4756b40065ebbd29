package patient

import (
	"time"
)

type Status string

const (
	StatusWaitingForTriage Status = "Waiting for Triage"
	StatusWaitingForDoctor Status = "Waiting for Doctor"
	StatusInTreatment      Status = "In Treatment"
	StatusDischarged       Status = "Discharged"
)

// rank orders statuses along the only direction a patient may move.
func (s Status) rank() int {
	switch s {
	case StatusWaitingForTriage:
		return 0
	case StatusWaitingForDoctor:
		return 1
	case StatusInTreatment:
		return 2
	case StatusDischarged:
		return 3
	default:
		return -1
	}
}

func (s Status) Valid() bool { return s.rank() >= 0 }

type TriageLevel string

const (
	TriageRed    TriageLevel = "Red"
	TriageYellow TriageLevel = "Yellow"
	TriageGreen  TriageLevel = "Green"
)

func (l TriageLevel) Valid() bool {
	return l == TriageRed || l == TriageYellow || l == TriageGreen
}

type Triage struct {
	Level     TriageLevel `json:"level"`
	Reasons   []string    `json:"reasons"`
	TriagedBy string      `json:"triagedBy,omitempty"`
	TriagedAt time.Time   `json:"triagedAt"`
}

// Patient is the whole document for one admission. It is replaced wholesale
// on every change; see Store.Mutate.
type Patient struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Age            int       `json:"age"`
	Gender         string    `json:"gender"`
	Phone          string    `json:"phone,omitempty"`
	Address        string    `json:"address,omitempty"`
	ChiefComplaint string    `json:"chiefComplaint"`
	RegisteredAt   time.Time `json:"registeredAt"`
	RegisteredBy   string    `json:"registeredBy,omitempty"`
	Status         Status    `json:"status"`

	Triage        *Triage         `json:"triage,omitempty"`
	Vitals        *VitalsRecord   `json:"vitals,omitempty"`
	VitalsHistory []VitalsRecord  `json:"vitalsHistory"`
	Orders        []Order         `json:"orders"`
	Rounds        []Round         `json:"rounds"`
	Timeline      []TimelineEvent `json:"timeline"`
	ClinicalFile  ClinicalFile    `json:"clinicalFile"`

	ActiveProblems   []string   `json:"activeProblems"`
	HandoverSummary  string     `json:"handoverSummary,omitempty"`
	Overview         string     `json:"overview,omitempty"`
	BedID            string     `json:"bedId,omitempty"`
	DischargeSummary string     `json:"dischargeSummary,omitempty"`
	DischargedAt     *time.Time `json:"dischargedAt,omitempty"`
}

// Orders

type OrderCategory string

const (
	CategoryInvestigation OrderCategory = "investigation"
	CategoryRadiology     OrderCategory = "radiology"
	CategoryMedication    OrderCategory = "medication"
	CategoryProcedure     OrderCategory = "procedure"
	CategoryNursing       OrderCategory = "nursing"
	CategoryReferral      OrderCategory = "referral"
)

func (c OrderCategory) Valid() bool {
	switch c {
	case CategoryInvestigation, CategoryRadiology, CategoryMedication,
		CategoryProcedure, CategoryNursing, CategoryReferral:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderDraft      OrderStatus = "draft"
	OrderSent       OrderStatus = "sent"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderDraft, OrderSent, OrderInProgress, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

type OrderPriority string

const (
	PriorityRoutine OrderPriority = "routine"
	PriorityUrgent  OrderPriority = "urgent"
	PrioritySTAT    OrderPriority = "STAT"
)

func (p OrderPriority) Valid() bool {
	return p == PriorityRoutine || p == PriorityUrgent || p == PrioritySTAT
}

type OrderMeta struct {
	LastModified time.Time `json:"lastModified"`
	ModifiedBy   string    `json:"modifiedBy"`
}

type Order struct {
	ID           string        `json:"id"`
	PatientID    string        `json:"patientId"`
	Category     OrderCategory `json:"category"`
	Label        string        `json:"label"`
	Instructions string        `json:"instructions,omitempty"`
	Status       OrderStatus   `json:"status"`
	Priority     OrderPriority `json:"priority"`
	AISuggested  bool          `json:"aiSuggested,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	CreatedBy    string        `json:"createdBy"`
	Meta         OrderMeta     `json:"meta"`
}

// Rounds

type RoundStatus string

const (
	RoundDraft  RoundStatus = "draft"
	RoundSigned RoundStatus = "signed"
)

type RoundPlan struct {
	Notes        string   `json:"notes"`
	LinkedOrders []string `json:"linkedOrders"`
}

type Round struct {
	ID             string      `json:"id"`
	PatientID      string      `json:"patientId"`
	Status         RoundStatus `json:"status"`
	Subjective     string      `json:"subjective"`
	Objective      string      `json:"objective"`
	Assessment     string      `json:"assessment"`
	Plan           RoundPlan   `json:"plan"`
	CreatedAt      time.Time   `json:"createdAt"`
	CreatedBy      string      `json:"createdBy"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	SignedBy       string      `json:"signedBy,omitempty"`
	SignedAt       *time.Time  `json:"signedAt,omitempty"`
	Contradictions []string    `json:"contradictions,omitempty"`
}

// Vitals

// Measurements holds optional readings; nil means not measured.
type Measurements struct {
	PulseBPM        *int     `json:"pulseBpm,omitempty"`
	SystolicBP      *int     `json:"systolicBp,omitempty"`
	DiastolicBP     *int     `json:"diastolicBp,omitempty"`
	RespiratoryRate *int     `json:"respiratoryRate,omitempty"`
	SpO2            *int     `json:"spo2,omitempty"`
	TemperatureC    *float64 `json:"temperatureC,omitempty"`
	PainScore       *int     `json:"painScore,omitempty"`
	BloodGlucose    *float64 `json:"bloodGlucose,omitempty"`
}

// Empty reports whether no reading is present.
func (m Measurements) Empty() bool {
	return m.PulseBPM == nil && m.SystolicBP == nil && m.DiastolicBP == nil &&
		m.RespiratoryRate == nil && m.SpO2 == nil && m.TemperatureC == nil &&
		m.PainScore == nil && m.BloodGlucose == nil
}

type VitalsRecord struct {
	ID           string       `json:"id"`
	Measurements Measurements `json:"measurements"`
	Observations string       `json:"observations,omitempty"`
	Source       string       `json:"source"`
	RecordedBy   string       `json:"recordedBy"`
	RecordedAt   time.Time    `json:"recordedAt"`
}

// Timeline

type EventType string

const (
	EventNote      EventType = "note"
	EventChecklist EventType = "checklist"
	EventSOAP      EventType = "soap"
)

type ChecklistItem struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

type Checklist struct {
	Title string          `json:"title"`
	Items []ChecklistItem `json:"items"`
}

type SOAPNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// TimelineEvent is a tagged union; exactly one payload matches Type.
type TimelineEvent struct {
	ID         string     `json:"id"`
	Type       EventType  `json:"type"`
	Timestamp  time.Time  `json:"timestamp"`
	AuthorID   string     `json:"authorId"`
	AuthorName string     `json:"authorName,omitempty"`
	Note       string     `json:"note,omitempty"`
	Checklist  *Checklist `json:"checklist,omitempty"`
	SOAP       *SOAPNote  `json:"soap,omitempty"`
}

// Clinical file

type HistorySection struct {
	ChiefComplaint     string   `json:"chiefComplaint"`
	HPI                string   `json:"hpi"`
	PastMedicalHistory string   `json:"pastMedicalHistory"`
	MedicationHistory  string   `json:"medicationHistory"`
	AllergyHistory     []string `json:"allergyHistory"`
	FamilyHistory      string   `json:"familyHistory"`
	SocialHistory      string   `json:"socialHistory"`
}

type ExaminationSection struct {
	GeneralExamination  string `json:"generalExamination"`
	SystemicExamination string `json:"systemicExamination"`
}

type AssessmentSection struct {
	ProvisionalDiagnosis string `json:"provisionalDiagnosis"`
	Differentials        string `json:"differentials"`
}

type Sections struct {
	History     HistorySection     `json:"history"`
	Examination ExaminationSection `json:"examination"`
	Assessment  AssessmentSection  `json:"assessment"`
}

// Suggestion is a pending AI proposal for one field. List fields use Items.
type Suggestion struct {
	Text        string    `json:"text,omitempty"`
	Items       []string  `json:"items,omitempty"`
	SuggestedAt time.Time `json:"suggestedAt"`
}

type ClinicalFile struct {
	Sections          Sections              `json:"sections"`
	AISuggestions     map[string]Suggestion `json:"aiSuggestions,omitempty"`
	AISummary         string                `json:"aiSummary,omitempty"`
	MissingInfo       []string              `json:"missingInfo,omitempty"`
	Inconsistencies   []string              `json:"inconsistencies,omitempty"`
	FollowUpQuestions map[string][]string   `json:"followUpQuestions,omitempty"`
	UpdatedAt         time.Time             `json:"updatedAt"`
	UpdatedBy         string                `json:"updatedBy,omitempty"`
}

// Lookup helpers. Each returns the index or -1.

func (p *Patient) OrderIndex(id string) int {
	for i := range p.Orders {
		if p.Orders[i].ID == id {
			return i
		}
	}
	return -1
}

func (p *Patient) RoundIndex(id string) int {
	for i := range p.Rounds {
		if p.Rounds[i].ID == id {
			return i
		}
	}
	return -1
}

// DraftRound returns the index of the patient's draft round, or -1.
func (p *Patient) DraftRound() int {
	for i := range p.Rounds {
		if p.Rounds[i].Status == RoundDraft {
			return i
		}
	}
	return -1
}

func (p *Patient) EventIndex(id string, typ EventType) int {
	for i := range p.Timeline {
		if p.Timeline[i].ID == id && p.Timeline[i].Type == typ {
			return i
		}
	}
	return -1
}
