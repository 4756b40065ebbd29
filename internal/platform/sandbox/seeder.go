// Package sandbox generates a reproducible demo ward: beds across a few wards
// and patients at every stage of an admission. The seed command feeds the
// plan through the regular services so every record is versioned and
// audited like real input.
package sandbox

import (
	"fmt"
	"math/rand"
	"time"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// SeedConfig controls the size and shape of the generated ward.
type SeedConfig struct {
	PatientCount   int      `json:"patientCount"`
	Wards          []string `json:"wards"`
	BedsPerWard    int      `json:"bedsPerWard"`
	VitalsPerAdmit int      `json:"vitalsPerAdmit"`
	Seed           int64    `json:"seed"`
}

// DefaultSeedConfig returns the configuration used by `medflow-server seed`.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		PatientCount:   12,
		Wards:          []string{"Medical", "Surgical"},
		BedsPerWard:    8,
		VitalsPerAdmit: 3,
	}
}

// ---------------------------------------------------------------------------
// Plan types
// ---------------------------------------------------------------------------

// Stage is how far through the admission a demo patient has progressed.
type Stage int

const (
	StageRegistered Stage = iota
	StageTriaged
	StageInTreatment
)

func (s Stage) String() string {
	switch s {
	case StageRegistered:
		return "registered"
	case StageTriaged:
		return "triaged"
	case StageInTreatment:
		return "in-treatment"
	}
	return "unknown"
}

// Vitals is one set of readings. Zero values mean not measured.
type Vitals struct {
	Pulse        int
	Systolic     int
	Diastolic    int
	RespRate     int
	SpO2         int
	TemperatureC float64
	Observations string
}

type DemoPatient struct {
	Name           string
	Age            int
	Gender         string
	Phone          string
	Address        string
	ChiefComplaint string
	Stage          Stage
	TriageLevel    string
	TriageReasons  []string
	Problems       []string
	Vitals         []Vitals
	Orders         []DemoOrder
	// Bed is an index into Plan.Beds, or -1.
	Bed int
}

type DemoOrder struct {
	Category string
	Label    string
	Priority string
}

type DemoBed struct {
	Ward  string
	Label string
}

// Plan is everything the seed command should create, in order.
type Plan struct {
	Beds     []DemoBed
	Patients []DemoPatient
}

// SeedResult counts what was created from a plan.
type SeedResult struct {
	Beds     int           `json:"beds"`
	Patients int           `json:"patients"`
	Vitals   int           `json:"vitals"`
	Orders   int           `json:"orders"`
	Assigned int           `json:"assigned"`
	Duration time.Duration `json:"duration"`
}

// ---------------------------------------------------------------------------
// Reference pools
// ---------------------------------------------------------------------------

type presentation struct {
	Complaint string
	Level     string
	Reasons   []string
	Problems  []string
	Orders    []DemoOrder
}

var (
	firstNamesMale = []string{
		"Arjun", "Rahul", "Vikram", "Imran", "Suresh", "Joseph", "Daniel",
		"Karthik", "Anil", "Mohan", "Rohan", "Samuel", "Farhan", "Ravi",
	}
	firstNamesFemale = []string{
		"Priya", "Ananya", "Meera", "Fatima", "Lakshmi", "Sarah", "Deepa",
		"Kavya", "Nisha", "Aisha", "Grace", "Divya", "Sunita", "Rekha",
	}
	lastNames = []string{
		"Sharma", "Iyer", "Khan", "Reddy", "Nair", "Thomas", "Gupta",
		"Menon", "Das", "Pillai", "Fernandes", "Rao", "Singh", "Joshi",
	}
	streets = []string{
		"12 MG Road", "45 Park Street", "7 Lake View", "221 Station Road",
		"9 Temple Lane", "88 Hill Crescent", "31 Market Road",
	}
	cities = []string{
		"Bengaluru", "Chennai", "Kochi", "Hyderabad", "Pune", "Mysuru",
	}

	presentations = []presentation{
		{
			Complaint: "Central chest pain radiating to left arm for 2 hours",
			Level:     "Red",
			Reasons:   []string{"Suspected ACS", "Diaphoresis"},
			Problems:  []string{"Acute coronary syndrome", "Hypertension"},
			Orders: []DemoOrder{
				{"investigation", "12-lead ECG", "STAT"},
				{"investigation", "Troponin I", "STAT"},
				{"medication", "Aspirin 300 mg PO", "STAT"},
			},
		},
		{
			Complaint: "Fever with productive cough for 5 days",
			Level:     "Yellow",
			Reasons:   []string{"SpO2 below 94%", "Tachypnoea"},
			Problems:  []string{"Community acquired pneumonia"},
			Orders: []DemoOrder{
				{"radiology", "Chest X-ray PA view", "urgent"},
				{"investigation", "Complete blood count", "routine"},
				{"investigation", "Blood culture x2", "urgent"},
			},
		},
		{
			Complaint: "Right lower abdominal pain since morning",
			Level:     "Yellow",
			Reasons:   []string{"Guarding in right iliac fossa"},
			Problems:  []string{"Suspected appendicitis"},
			Orders: []DemoOrder{
				{"radiology", "Ultrasound abdomen", "urgent"},
				{"referral", "General surgery review", "urgent"},
			},
		},
		{
			Complaint: "Polyuria and generalised weakness for a week",
			Level:     "Green",
			Reasons:   []string{"Haemodynamically stable"},
			Problems:  []string{"Uncontrolled type 2 diabetes"},
			Orders: []DemoOrder{
				{"investigation", "HbA1c", "routine"},
				{"investigation", "Serum electrolytes", "routine"},
				{"nursing", "Capillary glucose 6 hourly", "routine"},
			},
		},
		{
			Complaint: "Fall at home with left hip pain",
			Level:     "Yellow",
			Reasons:   []string{"Unable to bear weight", "Age over 65"},
			Problems:  []string{"Suspected neck of femur fracture"},
			Orders: []DemoOrder{
				{"radiology", "X-ray pelvis with left hip", "urgent"},
				{"medication", "Paracetamol 1 g IV", "urgent"},
			},
		},
		{
			Complaint: "Headache and vomiting since last night",
			Level:     "Green",
			Reasons:   []string{"No focal deficit"},
			Problems:  []string{"Migraine"},
			Orders: []DemoOrder{
				{"medication", "Ondansetron 4 mg IV", "routine"},
			},
		},
	}
)

// ---------------------------------------------------------------------------
// DataGenerator
// ---------------------------------------------------------------------------

// DataGenerator produces deterministic demo records.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

func (g *DataGenerator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *DataGenerator) between(lo, hi int) int {
	return lo + g.rng.Intn(hi-lo+1)
}

func (g *DataGenerator) randomPhone() string {
	return fmt.Sprintf("+91 %05d %05d", g.between(70000, 99999), g.rng.Intn(100000))
}

// GeneratePatient produces one demo patient at the given stage.
func (g *DataGenerator) GeneratePatient(stage Stage) DemoPatient {
	first, gender := g.pick(firstNamesFemale), "female"
	if g.rng.Intn(2) == 0 {
		first, gender = g.pick(firstNamesMale), "male"
	}
	pr := presentations[g.rng.Intn(len(presentations))]

	p := DemoPatient{
		Name:           first + " " + g.pick(lastNames),
		Age:            g.between(18, 90),
		Gender:         gender,
		Phone:          g.randomPhone(),
		Address:        g.pick(streets) + ", " + g.pick(cities),
		ChiefComplaint: pr.Complaint,
		Stage:          stage,
		Bed:            -1,
	}
	if stage >= StageTriaged {
		p.TriageLevel = pr.Level
		p.TriageReasons = append([]string(nil), pr.Reasons...)
	}
	if stage >= StageInTreatment {
		p.Problems = append([]string(nil), pr.Problems...)
		p.Orders = append([]DemoOrder(nil), pr.Orders...)
	}
	return p
}

// GenerateVitals produces plausible readings, sicker for higher triage
// levels.
func (g *DataGenerator) GenerateVitals(level string) Vitals {
	v := Vitals{
		Pulse:        g.between(64, 96),
		Systolic:     g.between(110, 138),
		Diastolic:    g.between(68, 88),
		RespRate:     g.between(12, 18),
		SpO2:         g.between(96, 99),
		TemperatureC: 36.4 + float64(g.rng.Intn(8))/10,
	}
	switch level {
	case "Red":
		v.Pulse = g.between(110, 135)
		v.Systolic = g.between(90, 105)
		v.Observations = "Diaphoretic, anxious"
	case "Yellow":
		v.Pulse = g.between(96, 112)
		v.SpO2 = g.between(91, 95)
		v.TemperatureC = 37.8 + float64(g.rng.Intn(10))/10
	}
	return v
}

// ---------------------------------------------------------------------------
// Seeder
// ---------------------------------------------------------------------------

// Seeder turns a SeedConfig into a Plan.
type Seeder struct {
	generator *DataGenerator
	config    SeedConfig
}

func NewSeeder(config SeedConfig) *Seeder {
	return &Seeder{generator: NewDataGenerator(config.Seed), config: config}
}

// Plan builds the demo ward. Patients cycle through the admission stages;
// everyone past triage is placed in a bed while free beds remain.
func (s *Seeder) Plan() (*Plan, error) {
	if s.config.PatientCount < 0 || s.config.BedsPerWard < 0 || s.config.VitalsPerAdmit < 0 {
		return nil, fmt.Errorf("seed counts must not be negative")
	}
	if s.config.BedsPerWard > 0 && len(s.config.Wards) == 0 {
		return nil, fmt.Errorf("at least one ward is required")
	}

	plan := &Plan{}
	for _, ward := range s.config.Wards {
		prefix := ward
		if len(prefix) > 3 {
			prefix = prefix[:3]
		}
		for i := 1; i <= s.config.BedsPerWard; i++ {
			plan.Beds = append(plan.Beds, DemoBed{Ward: ward, Label: fmt.Sprintf("%s-%02d", prefix, i)})
		}
	}

	nextBed := 0
	for i := 0; i < s.config.PatientCount; i++ {
		p := s.generator.GeneratePatient(Stage(i % 3))
		if p.Stage >= StageTriaged {
			for j := 0; j < s.config.VitalsPerAdmit; j++ {
				p.Vitals = append(p.Vitals, s.generator.GenerateVitals(p.TriageLevel))
			}
			if nextBed < len(plan.Beds) {
				p.Bed = nextBed
				nextBed++
			}
		}
		plan.Patients = append(plan.Patients, p)
	}
	return plan, nil
}
