package vitals

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/ai"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
)

// summaryWindow is how many recent records are sent for a trend summary.
const summaryWindow = 12

type bounds struct{ min, max float64 }

// Plausible physiological ranges. Values outside are typing errors, not
// abnormal readings.
var (
	pulseRange     = bounds{20, 250}
	systolicRange  = bounds{50, 260}
	diastolicRange = bounds{20, 180}
	rrRange        = bounds{4, 60}
	spo2Range      = bounds{50, 100}
	tempRange      = bounds{30, 45}
	painRange      = bounds{0, 10}
	glucoseRange   = bounds{20, 800}
)

func checkInt(name string, v *int, b bounds) error {
	if v != nil && (float64(*v) < b.min || float64(*v) > b.max) {
		return apperr.Invalid("%s must be between %g and %g", name, b.min, b.max)
	}
	return nil
}

func checkFloat(name string, v *float64, b bounds) error {
	if v != nil && (*v < b.min || *v > b.max) {
		return apperr.Invalid("%s must be between %g and %g", name, b.min, b.max)
	}
	return nil
}

func validate(m patient.Measurements) error {
	if m.Empty() {
		return apperr.Invalid("at least one measurement is required")
	}
	checks := []error{
		checkInt("pulseBpm", m.PulseBPM, pulseRange),
		checkInt("systolicBp", m.SystolicBP, systolicRange),
		checkInt("diastolicBp", m.DiastolicBP, diastolicRange),
		checkInt("respiratoryRate", m.RespiratoryRate, rrRange),
		checkInt("spo2", m.SpO2, spo2Range),
		checkFloat("temperatureC", m.TemperatureC, tempRange),
		checkInt("painScore", m.PainScore, painRange),
		checkFloat("bloodGlucose", m.BloodGlucose, glucoseRange),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if m.SystolicBP != nil && m.DiastolicBP != nil && *m.DiastolicBP >= *m.SystolicBP {
		return apperr.Invalid("diastolicBp must be below systolicBp")
	}
	return nil
}

// Service records vitals. Records are never edited; a correction is a new
// record.
type Service struct {
	mut    *patient.Mutator
	ai     ai.Gateway
	logger zerolog.Logger
}

func NewService(mut *patient.Mutator, gateway ai.Gateway, logger zerolog.Logger) *Service {
	return &Service{mut: mut, ai: gateway, logger: logger}
}

type AddInput struct {
	Measurements patient.Measurements `json:"measurements"`
	Observations string               `json:"observations"`
	Source       string               `json:"source"`
}

// AddVitalsRecord makes a new record the patient's latest vitals and puts
// it at the head of the history.
func (s *Service) AddVitalsRecord(ctx context.Context, patientID string, in AddInput) (patient.VitalsRecord, error) {
	if err := validate(in.Measurements); err != nil {
		return patient.VitalsRecord{}, err
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "manual"
	}
	var rec patient.VitalsRecord
	_, err := s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		if err := patient.EnsureActive(p); err != nil {
			return err
		}
		rec = patient.VitalsRecord{
			ID:           patient.NewID("VIT"),
			Measurements: in.Measurements,
			Observations: strings.TrimSpace(in.Observations),
			Source:       source,
			RecordedBy:   ed.Actor.ID,
			RecordedAt:   ed.Now,
		}
		rec = rec.Clone()
		latest := rec.Clone()
		p.Vitals = &latest
		p.VitalsHistory = slices.Insert(p.VitalsHistory, 0, rec.Clone())
		ed.Audit("vitals.recorded", audit.EntityVitals, rec.ID, in.Measurements)
		return nil
	})
	if err != nil {
		return patient.VitalsRecord{}, err
	}
	return rec, nil
}

// History returns up to limit records, newest first. limit <= 0 returns all.
func (s *Service) History(ctx context.Context, patientID string, limit int) ([]patient.VitalsRecord, error) {
	p, err := s.mut.Store().Get(patientID)
	if err != nil {
		return nil, err
	}
	h := p.VitalsHistory
	if h == nil {
		h = []patient.VitalsRecord{}
	}
	if limit > 0 && len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

type Summary struct {
	Summary  string `json:"summary"`
	Records  int    `json:"records"`
	Degraded bool   `json:"degraded"`
}

// SummarizeVitals asks the AI gateway for a trend summary of the recent
// records. On failure Summary holds the fallback text.
func (s *Service) SummarizeVitals(ctx context.Context, patientID string) (*Summary, error) {
	h, err := s.History(ctx, patientID, summaryWindow)
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return &Summary{Summary: "No vitals recorded."}, nil
	}
	text, aiErr := s.ai.Summarize(ctx, "vitals trend", renderHistory(h))
	if aiErr != nil {
		s.logger.Warn().Err(aiErr).Str("patient_id", patientID).Msg("vitals summary degraded")
	}
	out, ok := ai.TextOrFallback(text, aiErr)
	return &Summary{Summary: out, Records: len(h), Degraded: !ok}, nil
}

func renderHistory(h []patient.VitalsRecord) string {
	var b strings.Builder
	for _, r := range h {
		m := r.Measurements
		fmt.Fprintf(&b, "%s:", r.RecordedAt.Format("2006-01-02 15:04"))
		writeInt(&b, "HR", m.PulseBPM)
		if m.SystolicBP != nil && m.DiastolicBP != nil {
			fmt.Fprintf(&b, " BP %d/%d", *m.SystolicBP, *m.DiastolicBP)
		}
		writeInt(&b, "RR", m.RespiratoryRate)
		writeInt(&b, "SpO2", m.SpO2)
		if m.TemperatureC != nil {
			fmt.Fprintf(&b, " T %.1fC", *m.TemperatureC)
		}
		writeInt(&b, "Pain", m.PainScore)
		if m.BloodGlucose != nil {
			fmt.Fprintf(&b, " Glucose %.0f", *m.BloodGlucose)
		}
		if r.Observations != "" {
			fmt.Fprintf(&b, " (%s)", r.Observations)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func writeInt(b *strings.Builder, label string, v *int) {
	if v != nil {
		fmt.Fprintf(b, " %s %d", label, *v)
	}
}
