package patient

import (
	"maps"
	"slices"
	"time"
)

// Clone returns a deep copy that shares no mutable memory with p.
func (p Patient) Clone() Patient {
	out := p
	if p.Triage != nil {
		t := *p.Triage
		t.Reasons = slices.Clone(p.Triage.Reasons)
		out.Triage = &t
	}
	if p.Vitals != nil {
		v := p.Vitals.Clone()
		out.Vitals = &v
	}
	out.VitalsHistory = cloneEach(p.VitalsHistory, VitalsRecord.Clone)
	out.Orders = slices.Clone(p.Orders)
	out.Rounds = cloneEach(p.Rounds, Round.clone)
	out.Timeline = cloneEach(p.Timeline, TimelineEvent.clone)
	out.ClinicalFile = p.ClinicalFile.clone()
	out.ActiveProblems = slices.Clone(p.ActiveProblems)
	out.DischargedAt = clonePtr(p.DischargedAt)
	return out
}

func (r Round) clone() Round {
	r.Plan.LinkedOrders = slices.Clone(r.Plan.LinkedOrders)
	r.SignedAt = clonePtr(r.SignedAt)
	r.Contradictions = slices.Clone(r.Contradictions)
	return r
}

// Clone copies the record including its measurement pointers.
func (v VitalsRecord) Clone() VitalsRecord {
	m := v.Measurements
	v.Measurements = Measurements{
		PulseBPM:        clonePtr(m.PulseBPM),
		SystolicBP:      clonePtr(m.SystolicBP),
		DiastolicBP:     clonePtr(m.DiastolicBP),
		RespiratoryRate: clonePtr(m.RespiratoryRate),
		SpO2:            clonePtr(m.SpO2),
		TemperatureC:    clonePtr(m.TemperatureC),
		PainScore:       clonePtr(m.PainScore),
		BloodGlucose:    clonePtr(m.BloodGlucose),
	}
	return v
}

func (e TimelineEvent) clone() TimelineEvent {
	if e.Checklist != nil {
		c := *e.Checklist
		c.Items = slices.Clone(e.Checklist.Items)
		e.Checklist = &c
	}
	if e.SOAP != nil {
		s := *e.SOAP
		e.SOAP = &s
	}
	return e
}

func (f ClinicalFile) clone() ClinicalFile {
	f.Sections.History.AllergyHistory = slices.Clone(f.Sections.History.AllergyHistory)
	if f.AISuggestions != nil {
		sugg := make(map[string]Suggestion, len(f.AISuggestions))
		for k, s := range f.AISuggestions {
			s.Items = slices.Clone(s.Items)
			sugg[k] = s
		}
		f.AISuggestions = sugg
	}
	f.MissingInfo = slices.Clone(f.MissingInfo)
	f.Inconsistencies = slices.Clone(f.Inconsistencies)
	if f.FollowUpQuestions != nil {
		q := maps.Clone(f.FollowUpQuestions)
		for k, v := range q {
			q[k] = slices.Clone(v)
		}
		f.FollowUpQuestions = q
	}
	return f
}

func cloneEach[T any](in []T, fn func(T) T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}

func clonePtr[T int | float64 | time.Time](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
