package clinicalfile

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/ai"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
)

var (
	ErrSuggestionNotFound = apperr.Define(apperr.ErrNotFound, "no pending suggestion for this field")
	ErrUnknownField       = apperr.Define(apperr.ErrValidation, "unknown clinical file field")
)

// Outcome is returned by operations that call the AI gateway. On failure
// File is the unchanged clinical file and Notice holds the fallback text.
type Outcome struct {
	File     patient.ClinicalFile `json:"clinicalFile"`
	Degraded bool                 `json:"degraded"`
	Notice   string               `json:"notice,omitempty"`
}

// Service edits the clinical file and its AI suggestion overlay.
type Service struct {
	mut    *patient.Mutator
	ai     ai.Gateway
	logger zerolog.Logger
}

func NewService(mut *patient.Mutator, gateway ai.Gateway, logger zerolog.Logger) *Service {
	return &Service{mut: mut, ai: gateway, logger: logger}
}

func (s *Service) Get(ctx context.Context, patientID string) (patient.ClinicalFile, error) {
	p, err := s.mut.Store().Get(patientID)
	if err != nil {
		return patient.ClinicalFile{}, err
	}
	return p.ClinicalFile, nil
}

func (s *Service) update(ctx context.Context, patientID string, fn func(f *patient.ClinicalFile, ed *patient.Edit) error) (patient.ClinicalFile, error) {
	p, err := s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		if err := patient.EnsureActive(p); err != nil {
			return err
		}
		if err := fn(&p.ClinicalFile, ed); err != nil {
			return err
		}
		p.ClinicalFile.UpdatedAt = ed.Now
		p.ClinicalFile.UpdatedBy = ed.Actor.ID
		return nil
	})
	if err != nil {
		return patient.ClinicalFile{}, err
	}
	return p.ClinicalFile, nil
}

// UpdateSection sets the given fields of one section. Text fields take a
// JSON string and list fields a JSON array of strings. Fields not named are
// left alone.
func (s *Service) UpdateSection(ctx context.Context, patientID, section string, values map[string]json.RawMessage) (patient.ClinicalFile, error) {
	if len(values) == 0 {
		return patient.ClinicalFile{}, apperr.Invalid("no fields given")
	}
	type change struct {
		f     field
		text  string
		items []string
	}
	changes := make(map[string]change, len(values))
	for key, raw := range values {
		f, ok := fields[key]
		if !ok || f.section != section {
			return patient.ClinicalFile{}, fmt.Errorf("%w: %s.%s", ErrUnknownField, section, key)
		}
		c := change{f: f}
		var err error
		if f.list != nil {
			err = json.Unmarshal(raw, &c.items)
			c.items = patient.CleanStrings(c.items)
		} else {
			err = json.Unmarshal(raw, &c.text)
			c.text = strings.TrimSpace(c.text)
		}
		if err != nil {
			return patient.ClinicalFile{}, apperr.Invalid("%s: %v", key, err)
		}
		changes[key] = c
	}

	return s.update(ctx, patientID, func(cf *patient.ClinicalFile, ed *patient.Edit) error {
		for _, c := range changes {
			if c.f.list != nil {
				*c.f.list(&cf.Sections) = c.items
			} else {
				*c.f.text(&cf.Sections) = c.text
			}
		}
		keys := slices.Sorted(maps.Keys(changes))
		ed.Audit("clinical_file.updated", audit.EntityClinicalFile, section, map[string]any{"fields": keys})
		return nil
	})
}

// AcceptAISuggestion moves a pending suggestion into the clinical file and
// removes it from the overlay, so it can be applied at most once.
func (s *Service) AcceptAISuggestion(ctx context.Context, patientID, key string) (patient.ClinicalFile, error) {
	target, f, ok := targetOf(key)
	if !ok {
		return patient.ClinicalFile{}, fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	return s.update(ctx, patientID, func(cf *patient.ClinicalFile, ed *patient.Edit) error {
		sg, ok := cf.AISuggestions[key]
		if !ok {
			return ErrSuggestionNotFound
		}
		f.apply(&cf.Sections, sg)
		delete(cf.AISuggestions, key)
		ed.Audit("clinical_file.suggestion_accepted", audit.EntityClinicalFile, key, map[string]any{"field": target})
		return nil
	})
}

// RejectAISuggestion drops a pending suggestion without applying it.
func (s *Service) RejectAISuggestion(ctx context.Context, patientID, key string) (patient.ClinicalFile, error) {
	return s.update(ctx, patientID, func(cf *patient.ClinicalFile, ed *patient.Edit) error {
		if _, ok := cf.AISuggestions[key]; !ok {
			return ErrSuggestionNotFound
		}
		delete(cf.AISuggestions, key)
		ed.Audit("clinical_file.suggestion_rejected", audit.EntityClinicalFile, key, nil)
		return nil
	})
}

// snapshot returns the patient for an AI call after checking that a user is
// signed in and the patient can still be edited.
func (s *Service) snapshot(ctx context.Context, patientID string) (patient.Patient, error) {
	if _, err := s.mut.Actor(ctx); err != nil {
		return patient.Patient{}, err
	}
	p, err := s.mut.Store().Get(patientID)
	if err != nil {
		return patient.Patient{}, err
	}
	if err := patient.EnsureActive(&p); err != nil {
		return patient.Patient{}, err
	}
	return p, nil
}

func (s *Service) degraded(p patient.Patient, op string, err error) *Outcome {
	s.logger.Warn().Err(err).Str("patient_id", p.ID).Str("op", op).Msg("clinical file ai call degraded")
	return &Outcome{File: p.ClinicalFile, Degraded: true, Notice: ai.FallbackMessage}
}

func applySuggestions(cf *patient.ClinicalFile, ed *patient.Edit, res *ai.FileSuggestions) {
	if cf.AISuggestions == nil {
		cf.AISuggestions = map[string]patient.Suggestion{}
	}
	var keys []string
	for key, v := range res.Fields {
		if _, _, ok := targetOf(key); !ok {
			continue
		}
		cf.AISuggestions[key] = patient.Suggestion{Text: v.Text, Items: v.Items, SuggestedAt: ed.Now}
		keys = append(keys, key)
	}
	cf.MissingInfo = res.MissingInfo
	cf.Inconsistencies = res.Inconsistencies
	slices.Sort(keys)
	ed.Audit("clinical_file.suggestions_received", audit.EntityClinicalFile, "", map[string]any{
		"fields": keys, "missingInfo": len(res.MissingInfo), "inconsistencies": len(res.Inconsistencies),
	})
}

// RequestSuggestions asks the AI gateway to propose field values and flag
// missing or inconsistent information. Proposals go to the overlay only.
func (s *Service) RequestSuggestions(ctx context.Context, patientID string) (*Outcome, error) {
	snap, err := s.snapshot(ctx, patientID)
	if err != nil {
		return nil, err
	}
	res, aiErr := s.ai.SuggestClinicalFile(ctx, snap)
	if aiErr != nil {
		return s.degraded(snap, "suggest", aiErr), nil
	}
	cf, err := s.update(ctx, patientID, func(cf *patient.ClinicalFile, ed *patient.Edit) error {
		applySuggestions(cf, ed, res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{File: cf}, nil
}

// SummarizeFile stores an AI summary of the clinical file. On failure the
// previous summary is kept.
func (s *Service) SummarizeFile(ctx context.Context, patientID string) (*Outcome, error) {
	snap, err := s.snapshot(ctx, patientID)
	if err != nil {
		return nil, err
	}
	text, aiErr := s.ai.Summarize(ctx, "clinical file", renderSections(snap.ClinicalFile.Sections))
	if aiErr != nil {
		return s.degraded(snap, "summarize", aiErr), nil
	}
	cf, err := s.update(ctx, patientID, func(cf *patient.ClinicalFile, ed *patient.Edit) error {
		cf.AISummary = text
		ed.Audit("clinical_file.summarized", audit.EntityClinicalFile, "", nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{File: cf}, nil
}

type QuestionsOutcome struct {
	Questions []string `json:"questions"`
	Degraded  bool     `json:"degraded"`
	Notice    string   `json:"notice,omitempty"`
}

// FollowUpQuestions asks what to ask the patient next about one field.
// seedText defaults to the field's current value.
func (s *Service) FollowUpQuestions(ctx context.Context, patientID, key, seedText string) (*QuestionsOutcome, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	snap, err := s.snapshot(ctx, patientID)
	if err != nil {
		return nil, err
	}
	seed := strings.TrimSpace(seedText)
	if seed == "" {
		seed = f.current(&snap.ClinicalFile.Sections)
	}
	if seed == "" {
		return nil, apperr.Invalid("%s is empty; nothing to follow up on", key)
	}

	questions, aiErr := s.ai.FollowUpQuestions(ctx, key, seed)
	if aiErr != nil {
		s.logger.Warn().Err(aiErr).Str("patient_id", patientID).Str("field", key).Msg("follow-up questions degraded")
		return &QuestionsOutcome{Questions: []string{}, Degraded: true, Notice: ai.FallbackMessage}, nil
	}
	if questions == nil {
		questions = []string{}
	}
	_, err = s.update(ctx, patientID, func(cf *patient.ClinicalFile, ed *patient.Edit) error {
		if cf.FollowUpQuestions == nil {
			cf.FollowUpQuestions = map[string][]string{}
		}
		cf.FollowUpQuestions[key] = slices.Clone(questions)
		ed.Audit("clinical_file.follow_up_generated", audit.EntityClinicalFile, key, map[string]any{"count": len(questions)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &QuestionsOutcome{Questions: questions}, nil
}

// RefreshInsights runs the summary and the suggestion request in parallel
// and applies whatever succeeded in one change. Degraded is set when either
// call failed.
func (s *Service) RefreshInsights(ctx context.Context, patientID string) (*Outcome, error) {
	snap, err := s.snapshot(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var (
		summary         string
		suggestions     *ai.FileSuggestions
		sumErr, suggErr error
		g               errgroup.Group
	)
	// Partial results are applied, so neither call may cancel the other.
	g.Go(func() error {
		summary, sumErr = s.ai.Summarize(ctx, "clinical file", renderSections(snap.ClinicalFile.Sections))
		return nil
	})
	g.Go(func() error {
		suggestions, suggErr = s.ai.SuggestClinicalFile(ctx, snap)
		return nil
	})
	_ = g.Wait()

	if sumErr != nil && suggErr != nil {
		return s.degraded(snap, "refresh", sumErr), nil
	}
	cf, err := s.update(ctx, patientID, func(cf *patient.ClinicalFile, ed *patient.Edit) error {
		if sumErr == nil {
			cf.AISummary = summary
			ed.Audit("clinical_file.summarized", audit.EntityClinicalFile, "", nil)
		}
		if suggErr == nil {
			applySuggestions(cf, ed, suggestions)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := &Outcome{File: cf}
	if sumErr != nil || suggErr != nil {
		out.Degraded = true
		out.Notice = ai.FallbackMessage
		s.logger.Warn().AnErr("summary_err", sumErr).AnErr("suggest_err", suggErr).
			Str("patient_id", patientID).Msg("clinical file refresh partly degraded")
	}
	return out, nil
}

func renderSections(sec patient.Sections) string {
	var b strings.Builder
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		f := fields[key]
		if v := f.current(&sec); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", key, v)
		}
	}
	return b.String()
}
