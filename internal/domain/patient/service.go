package patient

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/ai"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
)

// AIOutcome is returned by operations that depend on the AI gateway.
// Degraded means the gateway failed and Notice holds the text to show in
// place of the generated content; the stored record was left as it was.
type AIOutcome struct {
	Patient  Patient `json:"patient"`
	Degraded bool    `json:"degraded"`
	Notice   string  `json:"notice,omitempty"`
}

// Outcome builds an AIOutcome from the gateway error of the call.
func Outcome(p Patient, aiErr error) *AIOutcome {
	out := &AIOutcome{Patient: p}
	if aiErr != nil {
		out.Degraded = true
		out.Notice = ai.FallbackMessage
	}
	return out
}

// BedReleaser frees the bed held by a discharged patient.
type BedReleaser interface {
	ReleaseForPatient(ctx context.Context, bedID, patientID string) error
}

// Service owns the patient lifecycle: intake, triage, treatment and
// discharge, plus the AI generated handover and overview texts.
type Service struct {
	mut    *Mutator
	ai     ai.Gateway
	beds   BedReleaser
	logger zerolog.Logger
}

func NewService(mut *Mutator, gateway ai.Gateway, logger zerolog.Logger) *Service {
	return &Service{mut: mut, ai: gateway, logger: logger}
}

// SetBedReleaser attaches the bed service used on discharge.
func (s *Service) SetBedReleaser(b BedReleaser) {
	s.beds = b
}

type RegisterInput struct {
	Name           string `json:"name"`
	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	ChiefComplaint string `json:"chiefComplaint"`
}

func (in RegisterInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Invalid("name is required")
	}
	if in.Age < 0 || in.Age > 130 {
		return apperr.Invalid("age must be between 0 and 130")
	}
	if strings.TrimSpace(in.ChiefComplaint) == "" {
		return apperr.Invalid("chiefComplaint is required")
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (Patient, error) {
	if err := in.validate(); err != nil {
		return Patient{}, err
	}
	return s.mut.Create(ctx, func(ed *Edit) (Patient, error) {
		p := Patient{
			ID:             NewPatientID(ed.Now),
			Name:           strings.TrimSpace(in.Name),
			Age:            in.Age,
			Gender:         in.Gender,
			Phone:          in.Phone,
			Address:        in.Address,
			ChiefComplaint: strings.TrimSpace(in.ChiefComplaint),
			RegisteredAt:   ed.Now,
			RegisteredBy:   ed.Actor.ID,
			Status:         StatusWaitingForTriage,
			VitalsHistory:  []VitalsRecord{},
			Orders:         []Order{},
			Rounds:         []Round{},
			Timeline:       []TimelineEvent{},
			ActiveProblems: []string{},
		}
		p.ClinicalFile.Sections.History.ChiefComplaint = p.ChiefComplaint
		ed.Audit("patient.registered", audit.EntityPatient, p.ID, map[string]any{
			"name": p.Name, "chiefComplaint": p.ChiefComplaint,
		})
		return p, nil
	})
}

// advance moves p forward to status. Moving backwards or sideways is
// rejected.
func advance(p *Patient, to Status) error {
	if p.Status == StatusDischarged {
		return ErrDischarged
	}
	if to.rank() <= p.Status.rank() {
		return ErrInvalidTransition
	}
	p.Status = to
	return nil
}

// EnsureActive rejects changes to a discharged patient.
func EnsureActive(p *Patient) error {
	if p.Status == StatusDischarged {
		return ErrDischarged
	}
	return nil
}

type TriageInput struct {
	Level   TriageLevel `json:"level"`
	Reasons []string    `json:"reasons"`
}

// SetTriage records a triage level. The first triage moves the patient to
// Waiting for Doctor; re-triage keeps the current status.
func (s *Service) SetTriage(ctx context.Context, id string, in TriageInput) (Patient, error) {
	if !in.Level.Valid() {
		return Patient{}, apperr.Invalid("level must be Red, Yellow or Green")
	}
	return s.mut.Update(ctx, id, func(p *Patient, ed *Edit) error {
		if err := EnsureActive(p); err != nil {
			return err
		}
		p.Triage = &Triage{
			Level:     in.Level,
			Reasons:   CleanStrings(in.Reasons),
			TriagedBy: ed.Actor.ID,
			TriagedAt: ed.Now,
		}
		if p.Status == StatusWaitingForTriage {
			p.Status = StatusWaitingForDoctor
		}
		ed.Audit("patient.triaged", audit.EntityPatient, p.ID, map[string]any{"level": in.Level})
		return nil
	})
}

func (s *Service) StartTreatment(ctx context.Context, id string) (Patient, error) {
	return s.mut.Update(ctx, id, func(p *Patient, ed *Edit) error {
		if err := advance(p, StatusInTreatment); err != nil {
			return err
		}
		ed.Audit("patient.treatment_started", audit.EntityPatient, p.ID, nil)
		return nil
	})
}

// DemographicsPatch updates only the non-nil fields.
type DemographicsPatch struct {
	Name           *string `json:"name"`
	Age            *int    `json:"age"`
	Gender         *string `json:"gender"`
	Phone          *string `json:"phone"`
	Address        *string `json:"address"`
	ChiefComplaint *string `json:"chiefComplaint"`
}

func (s *Service) UpdateDemographics(ctx context.Context, id string, patch DemographicsPatch) (Patient, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return Patient{}, apperr.Invalid("name cannot be empty")
	}
	if patch.Age != nil && (*patch.Age < 0 || *patch.Age > 130) {
		return Patient{}, apperr.Invalid("age must be between 0 and 130")
	}
	return s.mut.Update(ctx, id, func(p *Patient, ed *Edit) error {
		var changed []string
		set := func(field string, dst *string, v *string) {
			if v != nil && *dst != *v {
				*dst = *v
				changed = append(changed, field)
			}
		}
		set("name", &p.Name, patch.Name)
		set("gender", &p.Gender, patch.Gender)
		set("phone", &p.Phone, patch.Phone)
		set("address", &p.Address, patch.Address)
		set("chiefComplaint", &p.ChiefComplaint, patch.ChiefComplaint)
		if patch.Age != nil && p.Age != *patch.Age {
			p.Age = *patch.Age
			changed = append(changed, "age")
		}
		ed.Audit("patient.updated", audit.EntityPatient, p.ID, map[string]any{"fields": changed})
		return nil
	})
}

func (s *Service) SetActiveProblems(ctx context.Context, id string, problems []string) (Patient, error) {
	return s.mut.Update(ctx, id, func(p *Patient, ed *Edit) error {
		if err := EnsureActive(p); err != nil {
			return err
		}
		p.ActiveProblems = CleanStrings(problems)
		ed.Audit("patient.problems_updated", audit.EntityPatient, p.ID, map[string]any{"count": len(p.ActiveProblems)})
		return nil
	})
}

// GenerateHandover asks the AI gateway for a shift handover and stores it.
func (s *Service) GenerateHandover(ctx context.Context, id string) (*AIOutcome, error) {
	return s.generateText(ctx, id, "handover", s.ai.Handover, func(p *Patient, text string) {
		p.HandoverSummary = text
	})
}

// GenerateOverview asks the AI gateway for a patient overview and stores it.
func (s *Service) GenerateOverview(ctx context.Context, id string) (*AIOutcome, error) {
	return s.generateText(ctx, id, "overview", s.ai.Overview, func(p *Patient, text string) {
		p.Overview = text
	})
}

func (s *Service) generateText(ctx context.Context, id, what string,
	call func(context.Context, any) (string, error), apply func(*Patient, string)) (*AIOutcome, error) {
	if _, err := s.mut.Actor(ctx); err != nil {
		return nil, err
	}
	snap, err := s.mut.Store().Get(id)
	if err != nil {
		return nil, err
	}

	text, aiErr := call(ctx, snap)
	if aiErr != nil {
		s.logger.Warn().Err(aiErr).Str("patient_id", id).Str("op", what).Msg("ai generation degraded")
		return Outcome(snap, aiErr), nil
	}

	p, err := s.mut.Update(ctx, id, func(p *Patient, ed *Edit) error {
		apply(p, text)
		ed.Audit("patient."+what+"_generated", audit.EntityPatient, p.ID, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Outcome(p, nil), nil
}

type DischargeInput struct {
	Notes string `json:"notes"`
}

// Discharge compiles the discharge summary and a final overview in
// parallel, moves the patient to Discharged and frees their bed. A gateway
// failure leaves the summary empty and marks the outcome degraded; the
// discharge itself still happens.
func (s *Service) Discharge(ctx context.Context, id string, in DischargeInput) (*AIOutcome, error) {
	if _, err := s.mut.Actor(ctx); err != nil {
		return nil, err
	}
	snap, err := s.mut.Store().Get(id)
	if err != nil {
		return nil, err
	}
	if snap.Status == StatusDischarged {
		return nil, ErrInvalidTransition
	}

	var (
		summary, overview string
		sumErr, ovErr     error
		g                 errgroup.Group
	)
	// Each text is stored on its own, so a failed call must not cancel the
	// other: the goroutines report through sumErr and ovErr, not the group.
	g.Go(func() error {
		summary, sumErr = s.ai.CompileDischargeSummary(ctx, snap)
		return nil
	})
	g.Go(func() error {
		overview, ovErr = s.ai.Overview(ctx, snap)
		return nil
	})
	_ = g.Wait()
	if sumErr != nil {
		s.logger.Warn().Err(sumErr).Str("patient_id", id).Msg("discharge summary degraded")
	}

	var bedID string
	p, err := s.mut.Update(ctx, id, func(p *Patient, ed *Edit) error {
		if err := advance(p, StatusDischarged); err != nil {
			return err
		}
		now := ed.Now
		p.DischargedAt = &now
		bedID, p.BedID = p.BedID, ""
		if sumErr == nil {
			p.DischargeSummary = summary
		}
		if ovErr == nil {
			p.Overview = overview
		}
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			p.Timeline = slices.Insert(p.Timeline, 0, TimelineEvent{
				ID:         NewID("EVT"),
				Type:       EventNote,
				Timestamp:  now,
				AuthorID:   ed.Actor.ID,
				AuthorName: ed.Actor.Name,
				Note:       "Discharge: " + notes,
			})
		}
		ed.Audit("patient.discharged", audit.EntityPatient, p.ID, map[string]any{
			"bedId": bedID, "summaryGenerated": sumErr == nil,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := Outcome(p, sumErr)
	if bedID != "" && s.beds != nil {
		if err := s.beds.ReleaseForPatient(context.WithoutCancel(ctx), bedID, id); err != nil {
			s.logger.Error().Err(err).Str("patient_id", id).Str("bed_id", bedID).Msg("release bed after discharge")
			out.Notice = strings.TrimSpace(out.Notice + " Bed " + bedID + " could not be released.")
		}
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, id string) (Patient, error) {
	return s.mut.Store().Get(id)
}

// List returns patients, optionally only those in status.
func (s *Service) List(ctx context.Context, status Status) []Patient {
	all := s.mut.Store().List()
	if status == "" {
		return all
	}
	return slices.DeleteFunc(all, func(p Patient) bool { return p.Status != status })
}

func (s *Service) SyncStatus(ctx context.Context, id string) (SyncStatus, error) {
	return s.mut.Store().SyncStatus(id)
}

func (s *Service) UnsyncedStatuses(ctx context.Context) []SyncStatus {
	return s.mut.Store().UnsyncedStatuses()
}

func (s *Service) DismissSyncError(ctx context.Context, id string) error {
	if _, err := s.mut.Actor(ctx); err != nil {
		return err
	}
	return s.mut.Store().DismissSyncError(id)
}

func (s *Service) Resync(ctx context.Context, id string) error {
	if _, err := s.mut.Actor(ctx); err != nil {
		return err
	}
	return s.mut.Store().Resync(ctx, id)
}

// CleanStrings trims entries and drops blanks, returning a non-nil slice.
func CleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
