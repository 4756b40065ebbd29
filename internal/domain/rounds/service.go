package rounds

import (
	"context"
	"slices"

	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/ai"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
)

var (
	ErrRoundNotFound = apperr.Define(apperr.ErrNotFound, "round not found")
	ErrRoundSigned   = apperr.Define(apperr.ErrConflict, "round is already signed")
)

// Service manages ward round notes. A patient has at most one draft round;
// signing is final.
type Service struct {
	mut    *patient.Mutator
	ai     ai.Gateway
	logger zerolog.Logger
}

func NewService(mut *patient.Mutator, gateway ai.Gateway, logger zerolog.Logger) *Service {
	return &Service{mut: mut, ai: gateway, logger: logger}
}

// CreateDraftRound returns the patient's draft round, creating an empty one
// when none exists. Repeated calls return the same round.
func (s *Service) CreateDraftRound(ctx context.Context, patientID string) (patient.Round, error) {
	if _, err := s.mut.Actor(ctx); err != nil {
		return patient.Round{}, err
	}
	snap, err := s.mut.Store().Get(patientID)
	if err != nil {
		return patient.Round{}, err
	}
	if i := snap.DraftRound(); i >= 0 {
		return snap.Rounds[i], nil
	}

	var round patient.Round
	_, err = s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		// Another request may have opened a draft since the snapshot.
		if i := p.DraftRound(); i >= 0 {
			round = p.Rounds[i]
			return patient.ErrNoChange
		}
		if err := patient.EnsureActive(p); err != nil {
			return err
		}
		round = patient.Round{
			ID:        patient.NewID("RND"),
			PatientID: p.ID,
			Status:    patient.RoundDraft,
			Plan:      patient.RoundPlan{LinkedOrders: []string{}},
			CreatedAt: ed.Now,
			CreatedBy: ed.Actor.ID,
			UpdatedAt: ed.Now,
		}
		p.Rounds = slices.Insert(p.Rounds, 0, round)
		ed.Audit("round.created", audit.EntityRound, round.ID, nil)
		return nil
	})
	if err != nil {
		return patient.Round{}, err
	}
	return round, nil
}

// RoundPatch changes only the non-nil fields.
type RoundPatch struct {
	Subjective   *string   `json:"subjective"`
	Objective    *string   `json:"objective"`
	Assessment   *string   `json:"assessment"`
	PlanNotes    *string   `json:"planNotes"`
	LinkedOrders *[]string `json:"linkedOrders"`
}

// UpdateDraftRound merges patch into a draft round.
func (s *Service) UpdateDraftRound(ctx context.Context, patientID, roundID string, patch RoundPatch) (patient.Round, error) {
	var round patient.Round
	_, err := s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		i, err := draftIndex(p, roundID)
		if err != nil {
			return err
		}
		r := p.Rounds[i]
		var fields []string
		set := func(name string, dst *string, v *string) {
			if v != nil {
				*dst = *v
				fields = append(fields, name)
			}
		}
		set("subjective", &r.Subjective, patch.Subjective)
		set("objective", &r.Objective, patch.Objective)
		set("assessment", &r.Assessment, patch.Assessment)
		set("planNotes", &r.Plan.Notes, patch.PlanNotes)
		if patch.LinkedOrders != nil {
			linked := []string{}
			for _, id := range patient.CleanStrings(*patch.LinkedOrders) {
				if p.OrderIndex(id) < 0 {
					return apperr.Invalid("linked order %s does not exist", id)
				}
				if !slices.Contains(linked, id) {
					linked = append(linked, id)
				}
			}
			r.Plan.LinkedOrders = linked
			fields = append(fields, "linkedOrders")
		}
		r.UpdatedAt = ed.Now
		p.Rounds[i] = r
		round = r
		ed.Audit("round.updated", audit.EntityRound, r.ID, map[string]any{"fields": fields})
		return nil
	})
	if err != nil {
		return patient.Round{}, err
	}
	return round, nil
}

func draftIndex(p *patient.Patient, roundID string) (int, error) {
	i := p.RoundIndex(roundID)
	if i < 0 {
		return -1, ErrRoundNotFound
	}
	if p.Rounds[i].Status != patient.RoundDraft {
		return -1, ErrRoundSigned
	}
	return i, nil
}

// SignOffRound finalizes a draft round under the current user's name.
func (s *Service) SignOffRound(ctx context.Context, patientID, roundID string) (patient.Round, error) {
	var round patient.Round
	_, err := s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		i, err := draftIndex(p, roundID)
		if err != nil {
			return err
		}
		r := p.Rounds[i]
		now := ed.Now
		r.Status = patient.RoundSigned
		r.SignedBy = ed.Actor.ID
		r.SignedAt = &now
		r.UpdatedAt = now
		p.Rounds[i] = r
		round = r
		ed.Audit("round.signed", audit.EntityRound, r.ID, map[string]any{"linkedOrders": len(r.Plan.LinkedOrders)})
		return nil
	})
	if err != nil {
		return patient.Round{}, err
	}
	return round, nil
}

// CrossCheckResult separates AI findings from gateway failure. Degraded
// means the check could not run; Findings is then empty.
type CrossCheckResult struct {
	Findings []string `json:"findings"`
	Degraded bool     `json:"degraded"`
	Notice   string   `json:"notice,omitempty"`
}

// CrossCheckRound asks the AI gateway for contradictions between a round
// and the rest of the record. Findings are kept on draft rounds only; a
// signed round is returned as checked but never edited. An unknown patient
// or round is an error, never a finding.
func (s *Service) CrossCheckRound(ctx context.Context, patientID, roundID string) (*CrossCheckResult, error) {
	if _, err := s.mut.Actor(ctx); err != nil {
		return nil, err
	}
	snap, err := s.mut.Store().Get(patientID)
	if err != nil {
		return nil, err
	}
	i := snap.RoundIndex(roundID)
	if i < 0 {
		return nil, ErrRoundNotFound
	}

	findings, aiErr := s.ai.CrossCheckRound(ctx, snap, snap.Rounds[i])
	if aiErr != nil {
		s.logger.Warn().Err(aiErr).Str("patient_id", patientID).Str("round_id", roundID).Msg("round cross-check degraded")
		return &CrossCheckResult{Findings: []string{}, Degraded: true, Notice: ai.FallbackMessage}, nil
	}
	if findings == nil {
		findings = []string{}
	}
	if snap.Rounds[i].Status != patient.RoundDraft {
		return &CrossCheckResult{Findings: findings}, nil
	}

	_, err = s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		j := p.RoundIndex(roundID)
		if j < 0 {
			return ErrRoundNotFound
		}
		if p.Rounds[j].Status != patient.RoundDraft {
			// Signed while the gateway was running.
			return patient.ErrNoChange
		}
		p.Rounds[j].Contradictions = slices.Clone(findings)
		ed.Audit("round.cross_checked", audit.EntityRound, roundID, map[string]any{"findings": len(findings)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CrossCheckResult{Findings: findings}, nil
}

func (s *Service) List(ctx context.Context, patientID string) ([]patient.Round, error) {
	p, err := s.mut.Store().Get(patientID)
	if err != nil {
		return nil, err
	}
	if p.Rounds == nil {
		return []patient.Round{}, nil
	}
	return p.Rounds, nil
}

func (s *Service) Get(ctx context.Context, patientID, roundID string) (patient.Round, error) {
	p, err := s.mut.Store().Get(patientID)
	if err != nil {
		return patient.Round{}, err
	}
	i := p.RoundIndex(roundID)
	if i < 0 {
		return patient.Round{}, ErrRoundNotFound
	}
	return p.Rounds[i], nil
}
