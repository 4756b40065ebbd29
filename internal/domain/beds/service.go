package beds

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/metrics"
)

// releaseAttempts bounds the retries of a release that lost a version race.
const releaseAttempts = 3

// Service keeps bed documents and the patient's BedID in step. The bed is
// written first; if the patient step then fails the bed write is undone.
type Service struct {
	repo   Repository
	mut    *patient.Mutator
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, mut *patient.Mutator, logger zerolog.Logger) *Service {
	return &Service{repo: repo, mut: mut, logger: logger.With().Str("component", "beds").Logger(), now: time.Now}
}

type CreateInput struct {
	Ward  string `json:"ward"`
	Label string `json:"label"`
}

func (s *Service) CreateBed(ctx context.Context, in CreateInput) (*Document, error) {
	actor, err := s.mut.Actor(ctx)
	if err != nil {
		return nil, err
	}
	in.Ward = strings.TrimSpace(in.Ward)
	in.Label = strings.TrimSpace(in.Label)
	if in.Ward == "" || in.Label == "" {
		return nil, apperr.Invalid("ward and label are required")
	}
	bed := Bed{
		ID:        patient.NewID("BED"),
		Ward:      in.Ward,
		Label:     in.Label,
		Status:    StatusAvailable,
		UpdatedAt: s.now().UTC(),
		UpdatedBy: actor.ID,
	}
	version, err := s.repo.Save(ctx, bed, 0)
	if err != nil {
		return nil, err
	}
	s.mut.Record(ctx, audit.NewEntry(actor, "", "bed.created", audit.EntityBed, bed.ID, map[string]any{
		"ward": bed.Ward, "label": bed.Label,
	}))
	return &Document{Bed: bed, Version: version}, nil
}

// ListBeds returns beds in ward, optionally only those in status.
func (s *Service) ListBeds(ctx context.Context, ward string, status Status) ([]*Document, error) {
	docs, err := s.repo.List(ctx, ward)
	if err != nil {
		return nil, err
	}
	out := make([]*Document, 0, len(docs))
	for _, d := range docs {
		if status == "" || d.Bed.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) GetBed(ctx context.Context, id string) (*Document, error) {
	return s.repo.Get(ctx, id)
}

// AssignBed puts patientID in bed bedID.
func (s *Service) AssignBed(ctx context.Context, bedID, patientID string) (*Document, error) {
	actor, err := s.mut.Actor(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.mut.Store().Get(patientID)
	if err != nil {
		return nil, err
	}
	if err := patient.EnsureActive(&p); err != nil {
		return nil, err
	}
	if p.BedID != "" {
		return nil, ErrPatientHasBed
	}

	doc, err := s.repo.Get(ctx, bedID)
	if err != nil {
		return nil, err
	}
	if doc.Bed.Status != StatusAvailable {
		return nil, ErrBedOccupied
	}

	prev := doc.Bed
	next := prev
	next.Status = StatusOccupied
	next.PatientID = patientID
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actor.ID
	version, err := s.repo.Save(ctx, next, doc.Version)
	if err != nil {
		return nil, err
	}

	_, err = s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		if err := patient.EnsureActive(p); err != nil {
			return err
		}
		if p.BedID != "" {
			return ErrPatientHasBed
		}
		p.BedID = bedID
		ed.Audit("bed.assigned", audit.EntityBed, bedID, map[string]any{"ward": next.Ward, "label": next.Label})
		return nil
	})
	if err != nil {
		s.compensate(ctx, prev, version, err)
		return nil, err
	}
	return &Document{Bed: next, Version: version}, nil
}

// compensate restores a bed whose patient step failed.
func (s *Service) compensate(ctx context.Context, prev Bed, version int64, cause error) {
	metrics.RecordBedCompensation()
	prev.UpdatedAt = s.now().UTC()
	if _, err := s.repo.Save(context.WithoutCancel(ctx), prev, version); err != nil {
		s.logger.Error().Err(err).AnErr("cause", cause).Str("bed_id", prev.ID).
			Msg("bed compensation failed; bed needs manual release")
		return
	}
	s.logger.Warn().AnErr("cause", cause).Str("bed_id", prev.ID).Msg("bed assignment rolled back")
}

// ReleaseBed frees an occupied bed for cleaning and clears the patient's
// BedID.
func (s *Service) ReleaseBed(ctx context.Context, bedID string) (*Document, error) {
	actor, err := s.mut.Actor(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.Get(ctx, bedID)
	if err != nil {
		return nil, err
	}
	if doc.Bed.Status != StatusOccupied {
		return nil, ErrBedNotOccupied
	}
	patientID := doc.Bed.PatientID
	released, err := s.saveReleased(ctx, doc, actor)
	if err != nil {
		return nil, err
	}

	_, err = s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		if p.BedID == bedID {
			p.BedID = ""
		}
		ed.Audit("bed.released", audit.EntityBed, bedID, nil)
		return nil
	})
	if errors.Is(err, patient.ErrPatientNotFound) {
		s.mut.Record(ctx, audit.NewEntry(actor, patientID, "bed.released", audit.EntityBed, bedID, nil))
		err = nil
	}
	if err != nil {
		// The bed is free either way; a stale BedID only blocks the next
		// assignment for this patient.
		s.logger.Error().Err(err).Str("bed_id", bedID).Str("patient_id", patientID).Msg("clear patient bed")
	}
	return released, nil
}

// ReleaseForPatient frees bedID if patientID still holds it. The patient
// document has already been updated by the caller.
func (s *Service) ReleaseForPatient(ctx context.Context, bedID, patientID string) error {
	actor, err := s.mut.Actor(ctx)
	if err != nil {
		return err
	}
	for attempt := 1; ; attempt++ {
		doc, err := s.repo.Get(ctx, bedID)
		if err != nil {
			return err
		}
		if doc.Bed.Status != StatusOccupied || doc.Bed.PatientID != patientID {
			return nil
		}
		_, err = s.saveReleased(ctx, doc, actor)
		if errors.Is(err, ErrVersionConflict) && attempt < releaseAttempts {
			continue
		}
		if err != nil {
			return err
		}
		s.mut.Record(ctx, audit.NewEntry(actor, patientID, "bed.released", audit.EntityBed, bedID, map[string]any{"reason": "discharge"}))
		return nil
	}
}

func (s *Service) saveReleased(ctx context.Context, doc *Document, actor *auth.Actor) (*Document, error) {
	next := doc.Bed
	next.Status = StatusCleaning
	next.PatientID = ""
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actor.ID
	version, err := s.repo.Save(ctx, next, doc.Version)
	if err != nil {
		return nil, err
	}
	return &Document{Bed: next, Version: version}, nil
}

// MarkReady returns a cleaned bed to the available pool.
func (s *Service) MarkReady(ctx context.Context, bedID string) (*Document, error) {
	actor, err := s.mut.Actor(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := s.repo.Get(ctx, bedID)
	if err != nil {
		return nil, err
	}
	if doc.Bed.Status != StatusCleaning {
		return nil, ErrBedNotCleaning
	}
	next := doc.Bed
	next.Status = StatusAvailable
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actor.ID
	version, err := s.repo.Save(ctx, next, doc.Version)
	if err != nil {
		return nil, err
	}
	s.mut.Record(ctx, audit.NewEntry(actor, "", "bed.ready", audit.EntityBed, bedID, nil))
	return &Document{Bed: next, Version: version}, nil
}
