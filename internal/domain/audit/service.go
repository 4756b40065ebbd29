package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/metrics"
)

// Recorder is what the domain services depend on.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Service stamps entries with an id and a strictly increasing timestamp
// before appending them.
type Service struct {
	repo   Repository
	logger zerolog.Logger

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// nextTimestamp never returns a value at or before the previous one; a tie
// or a clock step backwards is resolved by adding one microsecond.
func (s *Service) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC().Truncate(time.Microsecond)
	if !ts.After(s.last) {
		ts = s.last.Add(time.Microsecond)
	}
	s.last = ts
	return ts
}

func (s *Service) Record(ctx context.Context, e Entry) error {
	if e.UserID == "" {
		return fmt.Errorf("audit entry requires a user")
	}
	if e.Action == "" || e.Entity == "" {
		return fmt.Errorf("audit entry requires action and entity")
	}
	e.ID = uuid.New()
	e.Timestamp = s.nextTimestamp()

	if err := s.repo.Append(ctx, &e); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	metrics.RecordAuditEntry(e.Action)
	return nil
}

// RecordAll appends entries in order and stops at the first failure.
func (s *Service) RecordAll(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Entry, int, error) {
	return s.repo.List(ctx, Filter{PatientID: patientID}, limit, offset)
}

// Log records entries, logging rather than returning failures. A mutation
// that already happened is not undone because its audit write failed.
func Log(ctx context.Context, r Recorder, logger zerolog.Logger, entries ...Entry) {
	if r == nil {
		return
	}
	for _, e := range entries {
		if err := r.Record(ctx, e); err != nil {
			logger.Error().Err(err).
				Str("action", e.Action).
				Str("patient_id", e.PatientID).
				Str("entity_id", e.EntityID).
				Msg("audit write failed")
		}
	}
}
