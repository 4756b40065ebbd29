package patient

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/metrics"
)

// ChangeKind says why a Change was published.
type ChangeKind string

const (
	ChangeCreated   ChangeKind = "created"
	ChangeUpdated   ChangeKind = "updated"
	ChangeRefreshed ChangeKind = "refreshed"
)

// Change is delivered to subscribers after a record is replaced. Patient is
// a private copy shared by all subscribers and must be treated as read-only.
type Change struct {
	Kind      ChangeKind
	PatientID string
	Version   int64
	Patient   Patient
}

// SyncStatus reports whether the in-memory record has reached the backing
// store.
type SyncStatus struct {
	PatientID        string     `json:"patientId"`
	Version          int64      `json:"version"`
	PersistedVersion int64      `json:"persistedVersion"`
	Pending          bool       `json:"pending"`
	LastError        string     `json:"lastError,omitempty"`
	FailedVersion    int64      `json:"failedVersion,omitempty"`
	FailedAt         *time.Time `json:"failedAt,omitempty"`
}

type syncFailure struct {
	version int64
	err     string
	at      time.Time
}

type record struct {
	mu        sync.Mutex
	patient   Patient
	version   int64
	persisted int64
	failure   *syncFailure
	nextTurn  uint64

	// Changes are published in the order their turns were taken under mu.
	turnMu  sync.Mutex
	turn    *sync.Cond
	serving uint64
}

func newRecord(p Patient, version, persisted int64) *record {
	r := &record{patient: p, version: version, persisted: persisted}
	r.turn = sync.NewCond(&r.turnMu)
	return r
}

// takeTurnLocked reserves the record's next publish slot. Callers hold mu.
func (r *record) takeTurnLocked() uint64 {
	t := r.nextTurn
	r.nextTurn++
	return t
}

func (r *record) statusLocked(id string) SyncStatus {
	st := SyncStatus{
		PatientID:        id,
		Version:          r.version,
		PersistedVersion: r.persisted,
		Pending:          r.persisted < r.version,
	}
	if r.failure != nil {
		at := r.failure.at
		st.LastError = r.failure.err
		st.FailedVersion = r.failure.version
		st.FailedAt = &at
	}
	return st
}

type StoreOptions struct {
	// PersistTimeout bounds one document write.
	PersistTimeout time.Duration
}

// Store holds every admitted patient in memory and mirrors changes to a
// Repository in the background. Each patient has its own critical section;
// different patients never contend.
type Store struct {
	repo   Repository
	logger zerolog.Logger
	queue  *persistQueue
	now    func() time.Time

	mu      sync.RWMutex
	records map[string]*record

	subMu   sync.RWMutex
	subs    map[int]func(Change)
	nextSub int
}

func NewStore(repo Repository, logger zerolog.Logger, opts StoreOptions) *Store {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	s := &Store{
		repo:    repo,
		logger:  logger.With().Str("component", "patient_store").Logger(),
		now:     time.Now,
		records: make(map[string]*record),
		subs:    make(map[int]func(Change)),
	}
	s.queue = newPersistQueue(repo.Save, opts.PersistTimeout, s.onPersisted)
	return s
}

// Load fills the store from the repository. Records already in memory with
// an equal or newer version are kept.
func (s *Store) Load(ctx context.Context) error {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if cur, ok := s.records[d.Patient.ID]; ok && cur.version >= d.Version {
			continue
		}
		s.records[d.Patient.ID] = newRecord(d.Patient, d.Version, d.Version)
	}
	s.logger.Info().Int("patients", len(docs)).Msg("patient store loaded")
	return nil
}

func (s *Store) lookup(id string) *record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[id]
}

// Create adds a new patient at version 1.
func (s *Store) Create(ctx context.Context, p Patient) (Patient, error) {
	if err := ctx.Err(); err != nil {
		return Patient{}, err
	}
	if !ValidID(p.ID) {
		return Patient{}, errors.New("patient id must start with PAT-")
	}

	s.mu.Lock()
	if _, exists := s.records[p.ID]; exists {
		s.mu.Unlock()
		return Patient{}, ErrDuplicateID
	}
	stored := p.Clone()
	rec := newRecord(stored, 1, 0)
	turn := rec.takeTurnLocked()
	s.records[p.ID] = rec
	s.mu.Unlock()

	metrics.RecordMutation(nil)
	s.persist(Document{Patient: stored, Version: 1})
	s.publishInTurn(rec, turn, ChangeCreated, p.ID, 1, stored)
	return stored.Clone(), nil
}

// Mutate replaces patient id with f applied to a deep copy of the current
// record. f runs inside the patient's critical section, so it always sees
// the latest state and must not block or call back into the store for the
// same patient. An error from f, a cancelled ctx or an attempt to change the
// id leaves the record untouched. When f returns ErrNoChange the current
// record is returned without a new version. On success the new record is
// queued for persistence; a later write failure never reverts it.
func (s *Store) Mutate(ctx context.Context, id string, f func(Patient) (Patient, error)) (Patient, error) {
	rec := s.lookup(id)
	if rec == nil {
		metrics.RecordMutation(ErrPatientNotFound)
		return Patient{}, ErrPatientNotFound
	}

	rec.mu.Lock()
	if err := ctx.Err(); err != nil {
		rec.mu.Unlock()
		metrics.RecordMutation(err)
		return Patient{}, err
	}
	next, err := f(rec.patient.Clone())
	if errors.Is(err, ErrNoChange) {
		current := rec.patient.Clone()
		rec.mu.Unlock()
		return current, nil
	}
	if err == nil && next.ID != id {
		err = ErrImmutableID
	}
	if err != nil {
		rec.mu.Unlock()
		metrics.RecordMutation(err)
		return Patient{}, err
	}
	rec.patient = next
	rec.version++
	version := rec.version
	turn := rec.takeTurnLocked()
	rec.mu.Unlock()

	metrics.RecordMutation(nil)
	s.persist(Document{Patient: next, Version: version})
	s.publishInTurn(rec, turn, ChangeUpdated, id, version, next)
	return next.Clone(), nil
}

// Get returns a copy of the current record.
func (s *Store) Get(id string) (Patient, error) {
	p, _, err := s.Snapshot(id)
	return p, err
}

// Snapshot returns a copy of the current record and its version.
func (s *Store) Snapshot(id string) (Patient, int64, error) {
	rec := s.lookup(id)
	if rec == nil {
		return Patient{}, 0, ErrPatientNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.patient.Clone(), rec.version, nil
}

// List returns copies of every patient, most recently registered first.
func (s *Store) List() []Patient {
	s.mu.RLock()
	recs := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	out := make([]Patient, 0, len(recs))
	for _, r := range recs {
		r.mu.Lock()
		out = append(out, r.patient.Clone())
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].RegisteredAt.After(out[j].RegisteredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Subscribe registers fn for every Change and returns a function that
// removes it. fn runs on the mutating goroutine after the patient's lock is
// released and may read the store, but must not block or mutate. Changes to
// one patient reach fn in version order; changes to different patients may
// interleave.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	key := s.nextSub
	s.nextSub++
	s.subs[key] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, key)
		s.subMu.Unlock()
	}
}

// publishInTurn waits until every change to rec that took an earlier turn
// has been published, then publishes this one.
func (s *Store) publishInTurn(rec *record, turn uint64, kind ChangeKind, id string, version int64, p Patient) {
	rec.turnMu.Lock()
	for rec.serving != turn {
		rec.turn.Wait()
	}
	rec.turnMu.Unlock()

	s.publish(kind, id, version, p)

	rec.turnMu.Lock()
	rec.serving++
	rec.turn.Broadcast()
	rec.turnMu.Unlock()
}

func (s *Store) publish(kind ChangeKind, id string, version int64, p Patient) {
	s.subMu.RLock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()
	if len(fns) == 0 {
		return
	}

	ch := Change{Kind: kind, PatientID: id, Version: version, Patient: p.Clone()}
	for _, fn := range fns {
		fn(ch)
	}
}

func (s *Store) persist(doc Document) {
	if !s.queue.enqueue(doc) {
		s.onPersisted(doc.Patient.ID, doc.Version, ErrStoreClosed)
	}
}

func (s *Store) onPersisted(id string, version int64, err error) {
	rec := s.lookup(id)
	if rec == nil {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch {
	case err == nil:
		if version > rec.persisted {
			rec.persisted = version
		}
		if rec.failure != nil && rec.failure.version <= version {
			rec.failure = nil
		}
	case errors.Is(err, ErrStaleWrite) && version < rec.version:
		// A newer local version is queued, or a refresh already adopted a
		// newer stored copy.
	default:
		msg := err.Error()
		if errors.Is(err, ErrStaleWrite) {
			msg = "a newer copy of this patient was stored elsewhere; retry sync to keep this copy"
		}
		rec.failure = &syncFailure{version: version, err: msg, at: s.now().UTC()}
		s.logger.Error().Err(err).
			Str("patient_id", id).
			Int64("version", version).
			Msg("patient document write failed")
	}
}

// SyncStatus reports the persistence state of one patient.
func (s *Store) SyncStatus(id string) (SyncStatus, error) {
	rec := s.lookup(id)
	if rec == nil {
		return SyncStatus{}, ErrPatientNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.statusLocked(id), nil
}

// UnsyncedStatuses lists every patient with a pending write or a recorded
// failure.
func (s *Store) UnsyncedStatuses() []SyncStatus {
	s.mu.RLock()
	ids := make([]string, 0, len(s.records))
	recs := make([]*record, 0, len(s.records))
	for id, r := range s.records {
		ids = append(ids, id)
		recs = append(recs, r)
	}
	s.mu.RUnlock()

	out := []SyncStatus{}
	for i, r := range recs {
		r.mu.Lock()
		st := r.statusLocked(ids[i])
		r.mu.Unlock()
		if st.Pending || st.LastError != "" {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	return out
}

// DismissSyncError clears the recorded failure. The record stays pending
// until a later write succeeds.
func (s *Store) DismissSyncError(id string) error {
	rec := s.lookup(id)
	if rec == nil {
		return ErrPatientNotFound
	}
	rec.mu.Lock()
	rec.failure = nil
	rec.mu.Unlock()
	return nil
}

// Resync queues the current record again. When the stored copy is at the
// same or a newer version, the local version jumps past it so the local
// copy wins.
func (s *Store) Resync(ctx context.Context, id string) error {
	rec := s.lookup(id)
	if rec == nil {
		return ErrPatientNotFound
	}

	var stored int64
	switch doc, err := s.repo.Get(ctx, id); {
	case err == nil:
		stored = doc.Version
	case errors.Is(err, ErrPatientNotFound):
	default:
		return err
	}

	rec.mu.Lock()
	if stored >= rec.version {
		rec.version = stored + 1
	} else if rec.persisted >= rec.version && rec.failure == nil {
		rec.mu.Unlock()
		return nil
	}
	rec.failure = nil
	doc := Document{Patient: rec.patient, Version: rec.version}
	rec.mu.Unlock()

	s.persist(doc)
	return nil
}

// Refresh adopts the stored copy of id when it is newer than the record in
// memory, or loads it when the patient is not known yet. It is driven by
// Follow for writes made by other instances.
func (s *Store) Refresh(ctx context.Context, id string, version int64) error {
	rec := s.lookup(id)
	if rec != nil && version > 0 {
		rec.mu.Lock()
		current := rec.version
		rec.mu.Unlock()
		if version <= current {
			return nil
		}
	}

	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if rec == nil {
		s.mu.Lock()
		if _, exists := s.records[id]; exists {
			s.mu.Unlock()
			return s.Refresh(ctx, id, doc.Version)
		}
		rec = newRecord(doc.Patient, doc.Version, doc.Version)
		turn := rec.takeTurnLocked()
		s.records[id] = rec
		s.mu.Unlock()
		s.publishInTurn(rec, turn, ChangeCreated, id, doc.Version, doc.Patient)
		return nil
	}

	rec.mu.Lock()
	if doc.Version <= rec.version {
		rec.mu.Unlock()
		return nil
	}
	rec.patient = doc.Patient
	rec.version = doc.Version
	rec.persisted = doc.Version
	rec.failure = nil
	turn := rec.takeTurnLocked()
	rec.mu.Unlock()

	s.logger.Debug().Str("patient_id", id).Int64("version", doc.Version).Msg("adopted newer stored copy")
	s.publishInTurn(rec, turn, ChangeRefreshed, id, doc.Version, doc.Patient)
	return nil
}

// Follow applies changes written by other instances until ctx is done,
// re-establishing the feed with backoff when it fails.
func (s *Store) Follow(ctx context.Context) error {
	backoff := time.Second
	for {
		err := s.repo.Watch(ctx, func(id string, version int64) {
			if err := s.Refresh(ctx, id, version); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Str("patient_id", id).Msg("refresh from change feed failed")
			}
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("patient change feed interrupted")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// Flush waits until no writes are queued or in flight.
func (s *Store) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for s.queue.backlog() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting writes and drains the queue.
func (s *Store) Close(ctx context.Context) error {
	return s.queue.close(ctx)
}
