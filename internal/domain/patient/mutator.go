package patient

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
)

// Edit is handed to a Reducer. It carries the attribution for the change
// and collects the audit entries to write once the change is committed.
type Edit struct {
	Actor     *auth.Actor
	Now       time.Time
	patientID string
	entries   []audit.Entry
}

// Audit queues an audit entry for this change.
func (e *Edit) Audit(action, entity, entityID string, payload any) {
	e.entries = append(e.entries, audit.NewEntry(e.Actor, e.patientID, action, entity, entityID, payload))
}

// Reducer edits p in place. p is a private deep copy; returning an error
// discards it. A reducer with nothing to do returns ErrNoChange, which
// leaves the version alone and writes no audit entries.
type Reducer func(p *Patient, ed *Edit) error

// Mutator is the one write path for patient reducers: it resolves the
// acting user, applies the reducer through the Store and appends the audit
// entries the reducer reported.
type Mutator struct {
	store    *Store
	sessions auth.SessionProvider
	audit    audit.Recorder
	logger   zerolog.Logger
	now      func() time.Time
}

func NewMutator(store *Store, sessions auth.SessionProvider, recorder audit.Recorder, logger zerolog.Logger) *Mutator {
	return &Mutator{store: store, sessions: sessions, audit: recorder, logger: logger, now: time.Now}
}

func (m *Mutator) Store() *Store { return m.store }

// Actor returns the current user or auth.ErrUnauthenticated.
func (m *Mutator) Actor(ctx context.Context) (*auth.Actor, error) {
	return auth.RequireActor(ctx, m.sessions)
}

// Update applies r to patient id. Nothing changes when no user is signed in.
func (m *Mutator) Update(ctx context.Context, id string, r Reducer) (Patient, error) {
	actor, err := m.Actor(ctx)
	if err != nil {
		return Patient{}, err
	}

	var ed *Edit
	p, err := m.store.Mutate(ctx, id, func(p Patient) (Patient, error) {
		ed = &Edit{Actor: actor, Now: m.now().UTC(), patientID: id}
		if err := r(&p, ed); err != nil {
			if errors.Is(err, ErrNoChange) {
				ed.entries = nil
			}
			return Patient{}, err
		}
		return p, nil
	})
	if err != nil {
		return Patient{}, err
	}

	m.record(ctx, ed.entries...)
	return p, nil
}

// Create registers a new patient document on behalf of the current user.
func (m *Mutator) Create(ctx context.Context, build func(ed *Edit) (Patient, error)) (Patient, error) {
	actor, err := m.Actor(ctx)
	if err != nil {
		return Patient{}, err
	}
	ed := &Edit{Actor: actor, Now: m.now().UTC()}
	p, err := build(ed)
	if err != nil {
		return Patient{}, err
	}
	for i := range ed.entries {
		ed.entries[i].PatientID = p.ID
	}

	created, err := m.store.Create(ctx, p)
	if err != nil {
		return Patient{}, err
	}
	m.record(ctx, ed.entries...)
	return created, nil
}

// Record writes audit entries for changes made outside Update, such as bed
// documents.
func (m *Mutator) Record(ctx context.Context, entries ...audit.Entry) {
	m.record(ctx, entries...)
}

func (m *Mutator) record(ctx context.Context, entries ...audit.Entry) {
	// The change is committed; the audit write outlives a cancelled request.
	audit.Log(context.WithoutCancel(ctx), m.audit, m.logger, entries...)
}
