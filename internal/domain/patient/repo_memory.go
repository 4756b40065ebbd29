package patient

import (
	"context"
	"sync"
)

type memoryRepo struct {
	mu       sync.RWMutex
	docs     map[string]*Document
	watchers map[int]chan change
	nextID   int
}

type change struct {
	id      string
	version int64
}

// NewMemoryRepo keeps documents in process memory. Used for development and
// tests.
func NewMemoryRepo() Repository {
	return &memoryRepo{
		docs:     make(map[string]*Document),
		watchers: make(map[int]chan change),
	}
}

func (r *memoryRepo) Get(_ context.Context, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &Document{Patient: d.Patient.Clone(), Version: d.Version}, nil
}

func (r *memoryRepo) List(_ context.Context) ([]*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, &Document{Patient: d.Patient.Clone(), Version: d.Version})
	}
	return out, nil
}

func (r *memoryRepo) Save(_ context.Context, doc *Document) error {
	r.mu.Lock()
	if cur, ok := r.docs[doc.Patient.ID]; ok && cur.Version >= doc.Version {
		r.mu.Unlock()
		return ErrStaleWrite
	}
	r.docs[doc.Patient.ID] = &Document{Patient: doc.Patient.Clone(), Version: doc.Version}
	ev := change{id: doc.Patient.ID, version: doc.Version}
	for _, ch := range r.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
	r.mu.Unlock()
	return nil
}

func (r *memoryRepo) Watch(ctx context.Context, fn func(id string, version int64)) error {
	ch := make(chan change, 64)
	r.mu.Lock()
	key := r.nextID
	r.nextID++
	r.watchers[key] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.watchers, key)
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-ch:
			fn(ev.id, ev.version)
		}
	}
}
