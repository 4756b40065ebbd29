package beds

import (
	"context"
	"sort"
	"sync"
)

// Repository stores bed documents. Save is a compare-and-set on the
// version: expected 0 creates the bed, any other value must match the
// stored version. It returns the new version.
type Repository interface {
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, ward string) ([]*Document, error)
	Save(ctx context.Context, bed Bed, expected int64) (int64, error)
}

type memoryRepo struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryRepo() Repository {
	return &memoryRepo{docs: make(map[string]Document)}
}

func (r *memoryRepo) Get(_ context.Context, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, ErrBedNotFound
	}
	return &d, nil
}

func (r *memoryRepo) List(_ context.Context, ward string) ([]*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Document, 0, len(r.docs))
	for _, d := range r.docs {
		if ward != "" && d.Bed.Ward != ward {
			continue
		}
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bed.Ward != out[j].Bed.Ward {
			return out[i].Bed.Ward < out[j].Bed.Ward
		}
		return out[i].Bed.Label < out[j].Bed.Label
	})
	return out, nil
}

func (r *memoryRepo) Save(_ context.Context, bed Bed, expected int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, exists := r.docs[bed.ID]
	switch {
	case expected == 0 && exists:
		return 0, ErrBedExists
	case expected != 0 && !exists:
		return 0, ErrBedNotFound
	case exists && cur.Version != expected:
		return 0, ErrVersionConflict
	}
	next := expected + 1
	r.docs[bed.ID] = Document{Bed: bed, Version: next}
	return next, nil
}
