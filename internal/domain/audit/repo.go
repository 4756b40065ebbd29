package audit

import (
	"context"
	"slices"
	"sync"
)

// Repository stores audit entries. There is no update or delete.
type Repository interface {
	Append(ctx context.Context, e *Entry) error
	// List returns matching entries newest first plus the total match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}

type memoryRepo struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryRepo keeps entries in process memory.
func NewMemoryRepo() Repository {
	return &memoryRepo{}
}

func (r *memoryRepo) Append(_ context.Context, e *Entry) error {
	cp := *e
	cp.Payload = slices.Clone(e.Payload)
	r.mu.Lock()
	r.entries = append(r.entries, &cp)
	r.mu.Unlock()
	return nil
}

func (r *memoryRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if f.matches(r.entries[i]) {
			matched = append(matched, r.entries[i])
		}
	}
	total := len(matched)
	if offset >= total {
		return []*Entry{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	out := make([]*Entry, 0, end-offset)
	for _, e := range matched[offset:end] {
		cp := *e
		out = append(out, &cp)
	}
	return out, total, nil
}
