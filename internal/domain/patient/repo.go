package patient

import (
	"context"
)

// Document is a patient as persisted, tagged with the store version that
// produced it.
type Document struct {
	Patient Patient
	Version int64
}

// Repository is the backing document store. Save must reject a write whose
// version is not newer than the stored one with ErrStaleWrite.
type Repository interface {
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context) ([]*Document, error)
	Save(ctx context.Context, doc *Document) error
	// Watch blocks, calling fn for every document written by anyone, until
	// ctx is done or the feed fails.
	Watch(ctx context.Context, fn func(id string, version int64)) error
}
