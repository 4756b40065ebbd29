package patient

import (
	"errors"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
)

var (
	ErrPatientNotFound   = apperr.Define(apperr.ErrNotFound, "patient not found")
	ErrDuplicateID       = apperr.Define(apperr.ErrConflict, "patient id already exists")
	ErrImmutableID       = errors.New("patient id cannot be changed")
	ErrInvalidTransition = apperr.Define(apperr.ErrConflict, "status transition not allowed")
	ErrDischarged        = apperr.Define(apperr.ErrConflict, "patient has been discharged")

	// ErrStaleWrite is returned by Repository.Save when the stored document
	// already has an equal or newer version.
	ErrStaleWrite  = errors.New("stale patient document write")
	ErrStoreClosed = errors.New("patient store closed")

	// ErrNoChange is returned by a mutation function that has nothing to
	// write. Mutate then keeps the record and its version as they are and
	// reports success.
	ErrNoChange = errors.New("no change")
)
