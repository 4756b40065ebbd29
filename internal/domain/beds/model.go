package beds

import (
	"time"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusOccupied  Status = "occupied"
	StatusCleaning  Status = "cleaning"
)

func (s Status) Valid() bool {
	return s == StatusAvailable || s == StatusOccupied || s == StatusCleaning
}

// Bed is stored as its own document, separate from the patient it holds.
type Bed struct {
	ID        string    `json:"id"`
	Ward      string    `json:"ward"`
	Label     string    `json:"label"`
	Status    Status    `json:"status"`
	PatientID string    `json:"patientId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// Document is a bed with the version it was stored at.
type Document struct {
	Bed     Bed   `json:"bed"`
	Version int64 `json:"version"`
}

var (
	ErrBedNotFound     = apperr.Define(apperr.ErrNotFound, "bed not found")
	ErrBedExists       = apperr.Define(apperr.ErrConflict, "bed already exists")
	ErrBedOccupied     = apperr.Define(apperr.ErrConflict, "bed is not available")
	ErrBedNotOccupied  = apperr.Define(apperr.ErrConflict, "bed is not occupied")
	ErrBedNotCleaning  = apperr.Define(apperr.ErrConflict, "only a bed being cleaned can be marked ready")
	ErrPatientHasBed   = apperr.Define(apperr.ErrConflict, "patient already has a bed")
	ErrVersionConflict = apperr.Define(apperr.ErrConflict, "bed was changed by someone else; reload and retry")
)
