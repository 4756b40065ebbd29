package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
)

// Entry is one immutable audit record: who did what to which entity when.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName,omitempty"`
	PatientID string          `json:"patientId,omitempty"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entityId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Entity names used across the domain packages.
const (
	EntityPatient      = "patient"
	EntityOrder        = "order"
	EntityRound        = "round"
	EntityVitals       = "vitals"
	EntityTimeline     = "timeline"
	EntityClinicalFile = "clinical_file"
	EntityBed          = "bed"
)

// NewEntry attributes an action to actor. payload is marshalled as JSON; a
// value that cannot be marshalled is dropped.
func NewEntry(actor *auth.Actor, patientID, action, entity, entityID string, payload any) Entry {
	e := Entry{
		PatientID: patientID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
	}
	if actor != nil {
		e.UserID = actor.ID
		e.UserName = actor.Name
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			e.Payload = b
		}
	}
	return e
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	PatientID string
	UserID    string
	Action    string
	Since     time.Time
}

func (f Filter) matches(e *Entry) bool {
	if f.PatientID != "" && e.PatientID != f.PatientID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
