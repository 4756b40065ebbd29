package patient

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/websocket"
)

// changeSummary is the event body; clients refetch the full document.
type changeSummary struct {
	Kind   ChangeKind `json:"kind"`
	Name   string     `json:"name"`
	Status Status     `json:"status"`
	BedID  string     `json:"bedId,omitempty"`
}

// PublishChanges forwards every store change to the patient's topic and the
// ward topic. The returned function stops forwarding.
func PublishChanges(store *Store, pub websocket.Publisher, logger zerolog.Logger) func() {
	return store.Subscribe(func(ch Change) {
		data, err := json.Marshal(changeSummary{
			Kind:   ch.Kind,
			Name:   ch.Patient.Name,
			Status: ch.Patient.Status,
			BedID:  ch.Patient.BedID,
		})
		if err != nil {
			logger.Error().Err(err).Str("patient_id", ch.PatientID).Msg("encode change event")
			return
		}
		for _, topic := range []string{websocket.PatientTopic(ch.PatientID), websocket.WardTopic} {
			ev := websocket.Event{
				Type:      "patient." + string(ch.Kind),
				Topic:     topic,
				PatientID: ch.PatientID,
				Version:   ch.Version,
				Data:      data,
			}
			if err := pub.Publish(context.Background(), ev); err != nil {
				logger.Warn().Err(err).Str("patient_id", ch.PatientID).Msg("publish change event")
			}
		}
	})
}
