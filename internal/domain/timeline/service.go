package timeline

import (
	"context"
	"slices"
	"strings"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
)

var (
	ErrEventNotFound = apperr.Define(apperr.ErrNotFound, "timeline event not found")
	ErrItemNotFound  = apperr.Define(apperr.ErrNotFound, "checklist item not found")
)

// Service appends notes, checklists and SOAP notes to a patient's timeline,
// newest first.
type Service struct {
	mut *patient.Mutator
}

func NewService(mut *patient.Mutator) *Service {
	return &Service{mut: mut}
}

func (s *Service) add(ctx context.Context, patientID string, build func(ev *patient.TimelineEvent) error) (patient.TimelineEvent, error) {
	var created patient.TimelineEvent
	_, err := s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		if err := patient.EnsureActive(p); err != nil {
			return err
		}
		ev := patient.TimelineEvent{
			ID:         patient.NewID("EVT"),
			Timestamp:  ed.Now,
			AuthorID:   ed.Actor.ID,
			AuthorName: ed.Actor.Name,
		}
		if err := build(&ev); err != nil {
			return err
		}
		p.Timeline = slices.Insert(p.Timeline, 0, ev)
		created = ev
		ed.Audit("timeline."+string(ev.Type)+"_added", audit.EntityTimeline, ev.ID, nil)
		return nil
	})
	if err != nil {
		return patient.TimelineEvent{}, err
	}
	return created, nil
}

func (s *Service) AddNote(ctx context.Context, patientID, text string) (patient.TimelineEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return patient.TimelineEvent{}, apperr.Invalid("note text is required")
	}
	return s.add(ctx, patientID, func(ev *patient.TimelineEvent) error {
		ev.Type = patient.EventNote
		ev.Note = text
		return nil
	})
}

// AddChecklist creates a checklist with every item unchecked.
func (s *Service) AddChecklist(ctx context.Context, patientID, title string, items []string) (patient.TimelineEvent, error) {
	title = strings.TrimSpace(title)
	texts := patient.CleanStrings(items)
	if title == "" {
		return patient.TimelineEvent{}, apperr.Invalid("title is required")
	}
	if len(texts) == 0 {
		return patient.TimelineEvent{}, apperr.Invalid("a checklist needs at least one item")
	}
	return s.add(ctx, patientID, func(ev *patient.TimelineEvent) error {
		list := &patient.Checklist{Title: title, Items: make([]patient.ChecklistItem, len(texts))}
		for i, text := range texts {
			list.Items[i] = patient.ChecklistItem{ID: patient.NewID("ITM"), Text: text}
		}
		ev.Type = patient.EventChecklist
		ev.Checklist = list
		return nil
	})
}

func (s *Service) AddSOAPNote(ctx context.Context, patientID string, note patient.SOAPNote) (patient.TimelineEvent, error) {
	note = patient.SOAPNote{
		Subjective: strings.TrimSpace(note.Subjective),
		Objective:  strings.TrimSpace(note.Objective),
		Assessment: strings.TrimSpace(note.Assessment),
		Plan:       strings.TrimSpace(note.Plan),
	}
	if note == (patient.SOAPNote{}) {
		return patient.TimelineEvent{}, apperr.Invalid("a SOAP note needs at least one section")
	}
	return s.add(ctx, patientID, func(ev *patient.TimelineEvent) error {
		ev.Type = patient.EventSOAP
		ev.SOAP = &note
		return nil
	})
}

// ToggleChecklistItem flips one item of a checklist event. The item slice
// is replaced by a copy, so sibling items keep their state and order.
func (s *Service) ToggleChecklistItem(ctx context.Context, patientID, eventID, itemID string) (patient.TimelineEvent, error) {
	var updated patient.TimelineEvent
	_, err := s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		if err := patient.EnsureActive(p); err != nil {
			return err
		}
		i := p.EventIndex(eventID, patient.EventChecklist)
		if i < 0 || p.Timeline[i].Checklist == nil {
			return ErrEventNotFound
		}
		ev := p.Timeline[i]
		list := *ev.Checklist
		j := slices.IndexFunc(list.Items, func(it patient.ChecklistItem) bool { return it.ID == itemID })
		if j < 0 {
			return ErrItemNotFound
		}
		list.Items = slices.Clone(list.Items)
		list.Items[j].Checked = !list.Items[j].Checked
		ev.Checklist = &list
		p.Timeline[i] = ev
		updated = ev
		ed.Audit("timeline.checklist_toggled", audit.EntityTimeline, eventID, map[string]any{
			"itemId": itemID, "checked": list.Items[j].Checked,
		})
		return nil
	})
	if err != nil {
		return patient.TimelineEvent{}, err
	}
	return updated, nil
}

// List returns the timeline, optionally only events of type typ.
func (s *Service) List(ctx context.Context, patientID string, typ patient.EventType) ([]patient.TimelineEvent, error) {
	p, err := s.mut.Store().Get(patientID)
	if err != nil {
		return nil, err
	}
	out := p.Timeline
	if out == nil {
		out = []patient.TimelineEvent{}
	}
	if typ == "" {
		return out, nil
	}
	return slices.DeleteFunc(out, func(ev patient.TimelineEvent) bool { return ev.Type != typ }), nil
}
