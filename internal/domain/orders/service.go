package orders

import (
	"context"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/ai"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/apperr"
)

var (
	ErrOrderNotFound = apperr.Define(apperr.ErrNotFound, "order not found")
	ErrOrderClosed   = apperr.Define(apperr.ErrConflict, "order is completed or cancelled")
	ErrBadTransition = apperr.Define(apperr.ErrConflict, "order status transition not allowed")
)

// transitions lists the statuses an order may move to from each status.
var transitions = map[patient.OrderStatus][]patient.OrderStatus{
	patient.OrderDraft:      {patient.OrderSent, patient.OrderCancelled},
	patient.OrderSent:       {patient.OrderInProgress, patient.OrderCompleted, patient.OrderCancelled},
	patient.OrderInProgress: {patient.OrderCompleted, patient.OrderCancelled},
}

func canMove(from, to patient.OrderStatus) bool {
	return from == to || slices.Contains(transitions[from], to)
}

func closed(s patient.OrderStatus) bool {
	return s == patient.OrderCompleted || s == patient.OrderCancelled
}

// Service edits the orders embedded in a patient document.
type Service struct {
	mut    *patient.Mutator
	ai     ai.Gateway
	logger zerolog.Logger
}

func NewService(mut *patient.Mutator, gateway ai.Gateway, logger zerolog.Logger) *Service {
	return &Service{mut: mut, ai: gateway, logger: logger}
}

type AddOrderInput struct {
	Category     patient.OrderCategory `json:"category"`
	Label        string                `json:"label"`
	Instructions string                `json:"instructions"`
	Priority     patient.OrderPriority `json:"priority"`
}

func (in *AddOrderInput) normalize() error {
	in.Label = strings.TrimSpace(in.Label)
	if in.Label == "" {
		return apperr.Invalid("label is required")
	}
	if !in.Category.Valid() {
		return apperr.Invalid("unknown category %q", in.Category)
	}
	if in.Priority == "" {
		in.Priority = patient.PriorityRoutine
	}
	if !in.Priority.Valid() {
		return apperr.Invalid("unknown priority %q", in.Priority)
	}
	return nil
}

func newOrder(p *patient.Patient, ed *patient.Edit, in AddOrderInput, aiSuggested bool) patient.Order {
	return patient.Order{
		ID:           patient.NewID("ORD"),
		PatientID:    p.ID,
		Category:     in.Category,
		Label:        in.Label,
		Instructions: strings.TrimSpace(in.Instructions),
		Status:       patient.OrderDraft,
		Priority:     in.Priority,
		AISuggested:  aiSuggested,
		CreatedAt:    ed.Now,
		CreatedBy:    ed.Actor.ID,
		Meta:         patient.OrderMeta{LastModified: ed.Now, ModifiedBy: ed.Actor.ID},
	}
}

// AddOrder creates a draft order at the head of the patient's list.
func (s *Service) AddOrder(ctx context.Context, patientID string, in AddOrderInput) (patient.Order, error) {
	if err := in.normalize(); err != nil {
		return patient.Order{}, err
	}
	var created patient.Order
	_, err := s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		if err := patient.EnsureActive(p); err != nil {
			return err
		}
		created = newOrder(p, ed, in, false)
		p.Orders = slices.Insert(p.Orders, 0, created)
		ed.Audit("order.created", audit.EntityOrder, created.ID, map[string]any{
			"category": created.Category, "label": created.Label, "priority": created.Priority,
		})
		return nil
	})
	if err != nil {
		return patient.Order{}, err
	}
	return created, nil
}

// OrderPatch changes only the non-nil fields.
type OrderPatch struct {
	Label        *string                `json:"label"`
	Instructions *string                `json:"instructions"`
	Priority     *patient.OrderPriority `json:"priority"`
	Status       *patient.OrderStatus   `json:"status"`
}

func (pt OrderPatch) validate() error {
	if pt.Label != nil && strings.TrimSpace(*pt.Label) == "" {
		return apperr.Invalid("label cannot be empty")
	}
	if pt.Priority != nil && !pt.Priority.Valid() {
		return apperr.Invalid("unknown priority %q", *pt.Priority)
	}
	if pt.Status != nil && !pt.Status.Valid() {
		return apperr.Invalid("unknown status %q", *pt.Status)
	}
	return nil
}

// UpdateOrder merges patch into the order and stamps who changed it.
func (s *Service) UpdateOrder(ctx context.Context, patientID, orderID string, patch OrderPatch) (patient.Order, error) {
	if err := patch.validate(); err != nil {
		return patient.Order{}, err
	}
	var updated patient.Order
	_, err := s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		i := p.OrderIndex(orderID)
		if i < 0 {
			return ErrOrderNotFound
		}
		o := p.Orders[i]
		if closed(o.Status) {
			return ErrOrderClosed
		}
		changes := map[string]any{}
		if patch.Label != nil {
			o.Label = strings.TrimSpace(*patch.Label)
			changes["label"] = o.Label
		}
		if patch.Instructions != nil {
			o.Instructions = strings.TrimSpace(*patch.Instructions)
			changes["instructions"] = o.Instructions
		}
		if patch.Priority != nil {
			o.Priority = *patch.Priority
			changes["priority"] = o.Priority
		}
		if patch.Status != nil {
			if !canMove(o.Status, *patch.Status) {
				return ErrBadTransition
			}
			changes["status"] = map[string]any{"from": o.Status, "to": *patch.Status}
			o.Status = *patch.Status
		}
		o.Meta = patient.OrderMeta{LastModified: ed.Now, ModifiedBy: ed.Actor.ID}
		p.Orders[i] = o
		updated = o
		ed.Audit("order.updated", audit.EntityOrder, o.ID, changes)
		return nil
	})
	if err != nil {
		return patient.Order{}, err
	}
	return updated, nil
}

// BulkResult lists the orders a bulk transition moved.
type BulkResult struct {
	Sent   []string        `json:"sent"`
	Orders []patient.Order `json:"orders"`
}

// AcceptAIOrders sends the orders in ids that are still drafts. Orders in
// any other status, and unknown ids, are left alone.
func (s *Service) AcceptAIOrders(ctx context.Context, patientID string, ids []string) (*BulkResult, error) {
	if len(ids) == 0 {
		return nil, apperr.Invalid("ids are required")
	}
	return s.sendWhere(ctx, patientID, "order.accepted", func(o patient.Order) bool {
		return slices.Contains(ids, o.ID)
	})
}

// SendAllDrafts sends every draft order in category.
func (s *Service) SendAllDrafts(ctx context.Context, patientID string, category patient.OrderCategory) (*BulkResult, error) {
	if !category.Valid() {
		return nil, apperr.Invalid("unknown category %q", category)
	}
	return s.sendWhere(ctx, patientID, "order.sent", func(o patient.Order) bool {
		return o.Category == category
	})
}

func (s *Service) sendWhere(ctx context.Context, patientID, action string, match func(patient.Order) bool) (*BulkResult, error) {
	res := &BulkResult{Sent: []string{}}
	p, err := s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		if err := patient.EnsureActive(p); err != nil {
			return err
		}
		res.Sent = res.Sent[:0]
		for i, o := range p.Orders {
			if o.Status != patient.OrderDraft || !match(o) {
				continue
			}
			o.Status = patient.OrderSent
			o.Meta = patient.OrderMeta{LastModified: ed.Now, ModifiedBy: ed.Actor.ID}
			p.Orders[i] = o
			res.Sent = append(res.Sent, o.ID)
			ed.Audit(action, audit.EntityOrder, o.ID, map[string]any{"from": patient.OrderDraft, "to": patient.OrderSent})
		}
		if len(res.Sent) == 0 {
			return patient.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	res.Orders = p.Orders
	return res, nil
}

// SuggestResult carries AI proposed orders. Degraded means the gateway
// failed and nothing was added.
type SuggestResult struct {
	Orders   []patient.Order `json:"orders"`
	Degraded bool            `json:"degraded"`
	Notice   string          `json:"notice,omitempty"`
}

// SuggestOrders asks the AI gateway for orders and adds valid proposals as
// AI suggested drafts.
func (s *Service) SuggestOrders(ctx context.Context, patientID string) (*SuggestResult, error) {
	if _, err := s.mut.Actor(ctx); err != nil {
		return nil, err
	}
	snap, err := s.mut.Store().Get(patientID)
	if err != nil {
		return nil, err
	}
	if err := patient.EnsureActive(&snap); err != nil {
		return nil, err
	}

	proposals, aiErr := s.ai.SuggestOrders(ctx, snap)
	if aiErr != nil {
		s.logger.Warn().Err(aiErr).Str("patient_id", patientID).Msg("order suggestions degraded")
		return &SuggestResult{Orders: []patient.Order{}, Degraded: true, Notice: ai.FallbackMessage}, nil
	}

	inputs := make([]AddOrderInput, 0, len(proposals))
	for _, sg := range proposals {
		in := AddOrderInput{
			Category:     patient.OrderCategory(strings.ToLower(sg.Category)),
			Label:        sg.Label,
			Instructions: sg.Instructions,
			Priority:     normalizePriority(sg.Priority),
		}
		if err := in.normalize(); err != nil {
			s.logger.Debug().Err(err).Str("label", sg.Label).Msg("dropping unusable order suggestion")
			continue
		}
		inputs = append(inputs, in)
	}

	res := &SuggestResult{Orders: []patient.Order{}}
	if len(inputs) == 0 {
		return res, nil
	}
	_, err = s.mut.Update(ctx, patientID, func(p *patient.Patient, ed *patient.Edit) error {
		if err := patient.EnsureActive(p); err != nil {
			return err
		}
		res.Orders = res.Orders[:0]
		for _, in := range inputs {
			o := newOrder(p, ed, in, true)
			res.Orders = append(res.Orders, o)
			ed.Audit("order.suggested", audit.EntityOrder, o.ID, map[string]any{"label": o.Label})
		}
		p.Orders = slices.Insert(p.Orders, 0, res.Orders...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func normalizePriority(s string) patient.OrderPriority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stat":
		return patient.PrioritySTAT
	case "urgent":
		return patient.PriorityUrgent
	default:
		return patient.PriorityRoutine
	}
}

// ListFilter narrows ListOrders. Empty fields match everything.
type ListFilter struct {
	Status   patient.OrderStatus
	Category patient.OrderCategory
}

func (s *Service) ListOrders(ctx context.Context, patientID string, f ListFilter) ([]patient.Order, error) {
	p, err := s.mut.Store().Get(patientID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(p.Orders, func(o patient.Order) bool {
		return (f.Status != "" && o.Status != f.Status) || (f.Category != "" && o.Category != f.Category)
	}), nil
}

func (s *Service) GetOrder(ctx context.Context, patientID, orderID string) (patient.Order, error) {
	p, err := s.mut.Store().Get(patientID)
	if err != nil {
		return patient.Order{}, err
	}
	i := p.OrderIndex(orderID)
	if i < 0 {
		return patient.Order{}, ErrOrderNotFound
	}
	return p.Orders[i], nil
}
