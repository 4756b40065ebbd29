package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/patient"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/ai"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var doctor = &auth.Actor{ID: "u-doc", Name: "Dr. Mehta", Role: auth.RolePhysician}

type fakeGateway struct {
	ai.Disabled
	orders []ai.OrderSuggestion
	err    error
}

func (g *fakeGateway) SuggestOrders(context.Context, any) ([]ai.OrderSuggestion, error) {
	return g.orders, g.err
}

type fixture struct {
	svc   *Service
	store *patient.Store
	audit *audit.Service
	ai    *fakeGateway
	ctx   context.Context
}

func newFixture(t *testing.T, orders ...patient.Order) *fixture {
	t.Helper()
	store := patient.NewStore(patient.NewMemoryRepo(), zerolog.Nop(), patient.StoreOptions{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = store.Close(ctx)
	})
	if orders == nil {
		orders = []patient.Order{}
	}
	_, err := store.Create(context.Background(), patient.Patient{
		ID:     "PAT-1",
		Name:   "Lakshmi N",
		Status: patient.StatusInTreatment,
		Orders: orders,
	})
	if err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	auditSvc := audit.NewService(audit.NewMemoryRepo(), zerolog.Nop())
	gw := &fakeGateway{}
	mut := patient.NewMutator(store, auth.ContextSessions{}, auditSvc, zerolog.Nop())
	return &fixture{
		svc:   NewService(mut, gw, zerolog.Nop()),
		store: store,
		audit: auditSvc,
		ai:    gw,
		ctx:   auth.ContextWithActor(context.Background(), doctor),
	}
}

func (f *fixture) auditCount(t *testing.T, action string) int {
	t.Helper()
	_, total, err := f.audit.List(context.Background(), audit.Filter{PatientID: "PAT-1", Action: action}, 100, 0)
	if err != nil {
		t.Fatalf("audit List: %v", err)
	}
	return total
}

func statuses(p patient.Patient) map[string]patient.OrderStatus {
	out := map[string]patient.OrderStatus{}
	for _, o := range p.Orders {
		out[o.ID] = o.Status
	}
	return out
}

func TestAddOrder_Defaults(t *testing.T) {
	f := newFixture(t, patient.Order{ID: "ORD-old", Label: "ECG", Status: patient.OrderSent})

	o, err := f.svc.AddOrder(f.ctx, "PAT-1", AddOrderInput{Category: patient.CategoryInvestigation, Label: " CBC "})
	if err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	if o.Status != patient.OrderDraft || o.Priority != patient.PriorityRoutine || o.Label != "CBC" {
		t.Errorf("unexpected defaults %+v", o)
	}
	if o.ID == "" || o.PatientID != "PAT-1" || o.CreatedBy != "u-doc" || o.CreatedAt.IsZero() {
		t.Errorf("expected generated id and attribution, got %+v", o)
	}
	p, _ := f.store.Get("PAT-1")
	if len(p.Orders) != 2 || p.Orders[0].ID != o.ID {
		t.Errorf("expected new order prepended, got %+v", p.Orders)
	}
	if f.auditCount(t, "order.created") != 1 {
		t.Error("expected order.created audit entry")
	}
}

func TestAddOrder_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   AddOrderInput
	}{
		{"missing label", AddOrderInput{Category: patient.CategoryMedication}},
		{"bad category", AddOrderInput{Category: "diet", Label: "NPO"}},
		{"bad priority", AddOrderInput{Category: patient.CategoryNursing, Label: "Turn q2h", Priority: "asap"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.AddOrder(f.ctx, "PAT-1", tt.in); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if _, err := f.svc.AddOrder(f.ctx, "PAT-x", AddOrderInput{Category: patient.CategoryNursing, Label: "x"}); !errors.Is(err, patient.ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestAddOrder_RequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddOrder(context.Background(), "PAT-1", AddOrderInput{Category: patient.CategoryNursing, Label: "x"})
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
	p, _ := f.store.Get("PAT-1")
	if len(p.Orders) != 0 {
		t.Error("unauthenticated call must not change the patient")
	}
}

func TestUpdateOrder(t *testing.T) {
	f := newFixture(t, patient.Order{ID: "O1", Label: "CBC", Status: patient.OrderDraft, Priority: patient.PriorityRoutine})
	stat := patient.PrioritySTAT
	sent := patient.OrderSent

	o, err := f.svc.UpdateOrder(f.ctx, "PAT-1", "O1", OrderPatch{Priority: &stat, Status: &sent})
	if err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}
	if o.Priority != stat || o.Status != sent || o.Label != "CBC" {
		t.Errorf("unexpected merge %+v", o)
	}
	if o.Meta.ModifiedBy != "u-doc" || o.Meta.LastModified.IsZero() {
		t.Errorf("expected meta stamped, got %+v", o.Meta)
	}

	draft := patient.OrderDraft
	if _, err := f.svc.UpdateOrder(f.ctx, "PAT-1", "O1", OrderPatch{Status: &draft}); !errors.Is(err, ErrBadTransition) {
		t.Errorf("expected ErrBadTransition, got %v", err)
	}
	if _, err := f.svc.UpdateOrder(f.ctx, "PAT-1", "O9", OrderPatch{Priority: &stat}); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}

	done := patient.OrderCompleted
	if _, err := f.svc.UpdateOrder(f.ctx, "PAT-1", "O1", OrderPatch{Status: &done}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.svc.UpdateOrder(f.ctx, "PAT-1", "O1", OrderPatch{Priority: &stat}); !errors.Is(err, ErrOrderClosed) {
		t.Errorf("expected ErrOrderClosed, got %v", err)
	}
}

func TestSendAllDrafts_Scenario(t *testing.T) {
	f := newFixture(t,
		patient.Order{ID: "O1", Category: patient.CategoryInvestigation, Status: patient.OrderDraft},
		patient.Order{ID: "O2", Category: patient.CategoryInvestigation, Status: patient.OrderSent,
			Meta: patient.OrderMeta{ModifiedBy: "u-earlier"}},
		patient.Order{ID: "O3", Category: patient.CategoryMedication, Status: patient.OrderDraft},
	)
	before, _ := f.store.Get("PAT-1")

	res, err := f.svc.SendAllDrafts(f.ctx, "PAT-1", patient.CategoryInvestigation)
	if err != nil {
		t.Fatalf("SendAllDrafts: %v", err)
	}
	if diff := cmp.Diff([]string{"O1"}, res.Sent); diff != "" {
		t.Errorf("sent mismatch:\n%s", diff)
	}

	p, _ := f.store.Get("PAT-1")
	want := map[string]patient.OrderStatus{"O1": patient.OrderSent, "O2": patient.OrderSent, "O3": patient.OrderDraft}
	if diff := cmp.Diff(want, statuses(p)); diff != "" {
		t.Errorf("statuses mismatch:\n%s", diff)
	}
	if p.Orders[0].Meta.ModifiedBy != "u-doc" {
		t.Errorf("expected O1 modifiedBy u-doc, got %q", p.Orders[0].Meta.ModifiedBy)
	}
	if diff := cmp.Diff(before.Orders[1], p.Orders[1]); diff != "" {
		t.Errorf("O2 must be unchanged:\n%s", diff)
	}
	if f.auditCount(t, "order.sent") != 1 {
		t.Error("expected one audit entry per sent order")
	}
}

func TestAcceptAIOrders_MixedStatus(t *testing.T) {
	f := newFixture(t,
		patient.Order{ID: "A", Status: patient.OrderDraft, AISuggested: true},
		patient.Order{ID: "B", Status: patient.OrderSent, AISuggested: true},
		patient.Order{ID: "C", Status: patient.OrderDraft, AISuggested: true},
		patient.Order{ID: "D", Status: patient.OrderCancelled, AISuggested: true},
	)

	res, err := f.svc.AcceptAIOrders(f.ctx, "PAT-1", []string{"A", "B", "D", "missing"})
	if err != nil {
		t.Fatalf("AcceptAIOrders: %v", err)
	}
	if diff := cmp.Diff([]string{"A"}, res.Sent); diff != "" {
		t.Errorf("sent mismatch:\n%s", diff)
	}
	p, _ := f.store.Get("PAT-1")
	want := map[string]patient.OrderStatus{
		"A": patient.OrderSent, "B": patient.OrderSent, "C": patient.OrderDraft, "D": patient.OrderCancelled,
	}
	if diff := cmp.Diff(want, statuses(p)); diff != "" {
		t.Errorf("statuses mismatch:\n%s", diff)
	}

	// A second accept is a no-op and keeps the version.
	_, before, _ := f.store.Snapshot("PAT-1")
	res, err = f.svc.AcceptAIOrders(f.ctx, "PAT-1", []string{"A"})
	if err != nil || len(res.Sent) != 0 {
		t.Errorf("expected no-op, got %+v %v", res, err)
	}
	if len(res.Orders) != 4 {
		t.Errorf("expected current orders in a no-op result, got %d", len(res.Orders))
	}
	if _, after, _ := f.store.Snapshot("PAT-1"); after != before {
		t.Errorf("expected version %d after a no-op, got %d", before, after)
	}
	if f.auditCount(t, "order.accepted") != 1 {
		t.Error("expected exactly one order.accepted entry")
	}
}

func TestSuggestOrders(t *testing.T) {
	f := newFixture(t)
	f.ai.orders = []ai.OrderSuggestion{
		{Category: "Investigation", Label: "Troponin I", Priority: "stat"},
		{Category: "diet", Label: "Soft diet"},
		{Category: "medication", Label: "Aspirin 325 mg", Instructions: "Chew once"},
	}

	res, err := f.svc.SuggestOrders(f.ctx, "PAT-1")
	if err != nil {
		t.Fatalf("SuggestOrders: %v", err)
	}
	if res.Degraded || len(res.Orders) != 2 {
		t.Fatalf("expected two usable suggestions, got %+v", res)
	}
	p, _ := f.store.Get("PAT-1")
	if len(p.Orders) != 2 || p.Orders[0].Label != "Troponin I" || p.Orders[0].Priority != patient.PrioritySTAT {
		t.Errorf("unexpected orders %+v", p.Orders)
	}
	for _, o := range p.Orders {
		if !o.AISuggested || o.Status != patient.OrderDraft {
			t.Errorf("expected AI suggested draft, got %+v", o)
		}
	}
}

func TestSuggestOrders_Degraded(t *testing.T) {
	f := newFixture(t)
	f.ai.err = ai.ErrUnavailable
	_, before, _ := f.store.Snapshot("PAT-1")

	res, err := f.svc.SuggestOrders(f.ctx, "PAT-1")
	if err != nil {
		t.Fatalf("SuggestOrders: %v", err)
	}
	if !res.Degraded || res.Notice != ai.FallbackMessage || len(res.Orders) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	if _, after, _ := f.store.Snapshot("PAT-1"); after != before {
		t.Error("degraded suggestion must not touch the patient")
	}
}

func TestListOrders_Filter(t *testing.T) {
	f := newFixture(t,
		patient.Order{ID: "O1", Category: patient.CategoryInvestigation, Status: patient.OrderDraft},
		patient.Order{ID: "O2", Category: patient.CategoryMedication, Status: patient.OrderDraft},
		patient.Order{ID: "O3", Category: patient.CategoryMedication, Status: patient.OrderSent},
	)
	got, err := f.svc.ListOrders(f.ctx, "PAT-1", ListFilter{Category: patient.CategoryMedication, Status: patient.OrderDraft})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(got) != 1 || got[0].ID != "O2" {
		t.Errorf("unexpected filter result %+v", got)
	}
}
