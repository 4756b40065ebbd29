package patient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/domain/audit"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/ai"
	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/auth"
)

var doctor = &auth.Actor{ID: "u-doc", Name: "Dr. Mehta", Role: auth.RolePhysician}

// fakeGateway answers every call with text or fails with err.
type fakeGateway struct {
	ai.Disabled
	text string
	err  error

	summaryErr   error
	overviewWait time.Duration
}

func (g *fakeGateway) reply() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

func (g *fakeGateway) Handover(context.Context, any) (string, error) { return g.reply() }
func (g *fakeGateway) Overview(ctx context.Context, _ any) (string, error) {
	if g.overviewWait > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.overviewWait):
		}
	}
	return g.reply()
}

func (g *fakeGateway) CompileDischargeSummary(context.Context, any) (string, error) {
	if g.summaryErr != nil {
		return "", g.summaryErr
	}
	return g.reply()
}

type fakeBeds struct {
	mu       sync.Mutex
	released map[string]string
	err      error
}

func (b *fakeBeds) ReleaseForPatient(_ context.Context, bedID, patientID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.released == nil {
		b.released = map[string]string{}
	}
	b.released[bedID] = patientID
	return nil
}

type fixture struct {
	svc   *Service
	store *Store
	audit *audit.Service
	ai    *fakeGateway
	ctx   context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newTestStore(t, NewMemoryRepo())
	auditSvc := audit.NewService(audit.NewMemoryRepo(), zerolog.Nop())
	gw := &fakeGateway{text: "Generated text."}
	mut := NewMutator(store, auth.ContextSessions{}, auditSvc, zerolog.Nop())
	return &fixture{
		svc:   NewService(mut, gw, zerolog.Nop()),
		store: store,
		audit: auditSvc,
		ai:    gw,
		ctx:   auth.ContextWithActor(context.Background(), doctor),
	}
}

func (f *fixture) register(t *testing.T) Patient {
	t.Helper()
	p, err := f.svc.Register(f.ctx, RegisterInput{Name: "Ravi Kumar", Age: 61, ChiefComplaint: "Breathlessness"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return p
}

func (f *fixture) actions(t *testing.T, patientID string) []string {
	t.Helper()
	entries, _, err := f.audit.ListByPatient(context.Background(), patientID, 100, 0)
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e.Action
	}
	return out
}

func TestService_RegisterValidates(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   RegisterInput
	}{
		{"missing name", RegisterInput{Age: 30, ChiefComplaint: "Fever"}},
		{"negative age", RegisterInput{Name: "A", Age: -1, ChiefComplaint: "Fever"}},
		{"age too high", RegisterInput{Name: "A", Age: 131, ChiefComplaint: "Fever"}},
		{"missing complaint", RegisterInput{Name: "A", Age: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Register(f.ctx, tt.in); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if len(f.store.List()) != 0 {
		t.Error("invalid registrations must not create patients")
	}
}

func TestService_RegisterRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "A", Age: 3, ChiefComplaint: "Cough"})
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	p := f.register(t)

	if !strings.HasPrefix(p.ID, "PAT-") || p.Status != StatusWaitingForTriage || p.RegisteredBy != "u-doc" {
		t.Fatalf("unexpected registration %+v", p)
	}
	if p.ClinicalFile.Sections.History.ChiefComplaint != "Breathlessness" {
		t.Error("expected chief complaint copied into the clinical file")
	}

	if _, err := f.svc.StartTreatment(f.ctx, p.ID); err != nil {
		t.Fatalf("StartTreatment from triage queue: %v", err)
	}
	if _, err := f.svc.SetTriage(f.ctx, p.ID, TriageInput{Level: TriageRed}); err != nil {
		t.Fatalf("SetTriage: %v", err)
	}
	got, _ := f.svc.Get(f.ctx, p.ID)
	if got.Status != StatusInTreatment {
		t.Errorf("re-triage must not move the patient back, got %s", got.Status)
	}
	if _, err := f.svc.StartTreatment(f.ctx, p.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	want := []string{"patient.registered", "patient.treatment_started", "patient.triaged"}
	if got := f.actions(t, p.ID); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("audit actions = %v, want %v", got, want)
	}
}

func TestService_FirstTriageMovesToDoctorQueue(t *testing.T) {
	f := newFixture(t)
	p := f.register(t)

	got, err := f.svc.SetTriage(f.ctx, p.ID, TriageInput{Level: TriageYellow, Reasons: []string{" SpO2 91% ", ""}})
	if err != nil {
		t.Fatalf("SetTriage: %v", err)
	}
	if got.Status != StatusWaitingForDoctor {
		t.Errorf("expected Waiting for Doctor, got %s", got.Status)
	}
	if got.Triage == nil || len(got.Triage.Reasons) != 1 || got.Triage.Reasons[0] != "SpO2 91%" {
		t.Errorf("unexpected triage %+v", got.Triage)
	}
	if _, err := f.svc.SetTriage(f.ctx, p.ID, TriageInput{Level: "Blue"}); err == nil {
		t.Error("expected invalid level error")
	}
}

func TestService_UpdateDemographics(t *testing.T) {
	f := newFixture(t)
	p := f.register(t)
	phone := "+91 98450 00000"
	age := 62

	got, err := f.svc.UpdateDemographics(f.ctx, p.ID, DemographicsPatch{Phone: &phone, Age: &age})
	if err != nil {
		t.Fatalf("UpdateDemographics: %v", err)
	}
	if got.Phone != phone || got.Age != 62 || got.Name != "Ravi Kumar" {
		t.Errorf("unexpected patch result %+v", got)
	}
	empty := " "
	if _, err := f.svc.UpdateDemographics(f.ctx, p.ID, DemographicsPatch{Name: &empty}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestService_GenerateHandover(t *testing.T) {
	f := newFixture(t)
	p := f.register(t)

	out, err := f.svc.GenerateHandover(f.ctx, p.ID)
	if err != nil {
		t.Fatalf("GenerateHandover: %v", err)
	}
	if out.Degraded || out.Patient.HandoverSummary != "Generated text." {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestService_GenerateHandoverAIFailureKeepsExisting(t *testing.T) {
	f := newFixture(t)
	p := f.register(t)
	if _, err := f.svc.GenerateHandover(f.ctx, p.ID); err != nil {
		t.Fatalf("GenerateHandover: %v", err)
	}
	_, before, _ := f.store.Snapshot(p.ID)

	f.ai.err = ai.ErrUnavailable
	out, err := f.svc.GenerateHandover(f.ctx, p.ID)
	if err != nil {
		t.Fatalf("AI failure must not be an error: %v", err)
	}
	if !out.Degraded || out.Notice != ai.FallbackMessage {
		t.Errorf("expected degraded outcome, got %+v", out)
	}
	if out.Patient.HandoverSummary != "Generated text." {
		t.Errorf("existing handover lost: %q", out.Patient.HandoverSummary)
	}
	_, after, _ := f.store.Snapshot(p.ID)
	if after != before {
		t.Errorf("AI failure must not mutate the record: v%d -> v%d", before, after)
	}
}

func TestService_Discharge(t *testing.T) {
	f := newFixture(t)
	beds := &fakeBeds{}
	f.svc.SetBedReleaser(beds)
	p := f.register(t)
	if _, err := f.store.Mutate(f.ctx, p.ID, func(p Patient) (Patient, error) {
		p.BedID = "BED-A1"
		return p, nil
	}); err != nil {
		t.Fatalf("assign bed: %v", err)
	}

	out, err := f.svc.Discharge(f.ctx, p.ID, DischargeInput{Notes: "Review in OPD after 1 week"})
	if err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	got := out.Patient
	if got.Status != StatusDischarged || got.DischargedAt == nil || got.BedID != "" {
		t.Errorf("unexpected discharged patient %+v", got)
	}
	if got.DischargeSummary != "Generated text." || out.Degraded {
		t.Errorf("expected summary stored, got %+v", out)
	}
	if len(got.Timeline) != 1 || !strings.Contains(got.Timeline[0].Note, "Review in OPD") {
		t.Errorf("expected discharge note on timeline, got %+v", got.Timeline)
	}
	if beds.released["BED-A1"] != p.ID {
		t.Errorf("expected bed released, got %v", beds.released)
	}

	if _, err := f.svc.Discharge(f.ctx, p.ID, DischargeInput{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected second discharge rejected, got %v", err)
	}
	if _, err := f.svc.SetActiveProblems(f.ctx, p.ID, []string{"x"}); !errors.Is(err, ErrDischarged) {
		t.Errorf("expected ErrDischarged, got %v", err)
	}
}

func TestService_DischargeDegraded(t *testing.T) {
	f := newFixture(t)
	f.ai.err = errors.New("model timeout")
	f.svc.SetBedReleaser(&fakeBeds{err: errors.New("bed store down")})
	p := f.register(t)
	_, _ = f.store.Mutate(f.ctx, p.ID, func(p Patient) (Patient, error) {
		p.BedID = "BED-B2"
		return p, nil
	})

	out, err := f.svc.Discharge(f.ctx, p.ID, DischargeInput{})
	if err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	if out.Patient.Status != StatusDischarged {
		t.Errorf("discharge must proceed without AI, got %s", out.Patient.Status)
	}
	if !out.Degraded || !strings.HasPrefix(out.Notice, ai.FallbackMessage) || !strings.Contains(out.Notice, "BED-B2") {
		t.Errorf("unexpected notice %q", out.Notice)
	}
	if out.Patient.DischargeSummary != "" {
		t.Errorf("expected empty summary, got %q", out.Patient.DischargeSummary)
	}
}

func TestService_DischargeKeepsOverviewWhenSummaryFails(t *testing.T) {
	f := newFixture(t)
	f.ai.summaryErr = errors.New("quota exceeded")
	f.ai.overviewWait = 30 * time.Millisecond
	p := f.register(t)

	out, err := f.svc.Discharge(f.ctx, p.ID, DischargeInput{})
	if err != nil {
		t.Fatalf("Discharge: %v", err)
	}
	if !out.Degraded || out.Patient.DischargeSummary != "" {
		t.Errorf("expected degraded discharge without summary, got %+v", out)
	}
	if out.Patient.Overview != "Generated text." {
		t.Errorf("overview should survive the summary failure, got %q", out.Patient.Overview)
	}
}

func TestService_ListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	a := f.register(t)
	time.Sleep(2 * time.Millisecond)
	b := f.register(t)
	if _, err := f.svc.SetTriage(f.ctx, b.ID, TriageInput{Level: TriageGreen}); err != nil {
		t.Fatalf("SetTriage: %v", err)
	}

	waiting := f.svc.List(f.ctx, StatusWaitingForTriage)
	if len(waiting) != 1 || waiting[0].ID != a.ID {
		t.Errorf("unexpected triage queue %+v", waiting)
	}
	if all := f.svc.List(f.ctx, ""); len(all) != 2 || all[0].ID != b.ID {
		t.Errorf("expected newest registration first, got %+v", all)
	}
}
