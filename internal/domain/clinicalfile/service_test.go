package clinicalfile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
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
	mu          sync.Mutex
	summary     string
	summaryErr  error
	suggestions *ai.FileSuggestions
	suggestErr  error
	suggestWait time.Duration
	questions   []string
	seed        string
}

func (g *fakeGateway) Summarize(context.Context, string, string) (string, error) {
	return g.summary, g.summaryErr
}

func (g *fakeGateway) SuggestClinicalFile(ctx context.Context, _ any) (*ai.FileSuggestions, error) {
	if g.suggestWait > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.suggestWait):
		}
	}
	return g.suggestions, g.suggestErr
}

func (g *fakeGateway) FollowUpQuestions(_ context.Context, _, seed string) ([]string, error) {
	g.mu.Lock()
	g.seed = seed
	g.mu.Unlock()
	return g.questions, nil
}

type fixture struct {
	svc   *Service
	store *patient.Store
	ai    *fakeGateway
	ctx   context.Context
}

func newFixture(t *testing.T, cf patient.ClinicalFile) *fixture {
	t.Helper()
	store := patient.NewStore(patient.NewMemoryRepo(), zerolog.Nop(), patient.StoreOptions{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = store.Close(ctx)
	})
	_, err := store.Create(context.Background(), patient.Patient{
		ID: "PAT-1", Name: "Imran K", Status: patient.StatusInTreatment, ClinicalFile: cf,
	})
	if err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	gw := &fakeGateway{}
	mut := patient.NewMutator(store, auth.ContextSessions{}, audit.NewService(audit.NewMemoryRepo(), zerolog.Nop()), zerolog.Nop())
	return &fixture{
		svc:   NewService(mut, gw, zerolog.Nop()),
		store: store,
		ai:    gw,
		ctx:   auth.ContextWithActor(context.Background(), doctor),
	}
}

func withSuggestions(s map[string]patient.Suggestion) patient.ClinicalFile {
	var cf patient.ClinicalFile
	cf.Sections.History.ChiefComplaint = "Cough"
	cf.Sections.History.AllergyHistory = []string{"Penicillin"}
	cf.AISuggestions = s
	return cf
}

func TestAcceptAISuggestion_AllergyAppends(t *testing.T) {
	f := newFixture(t, withSuggestions(map[string]patient.Suggestion{
		"allergy_history": {Items: []string{"Sulfa"}},
		"chief_complaint": {Text: "Productive cough for 5 days"},
	}))

	cf, err := f.svc.AcceptAISuggestion(f.ctx, "PAT-1", "allergy_history")
	if err != nil {
		t.Fatalf("accept allergy: %v", err)
	}
	if diff := cmp.Diff([]string{"Penicillin", "Sulfa"}, cf.Sections.History.AllergyHistory); diff != "" {
		t.Errorf("allergies mismatch:\n%s", diff)
	}
	if _, ok := cf.AISuggestions["allergy_history"]; ok {
		t.Error("accepted suggestion must leave the overlay")
	}

	cf, err = f.svc.AcceptAISuggestion(f.ctx, "PAT-1", "chief_complaint")
	if err != nil {
		t.Fatalf("accept chief complaint: %v", err)
	}
	if cf.Sections.History.ChiefComplaint != "Productive cough for 5 days" {
		t.Errorf("expected replacement, got %q", cf.Sections.History.ChiefComplaint)
	}
	if len(cf.AISuggestions) != 0 {
		t.Errorf("expected empty overlay, got %v", cf.AISuggestions)
	}
	if cf.UpdatedBy != "u-doc" || cf.UpdatedAt.IsZero() {
		t.Errorf("expected attribution, got %q %v", cf.UpdatedBy, cf.UpdatedAt)
	}

	if _, err := f.svc.AcceptAISuggestion(f.ctx, "PAT-1", "chief_complaint"); !errors.Is(err, ErrSuggestionNotFound) {
		t.Errorf("second accept must fail, got %v", err)
	}
}

func TestAcceptAISuggestion_StructuredHPI(t *testing.T) {
	f := newFixture(t, withSuggestions(map[string]patient.Suggestion{
		"structured_hpi": {Text: "Onset 5 days ago, worse at night"},
	}))
	cf, err := f.svc.AcceptAISuggestion(f.ctx, "PAT-1", "structured_hpi")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if cf.Sections.History.HPI != "Onset 5 days ago, worse at night" {
		t.Errorf("expected hpi filled, got %q", cf.Sections.History.HPI)
	}
	if _, err := f.svc.AcceptAISuggestion(f.ctx, "PAT-1", "blood_group"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestRejectAISuggestion(t *testing.T) {
	f := newFixture(t, withSuggestions(map[string]patient.Suggestion{"family_history": {Text: "DM in father"}}))
	cf, err := f.svc.RejectAISuggestion(f.ctx, "PAT-1", "family_history")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if cf.Sections.History.FamilyHistory != "" || len(cf.AISuggestions) != 0 {
		t.Errorf("reject must not apply the value: %+v", cf)
	}
}

func TestUpdateSection(t *testing.T) {
	f := newFixture(t, withSuggestions(nil))
	values := map[string]json.RawMessage{
		"hpi":             json.RawMessage(`" Fever with chills "`),
		"allergy_history": json.RawMessage(`["Latex", ""]`),
	}
	cf, err := f.svc.UpdateSection(f.ctx, "PAT-1", SectionHistory, values)
	if err != nil {
		t.Fatalf("UpdateSection: %v", err)
	}
	if cf.Sections.History.HPI != "Fever with chills" || cf.Sections.History.ChiefComplaint != "Cough" {
		t.Errorf("unexpected history %+v", cf.Sections.History)
	}
	if diff := cmp.Diff([]string{"Latex"}, cf.Sections.History.AllergyHistory); diff != "" {
		t.Errorf("manual edit replaces the list:\n%s", diff)
	}

	bad := map[string]json.RawMessage{"general_examination": json.RawMessage(`"Pallor"`)}
	if _, err := f.svc.UpdateSection(f.ctx, "PAT-1", SectionHistory, bad); !errors.Is(err, ErrUnknownField) {
		t.Errorf("field from another section must be rejected, got %v", err)
	}
	wrongType := map[string]json.RawMessage{"hpi": json.RawMessage(`["a"]`)}
	if _, err := f.svc.UpdateSection(f.ctx, "PAT-1", SectionHistory, wrongType); err == nil {
		t.Error("expected error for list given to a text field")
	}
}

func TestRequestSuggestions(t *testing.T) {
	f := newFixture(t, withSuggestions(nil))
	f.ai.suggestions = &ai.FileSuggestions{
		Fields: map[string]ai.SuggestedValue{
			"structured_hpi":  {Text: "Cough 5 days"},
			"allergy_history": {Items: []string{"Sulfa"}},
			"blood_group":     {Text: "O+"},
		},
		MissingInfo:     []string{"Smoking history"},
		Inconsistencies: []string{},
	}

	out, err := f.svc.RequestSuggestions(f.ctx, "PAT-1")
	if err != nil {
		t.Fatalf("RequestSuggestions: %v", err)
	}
	if out.Degraded {
		t.Fatal("unexpected degraded outcome")
	}
	if len(out.File.AISuggestions) != 2 {
		t.Errorf("unknown keys must be dropped, got %v", out.File.AISuggestions)
	}
	if out.File.Sections.History.HPI != "" {
		t.Error("suggestions must not touch the sections")
	}
	if diff := cmp.Diff([]string{"Smoking history"}, out.File.MissingInfo); diff != "" {
		t.Errorf("missing info mismatch:\n%s", diff)
	}
}

func TestSummarizeFile_FailureKeepsSummary(t *testing.T) {
	cf := withSuggestions(nil)
	cf.AISummary = "Earlier summary."
	f := newFixture(t, cf)
	f.ai.summaryErr = ai.ErrUnavailable

	out, err := f.svc.SummarizeFile(f.ctx, "PAT-1")
	if err != nil {
		t.Fatalf("SummarizeFile: %v", err)
	}
	if !out.Degraded || out.Notice != ai.FallbackMessage || out.File.AISummary != "Earlier summary." {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestFollowUpQuestions(t *testing.T) {
	f := newFixture(t, withSuggestions(nil))
	f.ai.questions = []string{"Is the sputum blood-stained?"}

	out, err := f.svc.FollowUpQuestions(f.ctx, "PAT-1", "chief_complaint", "")
	if err != nil {
		t.Fatalf("FollowUpQuestions: %v", err)
	}
	if f.ai.seed != "Cough" {
		t.Errorf("expected current value as seed, got %q", f.ai.seed)
	}
	if len(out.Questions) != 1 {
		t.Errorf("unexpected questions %+v", out)
	}
	cf, _ := f.svc.Get(f.ctx, "PAT-1")
	if len(cf.FollowUpQuestions["chief_complaint"]) != 1 {
		t.Errorf("expected questions stored, got %v", cf.FollowUpQuestions)
	}
	if _, err := f.svc.FollowUpQuestions(f.ctx, "PAT-1", "hpi", " "); err == nil {
		t.Error("expected error when the field is empty and no seed is given")
	}
}

func TestRefreshInsights_PartialFailure(t *testing.T) {
	f := newFixture(t, withSuggestions(nil))
	f.ai.summary = "Likely bronchitis."
	f.ai.suggestErr = errors.New("bad reply")

	out, err := f.svc.RefreshInsights(f.ctx, "PAT-1")
	if err != nil {
		t.Fatalf("RefreshInsights: %v", err)
	}
	if out.File.AISummary != "Likely bronchitis." {
		t.Errorf("summary should apply, got %q", out.File.AISummary)
	}
	if !out.Degraded || !strings.Contains(out.Notice, ai.FallbackMessage) {
		t.Errorf("expected degraded notice, got %+v", out)
	}

	f.ai.summaryErr = errors.New("timeout")
	_, before, _ := f.store.Snapshot("PAT-1")
	out, err = f.svc.RefreshInsights(f.ctx, "PAT-1")
	if err != nil {
		t.Fatalf("RefreshInsights: %v", err)
	}
	if _, after, _ := f.store.Snapshot("PAT-1"); after != before || !out.Degraded {
		t.Error("total failure must not change the patient")
	}
}

func TestRefreshInsights_SlowCallOutlivesFastFailure(t *testing.T) {
	f := newFixture(t, withSuggestions(nil))
	f.ai.summaryErr = errors.New("quota exceeded")
	f.ai.suggestWait = 30 * time.Millisecond
	f.ai.suggestions = &ai.FileSuggestions{
		Fields: map[string]ai.SuggestedValue{"family_history": {Text: "Father diabetic"}},
	}

	out, err := f.svc.RefreshInsights(f.ctx, "PAT-1")
	if err != nil {
		t.Fatalf("RefreshInsights: %v", err)
	}
	if !out.Degraded {
		t.Error("expected degraded outcome for the failed summary")
	}
	if got := out.File.AISuggestions["family_history"].Text; got != "Father diabetic" {
		t.Errorf("suggestions should apply after the summary failed, got %q", got)
	}
}
