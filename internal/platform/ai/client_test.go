package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type fakeModel struct {
	reply    string
	err      error
	block    bool
	prompts  []string
	jsonMode []bool
}

func (f *fakeModel) GenerateText(ctx context.Context, prompt string, jsonReply bool) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.jsonMode = append(f.jsonMode, jsonReply)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func newTestClient(m Model) *Client {
	return NewClient(m, time.Second, zerolog.Nop())
}

func TestClient_Summarize(t *testing.T) {
	m := &fakeModel{reply: "  Stable overnight.  "}
	c := newTestClient(m)

	got, err := c.Summarize(context.Background(), "vitals", "HR 80")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Stable overnight." {
		t.Errorf("expected trimmed reply, got %q", got)
	}
	if m.jsonMode[0] {
		t.Error("summaries should not request JSON")
	}
	if !strings.Contains(m.prompts[0], "HR 80") {
		t.Error("expected content in prompt")
	}
}

func TestClient_EmptyReply(t *testing.T) {
	c := newTestClient(&fakeModel{reply: "   "})
	_, err := c.Handover(context.Background(), map[string]string{"id": "PAT-1"})
	if !errors.Is(err, ErrEmptyReply) {
		t.Errorf("expected ErrEmptyReply, got %v", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	c := NewClient(&fakeModel{block: true}, 20*time.Millisecond, zerolog.Nop())
	_, err := c.Overview(context.Background(), struct{}{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_CrossCheckRound(t *testing.T) {
	m := &fakeModel{reply: "```json\n{\"contradictions\": [\"Penicillin prescribed despite allergy\", \" \"]}\n```"}
	c := newTestClient(m)

	got, err := c.CrossCheckRound(context.Background(), struct{}{}, struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"Penicillin prescribed despite allergy"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("findings mismatch (-want +got):\n%s", diff)
	}
	if !m.jsonMode[0] {
		t.Error("cross-check should request JSON")
	}
}

func TestClient_BadJSON(t *testing.T) {
	c := newTestClient(&fakeModel{reply: "no contradictions found"})
	_, err := c.CrossCheckRound(context.Background(), nil, nil)
	if !errors.Is(err, ErrBadReply) {
		t.Errorf("expected ErrBadReply, got %v", err)
	}
}

func TestClient_SuggestClinicalFile(t *testing.T) {
	reply := `{
		"fields": {
			"chief_complaint": {"text": " Chest pain "},
			"allergy_history": {"items": ["Penicillin", ""]},
			"family_history": {"text": ""},
			"social_history": {"text": "Smoker", "items": [" "]}
		},
		"missing_info": ["Smoking history"],
		"inconsistencies": []
	}`
	c := newTestClient(&fakeModel{reply: reply})

	got, err := c.SuggestClinicalFile(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &FileSuggestions{
		Fields: map[string]SuggestedValue{
			"chief_complaint": {Text: "Chest pain"},
			"allergy_history": {Items: []string{"Penicillin"}},
			"social_history":  {Text: "Smoker"},
		},
		MissingInfo:     []string{"Smoking history"},
		Inconsistencies: []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("suggestions mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_SuggestOrdersDropsUnlabelled(t *testing.T) {
	reply := `{"orders": [
		{"category": "investigation", "label": "CBC", "priority": "routine"},
		{"category": "medication", "label": "", "priority": "STAT"}
	]}`
	c := newTestClient(&fakeModel{reply: reply})

	got, err := c.SuggestOrders(context.Background(), struct{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Label != "CBC" {
		t.Errorf("expected only CBC, got %+v", got)
	}
}

func TestClient_ModelError(t *testing.T) {
	boom := errors.New("quota exceeded")
	c := newTestClient(&fakeModel{err: boom})
	_, err := c.FollowUpQuestions(context.Background(), "hpi", "fever for 3 days")
	if !errors.Is(err, boom) {
		t.Errorf("expected model error, got %v", err)
	}
}

func TestDisabled(t *testing.T) {
	var g Gateway = Disabled{}
	if _, err := g.Summarize(context.Background(), "a", "b"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if _, err := g.SuggestOrders(context.Background(), nil); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestTextOrFallback(t *testing.T) {
	if got, ok := TextOrFallback("ok", nil); got != "ok" || !ok {
		t.Errorf("expected passthrough, got %q %v", got, ok)
	}
	if got, ok := TextOrFallback("ignored", errors.New("x")); got != FallbackMessage || ok {
		t.Errorf("expected fallback on error, got %q %v", got, ok)
	}
	if got, ok := TextOrFallback("", nil); got != FallbackMessage || ok {
		t.Errorf("expected fallback on empty, got %q %v", got, ok)
	}
}
