// Package ai is the boundary to the language model that drafts summaries,
// suggestions and consistency findings for clinicians. Every call is
// fallible; callers substitute FallbackMessage instead of storing faults.
package ai

import (
	"context"
	"errors"
	"time"
)

// FallbackMessage is shown wherever a generated text could not be produced.
const FallbackMessage = "AI failed."

// DefaultTimeout bounds a single gateway call.
const DefaultTimeout = 15 * time.Second

var (
	ErrUnavailable = errors.New("ai gateway unavailable")
	ErrEmptyReply  = errors.New("ai gateway returned an empty reply")
	ErrBadReply    = errors.New("ai gateway returned an unparseable reply")
)

// SuggestedValue is a proposed value for one clinical-file field. List
// fields use Items, everything else uses Text.
type SuggestedValue struct {
	Text  string   `json:"text,omitempty"`
	Items []string `json:"items,omitempty"`
}

// FileSuggestions is the reply to SuggestClinicalFile.
type FileSuggestions struct {
	Fields          map[string]SuggestedValue `json:"fields"`
	MissingInfo     []string                  `json:"missing_info"`
	Inconsistencies []string                  `json:"inconsistencies"`
}

// OrderSuggestion is a draft order proposed by the model.
type OrderSuggestion struct {
	Category     string `json:"category"`
	Label        string `json:"label"`
	Instructions string `json:"instructions"`
	Priority     string `json:"priority"`
}

// Gateway is the model-facing contract. Inputs are plain values that are
// serialized into the prompt; implementations must not retain them.
type Gateway interface {
	Summarize(ctx context.Context, section, content string) (string, error)
	CompileDischargeSummary(ctx context.Context, patient any) (string, error)
	CrossCheckRound(ctx context.Context, patient, round any) ([]string, error)
	FollowUpQuestions(ctx context.Context, section, seedText string) ([]string, error)
	SuggestClinicalFile(ctx context.Context, patient any) (*FileSuggestions, error)
	SuggestOrders(ctx context.Context, patient any) ([]OrderSuggestion, error)
	Handover(ctx context.Context, patient any) (string, error)
	Overview(ctx context.Context, patient any) (string, error)
}

// Disabled is used when no model is configured. Every call fails with
// ErrUnavailable so call sites take their fallback path.
type Disabled struct{}

func (Disabled) Summarize(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) CompileDischargeSummary(context.Context, any) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) CrossCheckRound(context.Context, any, any) ([]string, error) {
	return nil, ErrUnavailable
}

func (Disabled) FollowUpQuestions(context.Context, string, string) ([]string, error) {
	return nil, ErrUnavailable
}

func (Disabled) SuggestClinicalFile(context.Context, any) (*FileSuggestions, error) {
	return nil, ErrUnavailable
}

func (Disabled) SuggestOrders(context.Context, any) ([]OrderSuggestion, error) {
	return nil, ErrUnavailable
}

func (Disabled) Handover(context.Context, any) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) Overview(context.Context, any) (string, error) {
	return "", ErrUnavailable
}

// TextOrFallback returns text, or FallbackMessage when err is set or the text
// is blank.
func TextOrFallback(text string, err error) (string, bool) {
	if err != nil || text == "" {
		return FallbackMessage, false
	}
	return text, true
}
