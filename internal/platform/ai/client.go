package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DejaVu2364/MedflowAG-sub001/internal/platform/metrics"
)

// Model produces a completion for one prompt. JSON mode asks the backend to
// reply with a JSON document.
type Model interface {
	GenerateText(ctx context.Context, prompt string, jsonReply bool) (string, error)
}

// Client implements Gateway on top of a Model. Each call is bounded by the
// configured timeout and recorded in metrics.
type Client struct {
	model   Model
	timeout time.Duration
	logger  zerolog.Logger
}

func NewClient(model Model, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{model: model, timeout: timeout, logger: logger}
}

func (c *Client) call(ctx context.Context, op, prompt string, jsonReply bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.model.GenerateText(ctx, prompt, jsonReply)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyReply
	}
	metrics.RecordAICall(op, err, time.Since(start))
	if err != nil {
		ev := c.logger.Warn()
		if errors.Is(err, context.DeadlineExceeded) {
			ev = ev.Bool("timeout", true)
		}
		ev.Err(err).Str("operation", op).Dur("elapsed", time.Since(start)).Msg("ai call failed")
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) callJSON(ctx context.Context, op, prompt string, out any) error {
	text, err := c.call(ctx, op, prompt, true)
	if err != nil {
		return err
	}
	if err := decodeReply(text, out); err != nil {
		c.logger.Warn().Err(err).Str("operation", op).Msg("ai reply rejected")
		return err
	}
	return nil
}

func (c *Client) Summarize(ctx context.Context, section, content string) (string, error) {
	return c.call(ctx, "summarize", summarizePrompt(section, content), false)
}

func (c *Client) CompileDischargeSummary(ctx context.Context, patient any) (string, error) {
	return c.call(ctx, "discharge_summary", dischargePrompt(patient), false)
}

func (c *Client) CrossCheckRound(ctx context.Context, patient, round any) ([]string, error) {
	var reply struct {
		Contradictions []string `json:"contradictions"`
	}
	if err := c.callJSON(ctx, "cross_check", crossCheckPrompt(patient, round), &reply); err != nil {
		return nil, err
	}
	return cleanList(reply.Contradictions), nil
}

func (c *Client) FollowUpQuestions(ctx context.Context, section, seedText string) ([]string, error) {
	var reply struct {
		Questions []string `json:"questions"`
	}
	if err := c.callJSON(ctx, "follow_up", followUpPrompt(section, seedText), &reply); err != nil {
		return nil, err
	}
	return cleanList(reply.Questions), nil
}

// SuggestableFields lists the clinical-file keys the model may fill.
var SuggestableFields = []string{
	"chief_complaint", "structured_hpi", "past_medical_history", "medication_history",
	"allergy_history", "family_history", "social_history", "general_examination",
	"systemic_examination", "provisional_diagnosis",
}

func (c *Client) SuggestClinicalFile(ctx context.Context, patient any) (*FileSuggestions, error) {
	var reply FileSuggestions
	if err := c.callJSON(ctx, "suggest_file", suggestFilePrompt(patient, SuggestableFields), &reply); err != nil {
		return nil, err
	}
	for k, v := range reply.Fields {
		v.Text = strings.TrimSpace(v.Text)
		v.Items = cleanList(v.Items)
		if len(v.Items) == 0 {
			// Text fields carry no list.
			v.Items = nil
		}
		if v.Text == "" && len(v.Items) == 0 {
			delete(reply.Fields, k)
			continue
		}
		reply.Fields[k] = v
	}
	reply.MissingInfo = cleanList(reply.MissingInfo)
	reply.Inconsistencies = cleanList(reply.Inconsistencies)
	return &reply, nil
}

func (c *Client) SuggestOrders(ctx context.Context, patient any) ([]OrderSuggestion, error) {
	var reply struct {
		Orders []OrderSuggestion `json:"orders"`
	}
	if err := c.callJSON(ctx, "suggest_orders", suggestOrdersPrompt(patient), &reply); err != nil {
		return nil, err
	}
	out := reply.Orders[:0]
	for _, o := range reply.Orders {
		if strings.TrimSpace(o.Label) == "" {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (c *Client) Handover(ctx context.Context, patient any) (string, error) {
	return c.call(ctx, "handover", handoverPrompt(patient), false)
}

func (c *Client) Overview(ctx context.Context, patient any) (string, error) {
	return c.call(ctx, "overview", overviewPrompt(patient), false)
}
