package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemInstruction = `You assist hospital ward clinicians. Be concise and clinically precise.
Never invent measurements, medications or history that are not present in the input.
When asked for JSON, reply with JSON only.`

func renderJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(b)
}

func summarizePrompt(section, content string) string {
	return fmt.Sprintf("Summarize the %s below for a busy clinician in at most five sentences.\n\n%s",
		section, content)
}

func dischargePrompt(patient any) string {
	return "Compile a discharge summary with the headings Presentation, Course in hospital, " +
		"Investigations, Condition at discharge and Follow-up from this patient record.\n\n" +
		renderJSON(patient)
}

func crossCheckPrompt(patient, round any) string {
	return "Compare the ward round note with the patient record and list every contradiction " +
		"(for example a plan that conflicts with an allergy or a vital sign). " +
		`Reply as {"contradictions": ["..."]}; use an empty list when there are none.` +
		"\n\nPATIENT:\n" + renderJSON(patient) + "\n\nROUND:\n" + renderJSON(round)
}

func followUpPrompt(section, seed string) string {
	return fmt.Sprintf("A clinician is documenting the %s section and wrote:\n%s\n\n"+
		`List the follow-up questions they should ask next. Reply as {"questions": ["..."]}.`,
		section, seed)
}

func suggestFilePrompt(patient any, fields []string) string {
	return "Propose values for the clinical file fields " + strings.Join(fields, ", ") +
		" using only facts in the record. Put structured history of presenting illness under " +
		`"structured_hpi" and allergies as a list under "allergy_history". Also list missing ` +
		"information and inconsistencies. Reply as " +
		`{"fields": {"<field>": {"text": "..."} | {"items": ["..."]}}, "missing_info": [], "inconsistencies": []}.` +
		"\n\n" + renderJSON(patient)
}

func suggestOrdersPrompt(patient any) string {
	return "Suggest the next investigations, medications and nursing orders for this patient. " +
		"category is one of investigation, radiology, medication, procedure, nursing, referral; " +
		"priority is one of routine, urgent, STAT. " +
		`Reply as {"orders": [{"category": "", "label": "", "instructions": "", "priority": ""}]}.` +
		"\n\n" + renderJSON(patient)
}

func handoverPrompt(patient any) string {
	return "Write an SBAR shift handover for this patient in under 120 words.\n\n" + renderJSON(patient)
}

func overviewPrompt(patient any) string {
	return "Write a one-paragraph overview of this patient's current state and active problems.\n\n" +
		renderJSON(patient)
}

// decodeReply parses a JSON reply, tolerating a markdown code fence around it.
func decodeReply(text string, out any) error {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadReply, err)
	}
	return nil
}

// cleanList drops blank entries and surrounding whitespace.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
