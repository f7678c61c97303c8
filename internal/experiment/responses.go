package experiment

import (
	"fmt"
	"strings"

	"github.com/mindlog-lab/mindlog/internal/model"
)

// ConfigurationError lists the (variant, severity) cells missing from a
// response table. It is raised at construction, never at selection time.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "response table incomplete, missing: " + strings.Join(e.Missing, ", ")
}

// ResponseTable is a total mapping from (variant, severity) to a canned
// response.
type ResponseTable struct {
	cells [2][3]string
}

// NewResponseTable validates that every cell has a non-empty message.
func NewResponseTable(entries map[model.Variant]map[model.Severity]string) (*ResponseTable, error) {
	var t ResponseTable
	var missing []string

	for vi, v := range model.Variants {
		for si, s := range model.Severities {
			msg := strings.TrimSpace(entries[v][s])
			if msg == "" {
				missing = append(missing, fmt.Sprintf("%s/%s", v, s))
				continue
			}
			t.cells[vi][si] = msg
		}
	}

	if len(missing) > 0 {
		return nil, &ConfigurationError{Missing: missing}
	}
	return &t, nil
}

// Select returns the response for a variant and severity. It fails only for
// values outside the enumerations.
func (t *ResponseTable) Select(v model.Variant, s model.Severity) (string, error) {
	vi := variantIndex(v)
	si := s.Rank()
	if vi < 0 || si < 0 {
		return "", fmt.Errorf("no response cell for variant %q severity %q", v, s)
	}
	return t.cells[vi][si], nil
}

func variantIndex(v model.Variant) int {
	for i, candidate := range model.Variants {
		if candidate == v {
			return i
		}
	}
	return -1
}

// DefaultResponses holds the clinical (A) and empathetic (B) scripts.
func DefaultResponses() map[model.Variant]map[model.Severity]string {
	return map[model.Variant]map[model.Severity]string{
		model.VariantA: {
			model.SeverityMild: "**Assessment Complete**\n\n" +
				"Symptom severity: **Mild**\n\n" +
				"Your responses indicate low distress levels. " +
				"Preventive self-care is recommended. " +
				"Professional consultation available if desired.",
			model.SeverityModerate: "**Assessment Complete**\n\n" +
				"Symptom severity: **Moderate**\n\n" +
				"Your responses indicate moderate distress. " +
				"Recommended action: Consultation with a mental health professional. " +
				"Early intervention can prevent escalation.",
			model.SeveritySevere: "**Assessment Complete**\n\n" +
				"Symptom severity: **High**\n\n" +
				"Your responses indicate significant distress. " +
				"Immediate professional support is strongly recommended. " +
				"A counselor can help you navigate these feelings.",
		},
		model.VariantB: {
			model.SeverityMild: "Thank you for sharing with me.\n\n" +
				"It sounds like you're managing, and that takes strength. " +
				"Even when things feel okay, having someone to talk to can help maintain your wellbeing. " +
				"Would you like to explore some self-care resources, or connect with a supportive listener?",
			model.SeverityModerate: "I hear you, and I want you to know that what you're feeling matters.\n\n" +
				"It sounds like you're carrying quite a bit right now. " +
				"You don't have to figure this out alone. " +
				"Speaking with someone who understands can make a real difference. " +
				"Would you be open to connecting with a counselor who can help?",
			model.SeveritySevere: "I'm really glad you reached out. What you're going through sounds incredibly hard.\n\n" +
				"Please know that these feelings, as overwhelming as they are, can get better with support. " +
				"You've taken an important step by sharing this. " +
				"I'd really encourage you to speak with someone who can help you through this. " +
				"Would you like to connect with a counselor now?",
		},
	}
}

// DefaultCrisisMessage is shown instead of any variant response when the
// crisis protocol fires.
const DefaultCrisisMessage = `## You're Not Alone

If you're having thoughts of self-harm, please reach out now:

- SOS 24-hour Hotline: 1-767
- IMH Mental Health Helpline: 6389-2222
- Samaritans of Singapore: 1800-221-4444

These services are free, confidential, and available 24/7.

You matter. Help is available.`
