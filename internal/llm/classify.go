package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"thirdcoast.systems/scanwatch/internal/incident"
)

// Chatter is the subset of Client the prompts need.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []Message, maxTokens int) (string, error)
}

// Classifier assigns one label from the closed set to a transcript.
type Classifier struct {
	chat  Chatter
	model string
}

func NewClassifier(chat Chatter, model string) *Classifier {
	return &Classifier{chat: chat, model: model}
}

var classifySystem = `You are a dispatcher-grade classifier for police/fire radio transcripts.

Return ONLY this JSON object (no extra text):
{"label":"<one-of-allowed-labels>"}

Allowed labels (choose exactly one):
` + "- " + strings.Join(incident.Labels, "\n- ") + `

Decision rules:
1) Purely administrative/status/test traffic ("clear of hospital", "back in service", "copy", availability or command updates) that describes no incident: "unknown".
2) Patient condition, injury, sickness, overdose, fall, chest pain, psych evaluation transport: "Medical".
3) Well-being check, suicidal ideation, elderly not answering: "Welfare Check".
4) CO/smoke detectors and automatic alarms without confirmed fire: "Fire Alarm".
5) Confirmed active fire in a structure: "Structure Fire".
6) Brush, vehicle or dumpster fire: "Brush/Vehicle Fire".
7) Wires down or arcing: "Wires Down".
8) Odor of gas or an electrical hazard inside: "Gas/Electrical Hazard".
9) Suspicious package: "Hazmat" only when hazardous materials are clearly involved, otherwise "Suspicious Activity".
10) Shoplifting, larceny, burglary: "Theft/Burglary".
11) Disputes, parties, disorderly conduct without assault or weapons: "Disturbance/Noise".
12) Assault or domestic violence, prioritised over Disturbance/Noise: "Assault/Domestic".
13) Shots heard or a weapon brandished: "Weapons/Shots Fired".
14) Officer-initiated stop, not a crash: "Traffic Stop".
15) Crash or MVA, even with injuries: "Motor Vehicle Accident".
16) Burglar, panic or hold-up alarms, not fire alarms: "Alarm (Burglar/Panic)".
17) Animal issues: "Animal Complaint".
18) Missing or endangered person: "Missing Person".
19) An incident whose subtype is unclear, or empty/garbled text: "unknown".

Output exactly JSON like {"label":"Medical"}; no explanations or extra keys.`

var classifyExamples = [][2]string{
	{"We're clear of the hospital and available in the city.", "unknown"},
	{"Maintain command for a few minutes; assisting the medic.", "unknown"},
	{"Check the well-being of a female with suicidal ideation at 649 Quentin Place.", "Welfare Check"},
	{"Medic 2 respond for psych eval, clear to enter per PD.", "Medical"},
	{"Black cylinder-shaped item on the sidewalk, caller unsure what it is.", "Suspicious Activity"},
	{"Residential CO detector activation at 206 Winslow Road.", "Fire Alarm"},
	{"Shoplifting at Bloomingdale's, sunglasses taken, suspect headed toward the mall.", "Theft/Burglary"},
	{"Unit 12 out on a traffic stop, blue Honda Civic.", "Traffic Stop"},
	{"Two-car crash at Beacon and Centre, no entrapment reported.", "Motor Vehicle Accident"},
	{"Vehicle on fire on the shoulder, flames visible.", "Brush/Vehicle Fire"},
}

func classifyPrompt(transcript string) string {
	var sb strings.Builder
	for _, ex := range classifyExamples {
		fmt.Fprintf(&sb, "Example Incident: %s\nExample Output: {\"label\":%q}\n", ex[0], ex[1])
	}
	sb.WriteString("\nClassify the following radio transcript using EXACTLY one allowed label. ")
	sb.WriteString(`If there is no incident (admin/status/test only), return "unknown". `)
	sb.WriteString(`If there is an incident but the type is unclear, use "unknown". `)
	sb.WriteString("Allowed: " + strings.Join(incident.Labels, ", ") + ". ")
	sb.WriteString(`Return ONLY JSON like {"label":"Medical"}.` + "\n\nIncident:\n")
	sb.WriteString(transcript)
	return sb.String()
}

func shortClassifyPrompt(transcript string) string {
	return `Return ONLY {"label":"<label>"} for this transcript.` + "\n" +
		"Allowed: " + strings.Join(incident.Labels, ", ") + ".\n\nTranscript:\n" + transcript
}

var (
	thinkRe  = regexp.MustCompile(`(?s)<think>.*?</think>`)
	objectRe = regexp.MustCompile(`(?s)\{.*\}`)
	fold     = cases.Fold()
)

// stripReasoning removes <think> blocks emitted by reasoning models.
func stripReasoning(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}

// parseLabel extracts a label from a model reply. ok is false when the
// reply carried neither a JSON object nor any recognisable label.
func parseLabel(raw string) (label string, ok bool) {
	raw = stripReasoning(raw)
	if m := objectRe.FindString(raw); m != "" {
		var obj struct {
			Label string `json:"label"`
		}
		if err := json.Unmarshal([]byte(m), &obj); err == nil {
			return incident.NormalizeLabel(obj.Label), true
		}
	}

	folded := fold.String(raw)
	for _, l := range incident.Labels {
		if strings.Contains(folded, fold.String(l)) {
			return l, true
		}
	}
	return incident.LabelUnknown, false
}

// Classify returns a label from the closed set. A reply that cannot be
// parsed is retried once with a minimal prompt and then settles on
// unknown; only transport failures are returned as errors.
func (c *Classifier) Classify(ctx context.Context, transcript string) (string, error) {
	raw, err := c.chat.Chat(ctx, c.model, []Message{
		{Role: "system", Content: classifySystem},
		{Role: "user", Content: classifyPrompt(transcript)},
	}, 0)
	if err != nil {
		return "", err
	}
	if label, ok := parseLabel(raw); ok {
		return label, nil
	}

	slog.Debug("classification reply unparseable, retrying", "reply", raw)
	raw, err = c.chat.Chat(ctx, c.model, []Message{
		{Role: "system", Content: `Return ONLY compact JSON like {"label":"Medical"}.`},
		{Role: "user", Content: shortClassifyPrompt(transcript)},
	}, 0)
	if err != nil {
		return "", err
	}
	label, _ := parseLabel(raw)
	return label, nil
}
