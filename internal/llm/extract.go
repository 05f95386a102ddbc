package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"thirdcoast.systems/scanwatch/pkg/utils/format"
)

// MinLocationWords is the shortest transcript, in words, that is searched
// for a location at all.
const MinLocationWords = 6

const stSuffix = `(?i:St(?:\.|reet)?|Ave(?:\.|nue)?|Rd\.?|Road|Blvd\.?|Boulevard|Ln\.?|Lane|` +
	`Dr(?:\.|ive)?|Ct(?:\.|ourt)?|Pl(?:\.|ace)?|Ter(?:\.|race)?|Pkwy\.?|Parkway|` +
	`Cir(?:\.|cle)?|Hwy\.?|Highway)`

// Street name words start with a capital or a digit ("Main", "3rd").
const name = `[A-Z0-9][A-Za-z0-9.\-']*`

var (
	reNumbered = regexp.MustCompile(`\b(\d{1,6})\s+((?:` + name + `\s+){0,4}` + name + `)\s+(` + stSuffix + `)\b` +
		`(?:\s*((?i:apt|unit)\b\.?\s*[A-Za-z0-9\-]+|#\s*[A-Za-z0-9\-]+))?`)
	reIntersection = regexp.MustCompile(`\b((?:` + name + `\s+){0,3}` + name + `\s+` + stSuffix + `)` +
		`\s*(?:&|(?i:and|at)|/)\s*((?:` + name + `\s+){0,3}` + name + `\s+` + stSuffix + `)\b`)
	reHighway = regexp.MustCompile(`(?i)\b((?:I-\d{1,3}|Interstate\s+\d{1,3}|Rt\.?\s*\d{1,3}|Route\s+\d{1,3}|Rte\.?\s+\d{1,3})` +
		`(?:\s?(?:NB|SB|EB|WB))?` +
		`(?:\s*(?:by|at|near)\s*(?:exit\s*\d+[A-Za-z]?|mm\s*\d+(?:\.\d+)?))?)\b`)
	reStreet    = regexp.MustCompile(`\b((?:` + name + `\s+){0,2}` + name + `)\s+(` + stSuffix + `)\b`)
	reNamedArea = regexp.MustCompile(`\b([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+){0,2})\s+(?i:area|square|corner|center|centre)\b`)
)

// RegexLocation returns the most specific location span found by the
// deterministic patterns, in priority order: numbered address,
// intersection, highway or exit, street only, then a tagged named area.
func RegexLocation(text string) (string, bool) {
	if m := reNumbered.FindStringSubmatch(text); m != nil {
		parts := []string{m[1], m[2], m[3]}
		if m[4] != "" {
			parts = append(parts, m[4])
		}
		if s := strings.Join(parts, " "); len(s) <= 50 {
			return s, true
		}
	}
	if m := reIntersection.FindStringSubmatch(text); m != nil {
		if s := m[1] + " & " + m[2]; len(s) <= 60 {
			return s, true
		}
	}
	if m := reHighway.FindStringSubmatch(text); m != nil {
		if s := strings.TrimSpace(m[1]); len(s) <= 40 {
			return s, true
		}
	}
	if m := reStreet.FindStringSubmatch(text); m != nil {
		if s := m[1] + " " + m[2]; len(s) <= 40 {
			return s, true
		}
	}
	for _, m := range reNamedArea.FindAllString(text, -1) {
		if s := strings.TrimSpace(m); len(s) <= 35 {
			return s, true
		}
	}
	return "", false
}

const extractSystem = "You extract addresses from short police radio transcripts. " +
	"Return ONLY the most specific location SUBSTRING that already exists in the user text. " +
	"Do not normalize, infer, or add punctuation not present in that substring. " +
	"Priority: numbered street address > intersection > highway+exit/mm > street-only > named area; " +
	"if nothing is location-like, return NONE. " +
	`Output strict JSON exactly as: {"address":"<substring or NONE>"} with no extra keys.`

var extractExamples = [][2]string{
	{"Caller says suspect ran into 125 Commonwealth Ave Apt 3B, door was propped open.", "125 Commonwealth Ave Apt 3B"},
	{"MVC at Boylston St and Arlington St, both cars drivable.", "Boylston St and Arlington St"},
	{"Vehicle stopped on I-95 SB by exit 21, hazard lights on.", "I-95 SB by exit 21"},
	{"Suspicious person walking from Tremont Street toward the Newton Corner area.", "Tremont Street"},
	{"Loud party in the Harvard Square area, caller can meet outside the station.", "Harvard Square area"},
}

var addressSalvageRe = regexp.MustCompile(`"address"\s*:\s*"([^"]*)"`)

// parseAddress reads {"address": ...} from a model reply, salvaging the
// field when the reply is not clean JSON. NONE and blanks become "".
func parseAddress(raw string) string {
	raw = stripReasoning(raw)
	var addr string
	var obj struct {
		Address string `json:"address"`
	}
	if m := objectRe.FindString(raw); m != "" && json.Unmarshal([]byte(m), &obj) == nil {
		addr = obj.Address
	} else if m := addressSalvageRe.FindStringSubmatch(raw); m != nil {
		addr = m[1]
	}
	addr = format.PlainText(addr)
	if strings.EqualFold(addr, "NONE") {
		return ""
	}
	return addr
}

// Extractor finds the location span in a transcript.
type Extractor struct {
	chat  Chatter
	model string
}

func NewExtractor(chat Chatter, model string) *Extractor {
	return &Extractor{chat: chat, model: model}
}

// Extract returns the location mentioned in transcript, or "" when there
// is none. Short transcripts are not searched.
func (e *Extractor) Extract(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if len(strings.Fields(transcript)) < MinLocationWords {
		return "", nil
	}
	if hit, ok := RegexLocation(transcript); ok {
		return hit, nil
	}

	msgs := make([]Message, 0, 2+2*len(extractExamples))
	msgs = append(msgs, Message{Role: "system", Content: extractSystem})
	for _, ex := range extractExamples {
		msgs = append(msgs,
			Message{Role: "user", Content: ex[0]},
			Message{Role: "assistant", Content: `{"address":"` + ex[1] + `"}`},
		)
	}
	msgs = append(msgs, Message{Role: "user", Content: transcript})

	raw, err := e.chat.Chat(ctx, e.model, msgs, 64)
	if err != nil {
		return "", err
	}
	return parseAddress(raw), nil
}
