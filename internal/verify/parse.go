package verify

import (
	"encoding/json"
	"strings"

	"github.com/claimsift/claimsift/internal/model"
)

// oracleReply is the JSON shape the prompt asks for.
type oracleReply struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

// labelStances maps reply labels to stances. Scanned in order, so the more
// specific labels ("PARTIALLY TRUE", "INACCURATE") must come before the
// substrings they contain ("TRUE", "ACCURATE").
var labelStances = []struct {
	label  string
	stance model.Stance
}{
	{"INSUFFICIENT EVIDENCE", model.StanceInconclusive},
	{"PARTIALLY TRUE", model.StanceInconclusive},
	{"PARTLY TRUE", model.StanceInconclusive},
	{"NOT RELEVANT", model.StanceUnrelated},
	{"INCONCLUSIVE", model.StanceInconclusive},
	{"UNVERIFIABLE", model.StanceInconclusive},
	{"MIXTURE", model.StanceInconclusive},
	{"MIXED", model.StanceInconclusive},
	{"UNCLEAR", model.StanceInconclusive},
	{"UNRELATED", model.StanceUnrelated},
	{"IRRELEVANT", model.StanceUnrelated},
	{"INACCURATE", model.StanceRefutes},
	{"INCORRECT", model.StanceRefutes},
	{"REFUTE", model.StanceRefutes},
	{"FALSE", model.StanceRefutes},
	{"SUPPORT", model.StanceSupports},
	{"ACCURATE", model.StanceSupports},
	{"CORRECT", model.StanceSupports},
	{"TRUE", model.StanceSupports},
}

const labelScanConfidence = 0.5

// ParseReply normalizes a raw oracle reply. It tries strict JSON first
// (after stripping code fences and surrounding prose), then falls back to
// scanning for a bare verdict label. A reply that maps to nothing yields
// inconclusive with zero confidence: the oracle answered, we just could not
// read it, so the verdict status stays ok.
func ParseReply(raw string) (model.Stance, float64, string) {
	cleaned := cleanJSON(raw)

	var reply oracleReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err == nil {
		if stance, ok := stanceFromLabel(reply.Verdict); ok {
			return stance, clampConfidence(reply.Confidence), strings.TrimSpace(reply.Rationale)
		}
	}

	if stance, ok := scanForLabel(raw); ok {
		return stance, labelScanConfidence, summarizeReply(raw)
	}

	return model.StanceInconclusive, 0, ""
}

// stanceFromLabel matches a whole label like "supports" or "Partially True".
func stanceFromLabel(label string) (model.Stance, bool) {
	norm := strings.ToUpper(strings.TrimSpace(label))
	norm = strings.Trim(norm, ".!\"'")
	if norm == "" {
		return "", false
	}
	for _, ls := range labelStances {
		switch norm {
		case ls.label, ls.label + "S", ls.label + "D", ls.label + "ED":
			return ls.stance, true
		}
	}
	return "", false
}

// scanForLabel looks for a known label anywhere in a free-text reply.
func scanForLabel(raw string) (model.Stance, bool) {
	upper := strings.ToUpper(raw)
	for _, ls := range labelStances {
		if strings.Contains(upper, ls.label) {
			return ls.stance, true
		}
	}
	return "", false
}

// cleanJSON strips markdown code fences and surrounding prose, keeping the
// outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// summarizeReply turns a free-text reply into a short rationale.
func summarizeReply(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	return prefixCut(s, 280)
}
