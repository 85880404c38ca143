package analyze

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/isscope/isscope/internal/models"
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseAnalysisResponse turns a raw model response into an AnalysisResult.
// Preference order: strict JSON (after stripping an optional markdown
// fence) validated against the schema; a lenient salvage of the individual
// fields that are well-typed; finally an all-default result carrying the
// first 200 characters of the raw response for diagnosis.
func parseAnalysisResponse(raw string) models.AnalysisResult {
	jsonStr := strings.TrimSpace(raw)
	if m := codeFenceRe.FindStringSubmatch(jsonStr); m != nil {
		jsonStr = strings.TrimSpace(m[1])
	}

	// Non-object JSON (a top-level array or scalar) lands in the default
	// branch below; salvage only applies to objects.
	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		out := models.DefaultAnalysis()
		snippet := raw
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		out.AnalysisNotes = "Failed to parse AI response: " + snippet
		return out
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err == nil {
		if result.Validate() == nil {
			if result.SkillsRequired == nil {
				result.SkillsRequired = []string{}
			}
			return result
		}
	}

	return salvage(parsed)
}

// salvage keeps whatever individually well-typed fields the response had
// and fills the rest with defaults.
func salvage(parsed map[string]json.RawMessage) models.AnalysisResult {
	out := models.DefaultAnalysis()

	var s string
	if unmarshalField(parsed, "summary", &s) && s != "" {
		out.Summary = s
	}
	var score int
	if unmarshalField(parsed, "doability_score", &score) {
		out.DoabilityScore = score
	}
	var complexity int
	if unmarshalField(parsed, "complexity", &complexity) {
		out.Complexity = complexity
	}
	var skills []string
	if unmarshalField(parsed, "skills_required", &skills) && skills != nil {
		out.SkillsRequired = skills
	}
	var status models.IssueStatus
	if unmarshalField(parsed, "status", &status) && status != "" {
		out.Status = status
	}

	out.AnalysisNotes = "Partially parsed from AI response."
	return out
}

func unmarshalField(parsed map[string]json.RawMessage, key string, dst any) bool {
	raw, ok := parsed[key]
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
