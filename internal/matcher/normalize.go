package matcher

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openjobs/jobmatch/internal/scoring"
)

// UnparsableScore replaces a score the model did not express as a number.
const UnparsableScore = 50

// normalize maps a model reply object onto a Result. Short reply keys are
// renamed: skills, missing, exp, loc and txt.
func normalize(jobID string, data map[string]any, timestamp int64) *scoring.Result {
	score := coerceFloat(data["score"])
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = UnparsableScore
	}
	score = math.Max(0, math.Min(100, score))

	return &scoring.Result{
		JobID:           jobID,
		Score:           int(math.Floor(score + 0.5)),
		MatchingSkills:  coerceStrings(data["skills"]),
		MissingSkills:   coerceStrings(data["missing"]),
		ExperienceMatch: coerceString(data["exp"]),
		LocationMatch:   coerceString(data["loc"]),
		Summary:         coerceString(data["txt"]),
		IsAIScore:       true,
		Timestamp:       timestamp,
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		trimmed := strings.TrimSpace(val)
		trimmed = strings.TrimSuffix(trimmed, "%")
		if i := strings.IndexByte(trimmed, '/'); i > 0 {
			trimmed = trimmed[:i]
		}
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// coerceStrings accepts a list or a comma-separated string and drops empty
// entries.
func coerceStrings(v any) []string {
	var items []string
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		for _, item := range val {
			items = append(items, coerceString(item))
		}
	case []string:
		items = val
	case string:
		items = strings.Split(val, ",")
	default:
		items = []string{coerceString(val)}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
