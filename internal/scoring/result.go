package scoring

import "math"

// Experience match labels.
const (
	ExperienceSufficient   = "sufficient"
	ExperiencePartial      = "partial"
	ExperienceInsufficient = "insufficient"
	ExperienceUnspecified  = "unspecified"
)

// Result is a job relevance score with its diagnostics. Exactly one of
// IsAIScore and IsLocalScore is set.
type Result struct {
	JobID           string   `json:"jobId"`
	Score           int      `json:"score"`
	MatchingSkills  []string `json:"matchingSkills"`
	MissingSkills   []string `json:"missingSkills"`
	FuzzyMatches    []string `json:"fuzzyMatches"`
	ExperienceMatch string   `json:"experienceMatch"`
	LocationMatch   string   `json:"locationMatch"`
	Summary         string   `json:"summary"`
	IsAIScore       bool     `json:"isAiScore"`
	IsLocalScore    bool     `json:"isLocalScore"`
	Timestamp       int64    `json:"timestamp"`
	Details         *Details `json:"details,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Details holds per-bucket counts and points of a local score.
type Details struct {
	NoData bool `json:"noData,omitempty"`

	SkillMatches      float64 `json:"skillMatches"`
	SkillTitleMatches int     `json:"skillTitleMatches"`
	SkillPoints       int     `json:"skillPoints"`
	SkillTitlePoints  int     `json:"skillTitlePoints"`

	HeadlineMatches float64 `json:"headlineMatches"`
	HeadlinePoints  int     `json:"headlinePoints"`

	KeywordMatches      int `json:"keywordMatches"`
	KeywordTitleMatches int `json:"keywordTitleMatches"`
	KeywordPoints       int `json:"keywordPoints"`
	KeywordTitlePoints  int `json:"keywordTitlePoints"`

	DistanceKm     *float64 `json:"distanceKm,omitempty"`
	LocationPoints int      `json:"locationPoints"`

	LanguageMatches int `json:"languageMatches"`
	LanguagePoints  int `json:"languagePoints"`

	RequiredYears    *int `json:"requiredYears,omitempty"`
	ExperiencePoints int  `json:"experiencePoints"`

	RawScore int `json:"rawScore"`
}

// ValidScore reports whether score is a finite number in [0,100].
func ValidScore(score float64) bool {
	return !math.IsNaN(score) && !math.IsInf(score, 0) && score >= 0 && score <= 100
}
