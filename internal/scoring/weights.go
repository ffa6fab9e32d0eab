package scoring

// DistanceBand awards Points to jobs at most MaxKm away.
type DistanceBand struct {
	MaxKm  float64
	Points int
	Label  string
}

// Weights are the point schedule of the local scorer. The defaults are
// product-tuned; adjust them as a whole rather than one by one.
type Weights struct {
	// SkillTiers holds the cumulative points of the first matches.
	SkillTiers     []int
	SkillExtraStep int
	SkillExtraCap  int
	SkillCap       int
	SkillTitleStep int
	SkillTitleCap  int

	SkillFuzzyThreshold   float64
	SkillKeywordExact     float64
	SkillKeywordFuzzy     float64
	SkillKeywordThreshold float64

	HeadlineStep        int
	HeadlineCap         int
	HeadlineFuzzyWeight float64

	KeywordStep      int
	KeywordCap       int
	KeywordTitleStep int
	KeywordTitleCap  int

	DistanceBands    []DistanceBand
	FarLabel         string
	SameCityPoints   int
	SameRegionPoints int

	LanguageStep int
	LanguageCap  int

	ExperienceSufficient  int
	ExperiencePartial     int
	ExperienceUnspecified int
	PartialRatio          float64

	MinScore    int
	MaxScore    int
	NoDataScore int
}

// DefaultWeights returns the stock point schedule.
func DefaultWeights() Weights {
	return Weights{
		SkillTiers:     []int{10, 18, 24, 29},
		SkillExtraStep: 3,
		SkillExtraCap:  11,
		SkillCap:       40,
		SkillTitleStep: 8,
		SkillTitleCap:  15,

		SkillFuzzyThreshold:   0.75,
		SkillKeywordExact:     0.5,
		SkillKeywordFuzzy:     0.3,
		SkillKeywordThreshold: 0.8,

		HeadlineStep:        5,
		HeadlineCap:         15,
		HeadlineFuzzyWeight: 0.7,

		KeywordStep:      3,
		KeywordCap:       12,
		KeywordTitleStep: 8,
		KeywordTitleCap:  16,

		DistanceBands: []DistanceBand{
			{MaxKm: 10, Points: 15, Label: "très proche"},
			{MaxKm: 25, Points: 12, Label: "proche"},
			{MaxKm: 50, Points: 8, Label: "distance moyenne"},
			{MaxKm: 75, Points: 5, Label: "éloigné"},
			{MaxKm: 100, Points: 2, Label: "lointain"},
		},
		FarLabel:         "très lointain",
		SameCityPoints:   10,
		SameRegionPoints: 5,

		LanguageStep: 5,
		LanguageCap:  10,

		ExperienceSufficient:  10,
		ExperiencePartial:     5,
		ExperienceUnspecified: 3,
		PartialRatio:          0.7,

		MinScore:    10,
		MaxScore:    95,
		NoDataScore: 30,
	}
}

// skillPoints converts the running match count into points.
func (w Weights) skillPoints(matched float64) int {
	n := int(roundHalfUp(matched))
	if n <= 0 {
		return 0
	}
	if n <= len(w.SkillTiers) {
		return w.SkillTiers[n-1]
	}

	base := 0
	if len(w.SkillTiers) > 0 {
		base = w.SkillTiers[len(w.SkillTiers)-1]
	}
	extra := min((n-len(w.SkillTiers))*w.SkillExtraStep, w.SkillExtraCap)
	return min(base+extra, w.SkillCap)
}

func (w Weights) distanceBand(km float64) (int, string) {
	for _, b := range w.DistanceBands {
		if km <= b.MaxKm {
			return b.Points, b.Label
		}
	}
	return 0, w.FarLabel
}
