// Package scoring ranks jobs against a profile with deterministic text,
// location and experience heuristics.
package scoring

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/features"
	"github.com/openjobs/jobmatch/internal/geo"
	"github.com/openjobs/jobmatch/internal/jobs"
	"github.com/openjobs/jobmatch/internal/profile"
	"github.com/openjobs/jobmatch/internal/similarity"
)

const (
	minSkillWordLength   = 3
	minHeadlineWordRunes = 4
	minKeywordRunes      = 4
)

var experienceRe = regexp.MustCompile(`(?i)(\d+)\s*(?:\+\s*)?(années|annees|ans|jaar)\b`)

type Option func(*Scorer)

// WithUserLocation sets the coordinates distances are measured from.
func WithUserLocation(p *geo.Point) Option {
	return func(s *Scorer) {
		if p != nil && p.Valid() {
			s.location = p
		}
	}
}

func WithWeights(w Weights) Option {
	return func(s *Scorer) { s.weights = w }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// Scorer computes local scores. It holds no per-job state and is safe for
// concurrent use.
type Scorer struct {
	weights  Weights
	location *geo.Point
	logger   *zap.Logger
	now      func() time.Time
}

func New(opts ...Option) *Scorer {
	s := &Scorer{
		weights: DefaultWeights(),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// jobView is the normalized form of a job shared by every bucket.
type jobView struct {
	job        *jobs.Job
	text       string
	title      string
	words      features.Words
	titleWords features.Words
}

// Score rates job for p. It returns nil when either is nil.
func (s *Scorer) Score(p *profile.Profile, job *jobs.Job) *Result {
	if p == nil || job == nil {
		return nil
	}

	w := s.weights
	res := &Result{
		JobID:          job.ID,
		IsLocalScore:   true,
		Timestamp:      s.now().UnixMilli(),
		MatchingSkills: []string{},
		MissingSkills:  []string{},
		FuzzyMatches:   []string{},
		Details:        &Details{},
	}

	text, ok := features.BuildJobText(job)
	if !ok {
		res.Score = w.NoDataScore
		res.ExperienceMatch = ExperienceUnspecified
		res.Summary = "Données insuffisantes pour évaluer cette offre"
		res.Details.NoData = true
		res.Details.RawScore = w.NoDataScore
		s.logger.Debug("not enough job data to score", zap.String("job_id", job.ID), zap.Int("text_length", utf8.RuneCountInString(text)))
		return res
	}

	title := features.TitleText(job)
	view := &jobView{
		job:        job,
		text:       text,
		title:      title,
		words:      features.ExtractWords(text),
		titleWords: features.ExtractWords(title),
	}
	d := res.Details

	s.scoreSkills(p, view, res)
	d.SkillPoints = w.skillPoints(d.SkillMatches)
	d.SkillTitlePoints = min(w.SkillTitleCap, d.SkillTitleMatches*w.SkillTitleStep)

	d.HeadlineMatches = s.headlineMatches(p.Headline, view)
	d.HeadlinePoints = min(w.HeadlineCap, int(roundHalfUp(d.HeadlineMatches*float64(w.HeadlineStep))))

	d.KeywordMatches, d.KeywordTitleMatches = keywordMatches(p.Keywords, view)
	d.KeywordPoints = min(w.KeywordCap, d.KeywordMatches*w.KeywordStep)
	d.KeywordTitlePoints = min(w.KeywordTitleCap, d.KeywordTitleMatches*w.KeywordTitleStep)

	d.LocationPoints, res.LocationMatch = s.scoreLocation(p, job, d)

	d.LanguageMatches = languageMatches(p.Languages, view)
	d.LanguagePoints = min(w.LanguageCap, d.LanguageMatches*w.LanguageStep)

	d.ExperiencePoints, res.ExperienceMatch = s.scoreExperience(p.ExperienceYears, text, d)

	d.RawScore = d.SkillPoints + d.SkillTitlePoints + d.HeadlinePoints + d.KeywordPoints +
		d.KeywordTitlePoints + d.LocationPoints + d.LanguagePoints + d.ExperiencePoints
	res.Score = max(w.MinScore, min(w.MaxScore, d.RawScore))
	res.Summary = summarize(res)

	s.logger.Debug("local score computed",
		zap.String("job_id", job.ID),
		zap.Int("score", res.Score),
		zap.Int("raw_score", d.RawScore),
		zap.Float64("skill_matches", d.SkillMatches),
	)

	return res
}

func (s *Scorer) scoreSkills(p *profile.Profile, v *jobView, res *Result) {
	w := s.weights
	d := res.Details

	for _, skill := range p.Skills {
		name := strings.ToLower(strings.TrimSpace(skill.Name))
		if name == "" {
			continue
		}

		matched, inTitle, fuzzy := s.matchSkill(skill.Name, name, v)
		if matched {
			d.SkillMatches++
			if inTitle {
				d.SkillTitleMatches++
			}
			res.MatchingSkills = append(res.MatchingSkills, skill.Name)
			if fuzzy != "" {
				res.FuzzyMatches = append(res.FuzzyMatches, fuzzy)
			}
		}

		// Skill keywords add partial matches and never count toward the title bonus.
		credit := 0.0
		for _, kw := range skill.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if strings.Contains(v.text, kw) {
				credit += w.SkillKeywordExact
				continue
			}
			if utf8.RuneCountInString(kw) < minSkillWordLength {
				continue
			}
			if m, ok := similarity.FindBestMatch(kw, v.words.Slice(), w.SkillKeywordThreshold); ok {
				credit += w.SkillKeywordFuzzy
				res.FuzzyMatches = append(res.FuzzyMatches, annotate(kw, m))
			}
		}
		d.SkillMatches += credit
	}

	res.MissingSkills = missingSkills(p.Skills, v.job.RequiredSkills, w.SkillFuzzyThreshold)
}

// matchSkill tries the full name, then the words of a multi-word name, then
// fuzzy matching of those words against the job words.
func (s *Scorer) matchSkill(display, name string, v *jobView) (matched, inTitle bool, fuzzy string) {
	if strings.Contains(v.text, name) {
		return true, strings.Contains(v.title, name), ""
	}

	parts := splitWords(name)
	labels := splitWords(display)
	multi := len(parts) > 1

	if multi {
		for _, part := range parts {
			if utf8.RuneCountInString(part) >= minSkillWordLength && strings.Contains(v.text, part) {
				return true, strings.Contains(v.title, part), ""
			}
		}
	}

	for i, part := range parts {
		if utf8.RuneCountInString(part) < minSkillWordLength {
			continue
		}
		m, ok := similarity.FindBestMatch(part, v.words.Slice(), s.weights.SkillFuzzyThreshold)
		if !ok {
			continue
		}
		label := part
		if i < len(labels) {
			label = labels[i]
		}
		return true, v.titleWords.Has(m.Word), annotate(label, m)
	}

	return false, false, ""
}

func (s *Scorer) headlineMatches(headline string, v *jobView) float64 {
	seen := make(map[string]struct{})
	candidates := append(append([]string{}, v.titleWords.Slice()...), v.words.Slice()...)

	total := 0.0
	for _, word := range splitWords(strings.ToLower(headline)) {
		if utf8.RuneCountInString(word) < minHeadlineWordRunes {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}

		if strings.Contains(v.title, word) || strings.Contains(v.text, word) {
			total++
			continue
		}
		if _, ok := similarity.FindBestMatch(word, candidates, s.weights.SkillFuzzyThreshold); ok {
			total += s.weights.HeadlineFuzzyWeight
		}
	}
	return total
}

func keywordMatches(keywords []string, v *jobView) (inText, inTitle int) {
	seen := make(map[string]struct{})
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if utf8.RuneCountInString(kw) < minKeywordRunes {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}

		if strings.Contains(v.text, kw) {
			inText++
		}
		if strings.Contains(v.title, kw) {
			inTitle++
		}
	}
	return inText, inTitle
}

func (s *Scorer) scoreLocation(p *profile.Profile, job *jobs.Job, d *Details) (int, string) {
	if s.location != nil && job.Geo != nil && job.Geo.Valid() {
		km := geo.Distance(*s.location, *job.Geo)
		d.DistanceKm = &km
		return s.weights.distanceBand(km)
	}

	user := newPlace(p.Location)
	jobCity := newPlace(job.LocationName)
	jobArea := newPlace(job.LocationName + " " + job.Region)
	if user.empty() || jobArea.empty() {
		return 0, "inconnue"
	}

	for _, city := range user.cities() {
		if jobCity.has(city) {
			return s.weights.SameCityPoints, "même ville"
		}
	}

	jobRegions := jobArea.regions()
	for region := range user.regions() {
		if _, ok := jobRegions[region]; ok {
			return s.weights.SameRegionPoints, "même région"
		}
	}

	return 0, "autre région"
}

func languageMatches(langs []profile.Language, v *jobView) int {
	text := features.FoldAccents(v.text)
	field := features.FoldAccents(v.job.WorkLanguage)

	count := 0
	for _, l := range langs {
		name := features.FoldAccents(strings.TrimSpace(l.Name))
		if name == "" {
			continue
		}
		if strings.Contains(text, name) || strings.Contains(field, name) {
			count++
		}
	}
	return count
}

func (s *Scorer) scoreExperience(years float64, text string, d *Details) (int, string) {
	w := s.weights

	m := experienceRe.FindStringSubmatch(text)
	if m == nil {
		return w.ExperienceUnspecified, ExperienceUnspecified
	}

	required, err := strconv.Atoi(m[1])
	if err != nil {
		return w.ExperienceUnspecified, ExperienceUnspecified
	}
	d.RequiredYears = &required

	switch {
	case years >= float64(required):
		return w.ExperienceSufficient, ExperienceSufficient
	case years >= float64(required)*w.PartialRatio:
		return w.ExperiencePartial, ExperiencePartial
	default:
		return 0, ExperienceInsufficient
	}
}

// missingSkills lists the required skills of the job no profile skill covers.
func missingSkills(skills []profile.Skill, required []string, threshold float64) []string {
	missing := []string{}
	for _, req := range required {
		r := strings.ToLower(strings.TrimSpace(req))
		if r == "" {
			continue
		}

		covered := false
		for _, skill := range skills {
			name := strings.ToLower(strings.TrimSpace(skill.Name))
			if name == "" {
				continue
			}
			if strings.Contains(r, name) || strings.Contains(name, r) || similarity.Similarity(r, name) > threshold {
				covered = true
				break
			}
		}
		if !covered {
			missing = append(missing, req)
		}
	}
	return missing
}

func summarize(res *Result) string {
	d := res.Details
	parts := []string{
		fmt.Sprintf("%d compétence(s) correspondante(s)", len(res.MatchingSkills)),
		"localisation : " + res.LocationMatch,
	}
	if d.RequiredYears != nil {
		parts = append(parts, fmt.Sprintf("expérience : %s (%d ans requis)", res.ExperienceMatch, *d.RequiredYears))
	} else {
		parts = append(parts, "expérience : "+res.ExperienceMatch)
	}
	return strings.Join(parts, ", ")
}

func annotate(word string, m similarity.Match) string {
	return fmt.Sprintf("%s ≈ %s (%d%%)", word, m.Word, int(roundHalfUp(m.Similarity*100)))
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
}

func roundHalfUp(f float64) float64 {
	return math.Floor(f + 0.5)
}
