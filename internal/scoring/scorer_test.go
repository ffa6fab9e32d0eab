package scoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openjobs/jobmatch/internal/geo"
	"github.com/openjobs/jobmatch/internal/jobs"
	"github.com/openjobs/jobmatch/internal/profile"
)

const filler = " Rejoignez une équipe dynamique au sein d'une entreprise en pleine croissance."

var fixedClock = WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) })

func TestScoreNilInputs(t *testing.T) {
	t.Parallel()

	s := New()
	assert.Nil(t, s.Score(nil, &jobs.Job{}))
	assert.Nil(t, s.Score(&profile.Profile{}, nil))
}

func TestScoreNoData(t *testing.T) {
	t.Parallel()

	res := New().Score(&profile.Profile{Skills: []profile.Skill{{Name: "Go"}}}, &jobs.Job{ID: "1", Title: "Développeur Go junior"})
	require.NotNil(t, res)
	assert.Equal(t, 30, res.Score)
	assert.True(t, res.Details.NoData)
	assert.True(t, res.IsLocalScore)
	assert.False(t, res.IsAIScore)
	assert.Empty(t, res.MatchingSkills)
}

func TestScoreNoDataFromRecord(t *testing.T) {
	t.Parallel()

	job := jobs.FromRecord(map[string]any{
		"numerooffre": "1",
		"titreoffre":  "Développeur Go junior Liège",
	})

	res := New().Score(&profile.Profile{Skills: []profile.Skill{{Name: "Go"}}}, job)
	require.NotNil(t, res)
	assert.Equal(t, 30, res.Score)
	assert.True(t, res.Details.NoData)
}

func TestScoreCaseInsensitiveSkill(t *testing.T) {
	t.Parallel()

	p := &profile.Profile{Skills: []profile.Skill{{Name: "JavaScript"}}}
	job := &jobs.Job{ID: "2", Description: "Javascript Developer wanted." + filler}

	res := New().Score(p, job)
	require.NotNil(t, res)
	assert.Equal(t, []string{"JavaScript"}, res.MatchingSkills)
	assert.Empty(t, res.FuzzyMatches)
	assert.Equal(t, 1.0, res.Details.SkillMatches)
	assert.Equal(t, 10, res.Details.SkillPoints)
}

func TestScoreFuzzySkill(t *testing.T) {
	t.Parallel()

	p := &profile.Profile{Skills: []profile.Skill{{Name: "Kubernetes"}}}
	job := &jobs.Job{ID: "3", Title: "Ingénieur Kubernete", Description: "Administration de clusters Kubernete." + filler}

	res := New().Score(p, job)
	require.NotNil(t, res)
	assert.Equal(t, []string{"Kubernetes"}, res.MatchingSkills)
	assert.Equal(t, []string{"Kubernetes ≈ kubernete (90%)"}, res.FuzzyMatches)
	assert.Equal(t, 1, res.Details.SkillTitleMatches)
	assert.Equal(t, 8, res.Details.SkillTitlePoints)
}

func TestScoreMultiWordSkill(t *testing.T) {
	t.Parallel()

	p := &profile.Profile{Skills: []profile.Skill{{Name: "Spring Boot"}}}
	job := &jobs.Job{ID: "4", Description: "Nous utilisons Spring pour nos microservices." + filler}

	res := New().Score(p, job)
	assert.Equal(t, []string{"Spring Boot"}, res.MatchingSkills)
}

func TestScoreSkillKeywordsPartialCredit(t *testing.T) {
	t.Parallel()

	p := &profile.Profile{Skills: []profile.Skill{
		{Name: "Frontend", Keywords: []string{"react", "angular", "svelte"}},
	}}
	job := &jobs.Job{ID: "5", Description: "Stack: React, Angular et Svelte." + filler}

	res := New(fixedClock).Score(p, job)
	assert.Empty(t, res.MatchingSkills)
	assert.Equal(t, 1.5, res.Details.SkillMatches)
	assert.Equal(t, 18, res.Details.SkillPoints)
}

func TestScoreSkillKeywordsAddToMatchedSkill(t *testing.T) {
	t.Parallel()

	p := &profile.Profile{Skills: []profile.Skill{
		{Name: "Golang", Keywords: []string{"docker", "kubernetes"}},
	}}
	job := &jobs.Job{
		ID:          "5b",
		Title:       "Développeur Golang Docker",
		Description: "Golang, Docker et Kubernetes en production." + filler,
	}

	res := New(fixedClock).Score(p, job)
	assert.Equal(t, []string{"Golang"}, res.MatchingSkills)
	assert.Equal(t, 2.0, res.Details.SkillMatches)
	assert.Equal(t, 18, res.Details.SkillPoints)
	assert.Equal(t, 1, res.Details.SkillTitleMatches)
}

func TestScoreMissingSkills(t *testing.T) {
	t.Parallel()

	p := &profile.Profile{Skills: []profile.Skill{{Name: "Go"}, {Name: "PostgreSQL"}}}
	job := &jobs.Job{ID: "6", Description: "Backend en Go et Rust." + filler, RequiredSkills: []string{"Go", "Rust", "Postgres"}}

	res := New().Score(p, job)
	assert.Equal(t, []string{"Rust"}, res.MissingSkills)
}

func TestSkillPoints(t *testing.T) {
	t.Parallel()

	w := DefaultWeights()
	want := []int{0, 10, 18, 24, 29, 32, 35, 38, 40, 40, 40}
	for n, points := range want {
		assert.Equal(t, points, w.skillPoints(float64(n)), "matches=%d", n)
	}
	assert.Equal(t, 10, w.skillPoints(0.5))
	assert.Equal(t, 0, w.skillPoints(0.3))
	assert.Equal(t, 18, w.skillPoints(1.5))
}

func TestScoreLocationDistance(t *testing.T) {
	t.Parallel()

	user := &geo.Point{Lat: 50.85, Lon: 4.35}
	s := New(WithUserLocation(user))

	tests := []struct {
		name   string
		at     geo.Point
		points int
		label  string
	}{
		{"same point", geo.Point{Lat: 50.85, Lon: 4.35}, 15, "très proche"},
		{"22 km", geo.Point{Lat: 51.05, Lon: 4.35}, 12, "proche"},
		{"44 km", geo.Point{Lat: 51.25, Lon: 4.35}, 8, "distance moyenne"},
		{"67 km", geo.Point{Lat: 50.25, Lon: 4.35}, 5, "éloigné"},
		{"89 km", geo.Point{Lat: 50.05, Lon: 4.35}, 2, "lointain"},
		{"133 km", geo.Point{Lat: 49.65, Lon: 4.35}, 0, "très lointain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			at := tt.at
			res := s.Score(&profile.Profile{}, &jobs.Job{ID: "7", Description: "Poste de gestionnaire." + filler, Geo: &at})
			assert.Equal(t, tt.points, res.Details.LocationPoints)
			assert.Equal(t, tt.label, res.LocationMatch)
			require.NotNil(t, res.Details.DistanceKm)
		})
	}
}

func TestScoreLocationFallback(t *testing.T) {
	t.Parallel()

	s := New()
	p := &profile.Profile{Location: "Liège"}

	tests := []struct {
		location, region string
		points           int
		label            string
	}{
		{"LIEGE", "", 10, "même ville"},
		{"Seraing", "", 5, "même région"},
		{"Jemeppe", "Province de Liège", 5, "même région"},
		{"Namur", "", 0, "autre région"},
		{"", "", 0, "inconnue"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%s", tt.location, tt.region), func(t *testing.T) {
			t.Parallel()
			job := &jobs.Job{ID: "8", Description: "Poste de gestionnaire." + filler, LocationName: tt.location, Region: tt.region}
			res := s.Score(p, job)
			assert.Equal(t, tt.points, res.Details.LocationPoints)
			assert.Equal(t, tt.label, res.LocationMatch)
			assert.Nil(t, res.Details.DistanceKm)
		})
	}
}

func TestScoreExperience(t *testing.T) {
	t.Parallel()

	tests := []struct {
		years  float64
		text   string
		points int
		match  string
	}{
		{5, "Minimum 3 ans d'expérience.", 10, ExperienceSufficient},
		{2.5, "Minimum 3 ans d'expérience.", 5, ExperiencePartial},
		{1, "Au moins 5+ années dans le domaine.", 0, ExperienceInsufficient},
		{0, "Ervaring: 2 jaar minimum.", 0, ExperienceInsufficient},
		{0, "Aucune exigence particulière.", 3, ExperienceUnspecified},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			res := New().Score(&profile.Profile{ExperienceYears: tt.years}, &jobs.Job{ID: "9", Description: tt.text + filler})
			assert.Equal(t, tt.points, res.Details.ExperiencePoints)
			assert.Equal(t, tt.match, res.ExperienceMatch)
		})
	}
}

func TestScoreLanguagesHeadlineKeywords(t *testing.T) {
	t.Parallel()

	p := &profile.Profile{
		Headline:  "Comptable fiscaliste",
		Keywords:  []string{"TVA", "consolidation", "audit"},
		Languages: []profile.Language{{Name: "Français"}, {Name: "Néerlandais"}, {Name: "Allemand"}},
	}
	job := &jobs.Job{
		ID:           "10",
		Title:        "Comptable audit",
		Description:  "Vous gérez la consolidation et les audits des filiales." + filler,
		WorkLanguage: "francais, neerlandais",
	}

	res := New().Score(p, job)
	d := res.Details
	assert.Equal(t, 2, d.LanguageMatches)
	assert.Equal(t, 10, d.LanguagePoints)
	// "comptable" exact, "fiscaliste" unmatched.
	assert.Equal(t, 1.0, d.HeadlineMatches)
	assert.Equal(t, 5, d.HeadlinePoints)
	// "TVA" is too short to count.
	assert.Equal(t, 2, d.KeywordMatches)
	assert.Equal(t, 1, d.KeywordTitleMatches)
	assert.Equal(t, 6, d.KeywordPoints)
	assert.Equal(t, 8, d.KeywordTitlePoints)
}

func TestScoreRangeAndDeterminism(t *testing.T) {
	t.Parallel()

	strong := &profile.Profile{
		Headline:        "Développeur Backend Golang",
		Skills:          []profile.Skill{{Name: "Go"}, {Name: "Docker"}, {Name: "Kubernetes"}, {Name: "PostgreSQL"}, {Name: "Redis"}, {Name: "gRPC"}, {Name: "Linux"}, {Name: "Terraform"}},
		Keywords:        []string{"backend", "microservices", "cloud", "golang", "devops"},
		Languages:       []profile.Language{{Name: "Français"}, {Name: "Anglais"}},
		ExperienceYears: 10,
		Location:        "Bruxelles",
	}
	weak := &profile.Profile{Skills: []profile.Skill{{Name: "Cobol"}}}

	job := &jobs.Job{
		ID:           "11",
		Title:        "Développeur Backend Golang microservices cloud devops",
		Description:  "Go, Docker, Kubernetes, PostgreSQL, Redis, gRPC, Linux, Terraform. 3 ans d'expérience. Français et anglais." + filler,
		LocationName: "Bruxelles",
		Geo:          &geo.Point{Lat: 50.85, Lon: 4.35},
	}

	s := New(fixedClock, WithUserLocation(&geo.Point{Lat: 50.85, Lon: 4.35}))

	best := s.Score(strong, job)
	assert.Equal(t, 95, best.Score)
	assert.Greater(t, best.Details.RawScore, 95)

	worst := s.Score(weak, &jobs.Job{ID: "12", Description: "Poste de chauffeur poids lourd." + filler})
	assert.Equal(t, 10, worst.Score)

	assert.Equal(t, best, s.Score(strong, job))
	assert.Equal(t, worst, s.Score(weak, &jobs.Job{ID: "12", Description: "Poste de chauffeur poids lourd." + filler}))
}
