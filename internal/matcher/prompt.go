package matcher

import (
	_ "embed"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/openjobs/jobmatch/internal/features"
	"github.com/openjobs/jobmatch/internal/jobs"
	"github.com/openjobs/jobmatch/internal/profile"
)

// JobIDMarker prefixes every job of a batch prompt and every key of the
// expected batch response.
const JobIDMarker = "JOB_ID:"

const batchDescriptionLimit = 1500

//go:embed prompt.md
var promptTemplate string

//go:embed batch_prompt.md
var batchPromptTemplate string

// BuildPrompt renders the single-job prompt. A non-blank customTemplate
// replaces the default one. Placeholders without a value stay untouched.
func BuildPrompt(p *profile.Profile, job *jobs.Job, extraInfo, customTemplate string) string {
	template := customTemplate
	if strings.TrimSpace(template) == "" {
		template = promptTemplate
	}
	if p == nil {
		p = &profile.Profile{}
	}
	if job == nil {
		job = &jobs.Job{}
	}

	r := strings.NewReplacer(
		"{skills}", skillList(p),
		"{title}", jobTitle(job),
		"{description}", features.StripHTML(job.Description),
		"{location}", jobLocation(job),
		"{experience}", formatYears(p.ExperienceYears),
		"{headline}", p.Headline,
		"{extraInfo}", strings.TrimSpace(extraInfo),
		"{employer}", job.Employer,
		"{keywords}", strings.Join(p.Keywords, ", "),
	)
	return r.Replace(template)
}

// BuildBatchPrompt renders one prompt covering every job, each introduced
// by JobIDMarker and its id.
func BuildBatchPrompt(p *profile.Profile, list []*jobs.Job) string {
	if p == nil {
		p = &profile.Profile{}
	}

	var b strings.Builder
	count := 0
	for _, job := range list {
		if job == nil {
			continue
		}
		if count > 0 {
			b.WriteString("\n\n")
		}
		count++

		b.WriteString(JobIDMarker + job.ID + "\n")
		b.WriteString("Intitulé : " + jobTitle(job) + "\n")
		if job.Employer != "" {
			b.WriteString("Employeur : " + job.Employer + "\n")
		}
		if loc := jobLocation(job); loc != "" {
			b.WriteString("Lieu : " + loc + "\n")
		}
		if len(job.RequiredSkills) > 0 {
			b.WriteString("Compétences demandées : " + strings.Join(job.RequiredSkills, ", ") + "\n")
		}
		b.WriteString("Description : " + truncate(features.StripHTML(job.Description), batchDescriptionLimit))
	}

	languages := make([]string, 0, len(p.Languages))
	for _, l := range p.Languages {
		if l.Level != "" {
			languages = append(languages, l.Name+" ("+l.Level+")")
			continue
		}
		languages = append(languages, l.Name)
	}

	r := strings.NewReplacer(
		"{count}", strconv.Itoa(count),
		"{headline}", p.Headline,
		"{skills}", skillList(p),
		"{keywords}", strings.Join(p.Keywords, ", "),
		"{languages}", strings.Join(languages, ", "),
		"{experience}", formatYears(p.ExperienceYears),
		"{location}", p.Location,
		"{jobs}", b.String(),
	)
	return r.Replace(batchPromptTemplate)
}

func skillList(p *profile.Profile) string {
	names := make([]string, 0, len(p.Skills))
	for _, s := range p.Skills {
		if len(s.Keywords) > 0 {
			names = append(names, s.Name+" ("+strings.Join(s.Keywords, ", ")+")")
			continue
		}
		names = append(names, s.Name)
	}
	return strings.Join(names, ", ")
}

func jobTitle(job *jobs.Job) string {
	if job.Title != "" {
		return job.Title
	}
	return job.Profession
}

func jobLocation(job *jobs.Job) string {
	switch {
	case job.LocationName != "" && job.Region != "" && !strings.EqualFold(job.LocationName, job.Region):
		return job.LocationName + " (" + job.Region + ")"
	case job.LocationName != "":
		return job.LocationName
	default:
		return job.Region
	}
}

func formatYears(years float64) string {
	return strconv.FormatFloat(years, 'f', -1, 64)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "…"
}
