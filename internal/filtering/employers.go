package filtering

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/features"
	"github.com/openjobs/jobmatch/internal/jobs"
)

type employersFilter struct {
	employers []string
}

// NewEmployers creates a filter that removes jobs by employers configured in
// the config. Names compare case- and accent-insensitively.
func NewEmployers() Filter {
	return &employersFilter{}
}

func (f *employersFilter) Name() string { return "employers" }

func (f *employersFilter) Disable(string) {}

func (f *employersFilter) IsEnabled() bool { return true }

func (f *employersFilter) Validate(cfg *Config) error {
	f.employers = nil
	if cfg == nil {
		return nil
	}
	for _, e := range cfg.Employers {
		if e = strings.TrimSpace(e); e != "" {
			f.employers = append(f.employers, e)
		}
	}
	return nil
}

func (f *employersFilter) Apply(_ context.Context, deps Deps, v *jobs.Jobs) (*jobs.Jobs, Step, error) {
	initial := v.Len()
	if len(f.employers) == 0 {
		return v, Step{Initial: initial, Dropped: 0, Left: v.Len()}, nil
	}

	folded := make([]string, len(f.employers))
	for i, e := range f.employers {
		folded[i] = features.FoldAccents(e)
	}

	var excluded []string
	kept := v.Items[:0]
	for _, job := range v.Items {
		if matchesAny(features.FoldAccents(strings.TrimSpace(job.Employer)), folded) {
			excluded = append(excluded, job.ID)
			continue
		}
		kept = append(kept, job)
	}
	v.Items = kept

	if len(excluded) > 0 {
		deps.Logger.Info("excluding jobs by employers",
			zap.Strings("excluded_employers", f.employers),
			zap.Strings("excluded_jobs", excluded),
			zap.Int("jobs_left", v.Len()),
		)
	}

	return v, Step{Initial: initial, Dropped: len(excluded), Left: v.Len()}, nil
}

func matchesAny(employer string, targets []string) bool {
	if employer == "" {
		return false
	}
	for _, t := range targets {
		if employer == t {
			return true
		}
	}
	return false
}

func (f *employersFilter) Status() Status {
	details := map[string]string{}
	if len(f.employers) > 0 {
		details["employers"] = strings.Join(f.employers, ",")
	}
	return Status{Name: f.Name(), Enabled: true, Details: details}
}
