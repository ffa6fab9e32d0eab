package filtering

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/features"
	"github.com/openjobs/jobmatch/internal/jobs"
)

type noDataFilter struct {
	disabled bool
	reason   string
}

// NewNoData creates a filter that removes jobs without an id or with too
// little text to score.
func NewNoData() Filter {
	return &noDataFilter{}
}

func (f *noDataFilter) Name() string { return "no_data" }

func (f *noDataFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *noDataFilter) IsEnabled() bool { return !f.disabled }

func (f *noDataFilter) Validate(*Config) error { return nil }

func (f *noDataFilter) Apply(_ context.Context, deps Deps, v *jobs.Jobs) (*jobs.Jobs, Step, error) {
	initial := v.Len()

	var dropped []string
	kept := v.Items[:0]
	for _, job := range v.Items {
		if job == nil {
			continue
		}
		if _, ok := features.BuildJobText(job); !ok || job.ID == "" {
			dropped = append(dropped, job.ID)
			continue
		}
		kept = append(kept, job)
	}
	v.Items = kept

	if len(dropped) > 0 {
		deps.Logger.Info("excluding jobs without usable data",
			zap.Strings("excluded_jobs", dropped),
			zap.Int("jobs_left", v.Len()),
		)
	}

	return v, Step{Initial: initial, Dropped: initial - v.Len(), Left: v.Len()}, nil
}

func (f *noDataFilter) Status() Status {
	details := map[string]string{
		"min_text_length": strconv.Itoa(features.MinJobTextLength),
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
