package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/openjobs/jobmatch/internal/coordinator"
	"github.com/openjobs/jobmatch/internal/scoring"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type jsonEntry struct {
	ID       string          `json:"id"`
	Title    string          `json:"title,omitempty"`
	Employer string          `json:"employer,omitempty"`
	Location string          `json:"location,omitempty"`
	URL      string          `json:"url,omitempty"`
	State    string          `json:"state"`
	Result   *scoring.Result `json:"result"`
}

type jsonReport struct {
	Jobs     []jsonEntry `json:"jobs"`
	Promoted int         `json:"promoted"`
	AIScored int         `json:"aiScored"`
	Batches  int         `json:"batches"`
	Stopped  string      `json:"stopped,omitempty"`
}

func writeReport(w io.Writer, format string, report *coordinator.Report) error {
	switch format {
	case "", outputTable:
		return reportTable(w, report)
	case outputJSON:
		return reportJSON(w, report)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

func reportJSON(w io.Writer, report *coordinator.Report) error {
	out := jsonReport{
		Jobs:     make([]jsonEntry, 0, len(report.Entries)),
		Promoted: report.Promoted,
		AIScored: report.AIScored,
		Batches:  report.Batches,
		Stopped:  report.Stopped,
	}
	for _, e := range report.Entries {
		out.Jobs = append(out.Jobs, jsonEntry{
			ID:       e.Job.ID,
			Title:    e.Job.Title,
			Employer: e.Job.Employer,
			Location: e.Job.LocationName,
			URL:      e.Job.URL,
			State:    e.State.String(),
			Result:   e.Result,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func reportTable(w io.Writer, report *coordinator.Report) error {
	if len(report.Entries) == 0 {
		fmt.Fprintln(w, "No jobs scored.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tBY\tID\tTITLE\tEMPLOYER\tLOCATION\tSUMMARY")
	fmt.Fprintln(tw, "-----\t--\t--\t-----\t--------\t--------\t-------")

	for _, e := range report.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Result.Score,
			e.State,
			e.Job.ID,
			truncate(e.Job.Title, 40),
			truncate(e.Job.Employer, 25),
			truncate(e.Job.LocationName, 20),
			truncate(e.Result.Summary, 60),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%d jobs, %d escalated, %d scored by AI in %d requests\n",
		len(report.Entries), report.Promoted, report.AIScored, report.Batches)
	if report.Stopped != "" {
		fmt.Fprintf(w, "AI scoring stopped: %s\n", report.Stopped)
	}
	return nil
}

func writeResult(w io.Writer, format string, r *scoring.Result) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	by := "local"
	if r.IsAIScore {
		by = "ai"
	}
	fmt.Fprintf(w, "Job:         %s\n", r.JobID)
	fmt.Fprintf(w, "Score:       %d (%s)\n", r.Score, by)
	fmt.Fprintf(w, "Summary:     %s\n", r.Summary)
	if len(r.MatchingSkills) > 0 {
		fmt.Fprintf(w, "Matching:    %s\n", strings.Join(r.MatchingSkills, ", "))
	}
	if len(r.MissingSkills) > 0 {
		fmt.Fprintf(w, "Missing:     %s\n", strings.Join(r.MissingSkills, ", "))
	}
	if r.ExperienceMatch != "" {
		fmt.Fprintf(w, "Experience:  %s\n", r.ExperienceMatch)
	}
	if r.LocationMatch != "" {
		fmt.Fprintf(w, "Location:    %s\n", r.LocationMatch)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "AI error:    %s\n", r.Error)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
