package jobs

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Jobs struct {
	Items []*Job
}

// Assessment is the scoring outcome attached to a job for reporting.
type Assessment struct {
	Score   int    `json:"score"`
	IsAI    bool   `json:"isAiScore"`
	Summary string `json:"summary,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ExcludedJobs struct {
	Items []*ExcludedJob
}

type ExcludedJob struct {
	ID           string
	URL          string
	EmployerName string
	Reason       string
	ExcludedAt   time.Time
}

// LoadFile reads a JSON array of raw records, or a {"results": [...]} page as
// returned by the open-data API, and converts every record into a Job.
func LoadFile(path string) (*Jobs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		var page struct {
			Results []map[string]any `json:"results"`
		}
		if perr := json.Unmarshal(data, &page); perr != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		records = page.Results
	}

	return FromRecords(records), nil
}

func FromRecords(records []map[string]any) *Jobs {
	list := &Jobs{Items: make([]*Job, 0, len(records))}
	for _, record := range records {
		list.Items = append(list.Items, FromRecord(record))
	}
	return list
}

func (j *Jobs) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "jobs_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(j); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func (j *Jobs) ToExcluded(reason string) *ExcludedJobs {
	excluded := &ExcludedJobs{}
	for _, job := range j.Items {
		excluded.Items = append(excluded.Items, &ExcludedJob{
			ID:           job.ID,
			URL:          job.URL,
			EmployerName: job.Employer,
			Reason:       reason,
			ExcludedAt:   time.Now().UTC(),
		})
	}
	return excluded
}

// GetExcludedJobsFromFile reads the exclusion list. An empty file is an empty list.
func GetExcludedJobsFromFile(path string) (*ExcludedJobs, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, err
	}

	if stat.Size() == 0 {
		return &ExcludedJobs{}, nil
	}

	var excluded ExcludedJobs
	if err := json.NewDecoder(file).Decode(&excluded); err != nil {
		return nil, err
	}
	return &excluded, nil
}

func (e *ExcludedJobs) Append(s *ExcludedJobs) {
	e.Items = append(e.Items, s.Items...)
}

func (e *ExcludedJobs) JobIDs() []string {
	ids := make([]string, 0, len(e.Items))
	for _, job := range e.Items {
		ids = append(ids, job.ID)
	}
	return ids
}

func (e *ExcludedJobs) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// ReportByEmployer groups jobs by employer name. Assessments, when known, are
// added to each entry.
func (j *Jobs) ReportByEmployer(assessments map[string]*Assessment) map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, job := range j.Items {
		key := job.Employer
		if key == "" {
			key = "unknown employer"
		}

		entry := map[string]string{
			"title":    job.Title,
			"url":      job.URL,
			"location": job.LocationName,
			"contract": job.ContractRegime,
		}

		if a, ok := assessments[job.ID]; ok && a != nil {
			entry["score"] = strconv.Itoa(a.Score)
			entry["source"] = "local"
			if a.IsAI {
				entry["source"] = "ai"
			}
			if a.Summary != "" {
				entry["summary"] = a.Summary
			}
			if a.Error != "" {
				entry["error"] = a.Error
			}
		}

		report[key] = append(report[key], entry)
	}
	return report
}

func (j *Jobs) Len() int {
	return len(j.Items)
}

func (j *Jobs) FindByID(id string) *Job {
	for _, job := range j.Items {
		if job.ID == id {
			return job
		}
	}
	return nil
}

// Exclude removes jobs whose field matches one of targets and returns the
// removed ids.
func (j *Jobs) Exclude(name string, targets []string) []string {
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}

	var excluded []string
	for idx := len(j.Items) - 1; idx >= 0; idx-- {
		job := j.Items[idx]
		if _, ok := set[job.GetStringField(name)]; ok {
			j.RemoveByIndex(idx)
			excluded = append(excluded, job.ID)
		}
	}
	return excluded
}

// RemoveByIndex removes the job at idx preserving order.
func (j *Jobs) RemoveByIndex(idx int) {
	j.Items = append(j.Items[:idx], j.Items[idx+1:]...)
}
