package jobs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/openjobs/jobmatch/internal/geo"
)

const (
	JobIDField       = "ID"
	JobEmployerField = "Employer"
)

// Source field names of the open-data offer records, most specific first.
var (
	idKeys          = []string{"numerooffre", "id", "jobid"}
	titleKeys       = []string{"titreoffre", "title", "intitule"}
	professionKeys  = []string{"metier", "profession"}
	employerKeys    = []string{"nomemployeur", "employer", "employeur"}
	descriptionKeys = []string{"descriptionoffre", "description", "profil"}
	skillKeys       = []string{"competences", "requiredskills", "skills"}
	locationKeys    = []string{"lieuxtravaillocalite", "localite", "location"}
	regionKeys      = []string{"lieuxtravailregion", "region", "province"}
	geoKeys         = []string{"lieuxtravailgeo", "geo", "geolocalisation"}
	languageKeys    = []string{"langues", "worklanguage", "langue"}
	contractKeys    = []string{"regimetravail", "contractregime", "typecontrat"}
	urlKeys         = []string{"url", "lien"}
)

// Job is a single posting. Typed fields cover what scoring needs; Raw keeps
// every field of the source record.
type Job struct {
	ID             string         `json:"id"`
	Title          string         `json:"title,omitempty"`
	Profession     string         `json:"profession,omitempty"`
	Employer       string         `json:"employer,omitempty"`
	Description    string         `json:"description,omitempty"`
	RequiredSkills []string       `json:"requiredSkills,omitempty"`
	LocationName   string         `json:"locationName,omitempty"`
	Region         string         `json:"region,omitempty"`
	Geo            *geo.Point     `json:"geo,omitempty"`
	WorkLanguage   string         `json:"workLanguage,omitempty"`
	ContractRegime string         `json:"contractRegime,omitempty"`
	URL            string         `json:"url,omitempty"`
	Raw            map[string]any `json:"raw,omitempty"`
}

// FromRecord builds a Job from a heterogeneous source record. Field names are
// matched case-insensitively against the known aliases.
func FromRecord(record map[string]any) *Job {
	lower := make(map[string]any, len(record))
	for k, v := range record {
		lower[strings.ToLower(k)] = v
	}

	job := &Job{
		ID:             firstString(lower, idKeys...),
		Title:          firstString(lower, titleKeys...),
		Profession:     firstString(lower, professionKeys...),
		Employer:       firstString(lower, employerKeys...),
		Description:    firstString(lower, descriptionKeys...),
		RequiredSkills: firstStrings(lower, skillKeys...),
		LocationName:   firstString(lower, locationKeys...),
		Region:         firstString(lower, regionKeys...),
		WorkLanguage:   firstString(lower, languageKeys...),
		ContractRegime: firstString(lower, contractKeys...),
		URL:            firstString(lower, urlKeys...),
		Raw:            record,
	}

	for _, key := range geoKeys {
		if p := decodePoint(lower[key]); p != nil {
			job.Geo = p
			break
		}
	}

	return job
}

// TitleFields returns the title-like fields of the job.
func (j *Job) TitleFields() []string {
	fields := make([]string, 0, 2)
	if j.Title != "" {
		fields = append(fields, j.Title)
	}
	if j.Profession != "" {
		fields = append(fields, j.Profession)
	}
	return fields
}

// Strings returns every string value of the job: typed fields first, then raw
// values in sorted key order, with string elements of arrays flattened. Raw
// keys that a typed field was decoded from are skipped.
func (j *Job) Strings() []string {
	out := []string{j.Title, j.Profession, j.Employer, j.Description, j.LocationName, j.Region, j.WorkLanguage, j.ContractRegime}
	out = append(out, j.RequiredSkills...)

	mapped := j.mappedKeys()
	keys := make([]string, 0, len(j.Raw))
	for k := range j.Raw {
		if _, ok := mapped[k]; ok {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		out = appendStrings(out, j.Raw[k])
	}

	return out
}

// mappedKeys returns the raw keys whose value already made it into a non-empty
// typed text field.
func (j *Job) mappedKeys() map[string]struct{} {
	if len(j.Raw) == 0 {
		return nil
	}

	lower := make(map[string]any, len(j.Raw))
	original := make(map[string]string, len(j.Raw))
	for k, v := range j.Raw {
		lk := strings.ToLower(k)
		lower[lk] = v
		original[lk] = k
	}

	fields := []struct {
		value   string
		aliases []string
	}{
		{j.Title, titleKeys},
		{j.Profession, professionKeys},
		{j.Employer, employerKeys},
		{j.Description, descriptionKeys},
		{j.LocationName, locationKeys},
		{j.Region, regionKeys},
		{j.WorkLanguage, languageKeys},
		{j.ContractRegime, contractKeys},
	}

	mapped := make(map[string]struct{})
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if _, key := lookupString(lower, f.aliases...); key != "" {
			mapped[original[key]] = struct{}{}
		}
	}
	if len(j.RequiredSkills) > 0 {
		if _, key := lookupStrings(lower, skillKeys...); key != "" {
			mapped[original[key]] = struct{}{}
		}
	}
	return mapped
}

func (j *Job) GetStringField(name string) string {
	switch name {
	case JobIDField:
		return j.ID
	case JobEmployerField:
		return j.Employer
	default:
		return ""
	}
}

func appendStrings(out []string, v any) []string {
	switch typed := v.(type) {
	case string:
		return append(out, typed)
	case []string:
		return append(out, typed...)
	case []any:
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func firstString(record map[string]any, keys ...string) string {
	s, _ := lookupString(record, keys...)
	return s
}

// lookupString returns the first usable value among keys and the key it was
// found under.
func lookupString(record map[string]any, keys ...string) (string, string) {
	for _, key := range keys {
		switch v := record[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s, key
			}
		case []any, []string:
			if values := appendStrings(nil, v); len(values) > 0 {
				return strings.Join(values, ", "), key
			}
		case float64:
			return fmt.Sprintf("%.0f", v), key
		case int:
			return fmt.Sprintf("%d", v), key
		}
	}
	return "", ""
}

func firstStrings(record map[string]any, keys ...string) []string {
	values, _ := lookupStrings(record, keys...)
	return values
}

func lookupStrings(record map[string]any, keys ...string) ([]string, string) {
	for _, key := range keys {
		switch v := record[key].(type) {
		case string:
			return splitList(v), key
		case []any, []string:
			if values := appendStrings(nil, v); len(values) > 0 {
				return values, key
			}
		}
	}
	return nil, ""
}

func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decodePoint accepts {lat, lon} objects and lists of them.
func decodePoint(v any) *geo.Point {
	if list, ok := v.([]any); ok {
		for _, item := range list {
			if p := decodePoint(item); p != nil {
				return p
			}
		}
		return nil
	}

	if _, ok := v.(map[string]any); !ok {
		return nil
	}

	var p geo.Point
	if err := mapstructure.WeakDecode(v, &p); err != nil {
		return nil
	}
	if !p.Valid() {
		return nil
	}
	return &p
}
