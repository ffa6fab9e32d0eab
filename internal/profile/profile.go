// Package profile loads the candidate profile the scorers rank jobs against.
package profile

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var schemaJSON string

type Skill struct {
	Name     string   `json:"name" mapstructure:"name"`
	Keywords []string `json:"keywords,omitempty" mapstructure:"keywords"`
}

type Language struct {
	Name  string `json:"name" mapstructure:"name"`
	Level string `json:"level,omitempty" mapstructure:"level"`
}

// Profile is the normalized résumé data. It is read-only once loaded.
type Profile struct {
	Headline        string     `json:"headline" mapstructure:"headline"`
	Skills          []Skill    `json:"skills" mapstructure:"skills"`
	Keywords        []string   `json:"keywords" mapstructure:"keywords"`
	Languages       []Language `json:"languages" mapstructure:"languages"`
	ExperienceYears float64    `json:"experienceYears" mapstructure:"experience-years"`
	Location        string     `json:"location" mapstructure:"location"`
}

// Source supplies the current profile. A nil profile means scoring is unavailable.
type Source interface {
	Profile() *Profile
}

type static struct {
	p *Profile
}

func (s static) Profile() *Profile { return s.p }

// Static returns a Source that always yields p.
func Static(p *Profile) Source {
	return static{p: p}
}

// ValidationError lists every schema violation of a profile file.
type ValidationError struct {
	Path   string
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid profile %s: %s", e.Path, strings.Join(e.Errors, "; "))
}

// Load reads a profile file in any format viper understands (yaml, json,
// toml), validates it and drops duplicated skills.
func Load(path string) (*Profile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	settings := v.AllSettings()
	if err := validate(path, settings); err != nil {
		return nil, err
	}

	var p Profile
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	p.Normalize()
	return &p, nil
}

// Normalize trims names and keeps the first occurrence of skills and
// languages that differ only by case.
func (p *Profile) Normalize() {
	seen := make(map[string]struct{}, len(p.Skills))
	skills := p.Skills[:0]
	for _, s := range p.Skills {
		s.Name = strings.TrimSpace(s.Name)
		key := strings.ToLower(s.Name)
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		skills = append(skills, s)
	}
	p.Skills = skills

	seen = make(map[string]struct{}, len(p.Languages))
	langs := p.Languages[:0]
	for _, l := range p.Languages {
		l.Name = strings.TrimSpace(l.Name)
		key := strings.ToLower(l.Name)
		if _, dup := seen[key]; dup || key == "" {
			continue
		}
		seen[key] = struct{}{}
		langs = append(langs, l)
	}
	p.Languages = langs
}

func validate(path string, settings map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewGoLoader(settings),
	)
	if err != nil {
		return fmt.Errorf("validate profile: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{Path: path}
	for _, e := range result.Errors() {
		verr.Errors = append(verr.Errors, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return verr
}
