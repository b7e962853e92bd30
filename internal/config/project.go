package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Project describes a chart and how to load it.
type Project struct {
	// Chart is the root chart, relative to the project file.
	Chart string `yaml:"chart"`

	// Includes maps keys of scheme://KEY references to locations.
	Includes map[string]string `yaml:"includes"`

	// Set overrides datamodel variables by id.
	Set map[string]string `yaml:"set"`

	// Context is exposed to datamodel expressions.
	Context map[string]any `yaml:"context"`

	// Processes is a file of allow-listed commands bound to skills.
	Processes string `yaml:"processes"`

	AllowUnknownSkills bool `yaml:"allow_unknown_skills"`
	WarningsAsErrors   bool `yaml:"warnings_as_errors"`
}

// LoadProject reads a YAML project file. Relative chart and include paths
// are resolved against the file's directory.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project file %s: %w", path, err)
	}
	if p.Chart == "" {
		return nil, fmt.Errorf("project file %s: chart is required", path)
	}

	base := filepath.Dir(path)
	p.Chart = resolve(base, p.Chart)
	if p.Processes != "" {
		p.Processes = resolve(base, p.Processes)
	}
	for k, v := range p.Includes {
		p.Includes[k] = resolve(base, v)
	}
	return &p, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Merge applies CLI values on top of the project; CLI entries win.
func (p *Project) Merge(includes, set map[string]string) {
	if p.Includes == nil {
		p.Includes = make(map[string]string)
	}
	if p.Set == nil {
		p.Set = make(map[string]string)
	}
	for k, v := range includes {
		p.Includes[k] = v
	}
	for k, v := range set {
		p.Set[k] = v
	}
}
