package process

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ProcessConfig binds a skill name to an external command.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// Validate checks the skill name and that a command is set.
func (p ProcessConfig) Validate() error {
	if !validName.MatchString(p.Name) {
		return fmt.Errorf("process %q: invalid skill name", p.Name)
	}
	if p.Command == "" {
		return fmt.Errorf("process %q: command is required", p.Name)
	}
	return nil
}

// ConfigFile is the layout of a processes file.
type ConfigFile struct {
	Processes []ProcessConfig `yaml:"processes" json:"processes"`
}

// LoadProcesses reads a processes file and indexes it by skill name. JSON is
// read through the YAML decoder. A missing file yields no processes; every
// invalid or repeated entry is reported.
func LoadProcesses(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]ProcessConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processes: %w", err)
	}

	var file ConfigFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	procs := make(map[string]ProcessConfig, len(file.Processes))
	var errs []error
	for i, p := range file.Processes {
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: entry %d: %w", path, i, err))
			continue
		}
		if _, dup := procs[p.Name]; dup {
			errs = append(errs, fmt.Errorf("%s: entry %d: process %q declared twice", path, i, p.Name))
			continue
		}
		procs[p.Name] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return procs, nil
}
