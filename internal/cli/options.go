package cli

import (
	"fmt"
	"strings"
)

// RunOptions configures every command that loads a chart.
type RunOptions struct {
	Chart        string
	Project      string
	Includes     []string // key=path
	Set          []string // name=value
	Watch        bool
	Interactive  bool
	Debug        bool
	JSONLog      bool
	Strict       bool
	AllowUnknown bool
}

// ServeOptions extends RunOptions with the network surfaces.
type ServeOptions struct {
	RunOptions
	Addr      string
	AutoStart bool
}

// ParseKeyValues turns "k=v" pairs into a map; later pairs win.
func ParseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", p)
		}
		out[k] = v
	}
	return out, nil
}
