package memory

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Loader implements ports.ChartLoader using an in-memory map of
// slash-separated locations to chart sources.
type Loader struct {
	charts map[string][]byte
}

// NewLoader creates a new Loader with the provided raw sources.
func NewLoader(data map[string]string) *Loader {
	charts := make(map[string][]byte, len(data))
	for k, v := range data {
		charts[path.Clean(k)] = []byte(v)
	}
	return &Loader{
		charts: charts,
	}
}

// Load retrieves the raw source stored at location.
func (l *Loader) Load(location string) ([]byte, error) {
	content, ok := l.charts[path.Clean(location)]
	if !ok {
		return nil, fmt.Errorf("chart not found: %s", location)
	}
	return content, nil
}

// Resolve joins location to the directory of base unless it is absolute.
func (l *Loader) Resolve(base, location string) string {
	if strings.HasPrefix(location, "/") || base == "" {
		return path.Clean(location)
	}
	return path.Join(path.Dir(base), location)
}

// List returns all available locations.
func (l *Loader) List() []string {
	keys := make([]string, 0, len(l.charts))
	for k := range l.charts {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic order
	return keys
}
