// Package defaults holds the autofill table applied to extracted brief
// records. The table is loaded once at process start and treated as
// read-only afterwards.
package defaults

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Table maps field names to their default scalar values.
type Table map[string]interface{}

type defaultsFile struct {
	Defaults map[string]interface{} `json:"defaults"`
}

// Load reads the table from a JSON file of the shape {"defaults": {...}}.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brief defaults %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Table from raw defaults JSON.
func Parse(data []byte) (Table, error) {
	var file defaultsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse brief defaults: %w", err)
	}
	if file.Defaults == nil {
		return nil, fmt.Errorf("brief defaults must contain 'defaults' section")
	}
	return Table(file.Defaults), nil
}

// Apply returns a copy of the record where every table key that is absent
// or nil has been filled with its default. Empty strings count as present:
// only true nulls and missing keys are filled. Keys outside the table are
// never touched. The second return lists the filled field names sorted.
func (t Table) Apply(record map[string]interface{}) (map[string]interface{}, []string) {
	filled := make(map[string]interface{}, len(record)+len(t))
	for key, value := range record {
		filled[key] = value
	}

	applied := []string{}
	for key, value := range t {
		if current, ok := filled[key]; !ok || current == nil {
			filled[key] = value
			applied = append(applied, key)
		}
	}
	sort.Strings(applied)

	return filled, applied
}
