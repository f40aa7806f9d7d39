// Package schema holds the static table definitions for the mirrored
// dataset: target tables carrying accident records and ct_* lookup tables
// that decode coded columns. Definitions live in an embedded YAML file so
// the column lists stay readable; they are configuration, not runtime state.
package schema

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

// Row is one record of a table, keyed by snake_case column name. Row sources
// yield these; the merge engine consumes them.
type Row map[string]string

// Table describes one mirrored table: its full column list and the composite
// primary key that upserts are keyed on.
type Table struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Key     []string `yaml:"key"`
}

// HasColumn reports whether name is a declared column of the table.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// IsKey reports whether name is part of the table's primary key.
func (t Table) IsKey(name string) bool {
	for _, k := range t.Key {
		if k == name {
			return true
		}
	}
	return false
}

// Schema is the full set of mirrored table definitions.
type Schema struct {
	Tables  []Table `yaml:"tables"`  // primary accident-data tables
	Lookups []Table `yaml:"lookups"` // ct_* code lookup tables
}

// All returns target tables followed by lookup tables, in definition order.
func (s Schema) All() []Table {
	all := make([]Table, 0, len(s.Tables)+len(s.Lookups))
	all = append(all, s.Tables...)
	all = append(all, s.Lookups...)
	return all
}

// Load parses and validates the embedded table definitions.
func Load() (Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(tablesYAML, &s); err != nil {
		return Schema{}, fmt.Errorf("failed to parse table definitions: %w", err)
	}

	seen := make(map[string]bool)
	for _, t := range s.All() {
		if t.Name == "" {
			return Schema{}, fmt.Errorf("table definition with empty name")
		}
		if seen[t.Name] {
			return Schema{}, fmt.Errorf("duplicate table definition %q", t.Name)
		}
		seen[t.Name] = true
		if len(t.Columns) == 0 {
			return Schema{}, fmt.Errorf("table %q has no columns", t.Name)
		}
		if len(t.Key) == 0 {
			return Schema{}, fmt.Errorf("table %q has no primary key", t.Name)
		}
		for _, k := range t.Key {
			if !t.HasColumn(k) {
				return Schema{}, fmt.Errorf("table %q: key column %q not in column list", t.Name, k)
			}
		}
	}
	return s, nil
}
