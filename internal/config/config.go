// Package config loads the YAML database configuration: a storage
// directory, a list of source/derived table declarations, and optional
// action-runner configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level document.
type Config struct {
	StorageDestination string        `yaml:"storage_destination"`
	Tables             []TableConfig `yaml:"tables"`
	ActionConfig       *ActionConfig `yaml:"action_config,omitempty"`
}

// TableKind distinguishes a raw yaml table entry's "type" field.
type TableKind string

const (
	KindSource  TableKind = "source"
	KindDerived TableKind = "derived"
)

// TableConfig is one table declaration: Source tables name their
// columns directly; Derived tables name a Transform computing their
// rows from other tables.
type TableConfig struct {
	Name      string            `yaml:"name"`
	Type      TableKind         `yaml:"type"`
	Columns   map[string]string `yaml:"columns,omitempty"`   // Source only: column name -> data type
	Transform *TransformConfig  `yaml:"transform,omitempty"` // Derived only
}

// TransformKind tags which of the five transform shapes Transform
// carries.
type TransformKind string

const (
	TransformFunction    TransformKind = "function"
	TransformFilter      TransformKind = "filter"
	TransformUnion       TransformKind = "union"
	TransformAggregation TransformKind = "aggregation"
	TransformAction      TransformKind = "action"
)

// TransformConfig is a tagged union over the five transform kinds;
// only the fields matching Kind are meaningful.
type TransformConfig struct {
	Kind TransformKind `yaml:"kind"`

	// SourceTable: Function, Filter, Aggregation, Action.
	// Functions: Function, Aggregation.
	SourceTable string   `yaml:"source_table,omitempty"`
	Functions   []string `yaml:"functions,omitempty"`

	// Filter
	Filter string `yaml:"filter,omitempty"`

	// Aggregation
	AggregatedColumn string `yaml:"aggregated_column,omitempty"`

	// Union
	TablesAndForeignKeys []UnionSource `yaml:"tables_and_foreign_keys,omitempty"`

	// Action
	Name string `yaml:"name,omitempty"`
}

// UnionSource is one (table, foreign_key) pair in a Union transform.
type UnionSource struct {
	Table      string `yaml:"table"`
	ForeignKey string `yaml:"foreign_key"`
}

// ActionConfig is the tagged union ActionEnvConfig: either an external
// file to import or an inline environment block naming WASM modules by
// action name.
type ActionConfig struct {
	Import string            `yaml:"import,omitempty"`
	Inline map[string]string `yaml:"inline,omitempty"` // action name -> wasm module path
}

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}
