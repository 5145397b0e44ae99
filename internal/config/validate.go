package config

import (
	"fmt"
	"strings"

	"github.com/reactivedb/reactivedb/internal/value"
)

// reservedColumns mirrors value.Col* / value.MemoPrefix: user schemas
// must not declare these.
var reservedColumns = map[string]bool{
	value.ColEntryID:          true,
	value.ColSourceEntryID:    true,
	value.ColUnionMatchingKey: true,
	value.ColAggregationKey:   true,
}

// dataTypes maps the YAML column type string to value.DataType.
var dataTypes = map[string]value.DataType{
	"integer": value.TypeInteger,
	"str":     value.TypeStr,
	"bool":    value.TypeBool,
	"id":      value.TypeID,
	"decimal": value.TypeDecimal,
	"array":   value.TypeArray,
	"map":     value.TypeMap,
	"float":   value.TypeFloat,
}

// ParseDataType resolves a YAML column type name.
func ParseDataType(s string) (value.DataType, error) {
	dt, ok := dataTypes[s]
	if !ok {
		return 0, fmt.Errorf("unknown data type %q", s)
	}
	return dt, nil
}

// Validate checks structural well-formedness and rejects cycles in the
// table DAG at load time; a cyclic configuration would otherwise
// recurse without bound on the first insert.
func Validate(cfg *Config) error {
	if cfg.StorageDestination == "" {
		return fmt.Errorf("storage_destination is required")
	}

	byName := make(map[string]*TableConfig, len(cfg.Tables))
	for i := range cfg.Tables {
		t := &cfg.Tables[i]
		if t.Name == "" {
			return fmt.Errorf("table at index %d has no name", i)
		}
		if _, dup := byName[t.Name]; dup {
			return fmt.Errorf("duplicate table name %q", t.Name)
		}
		byName[t.Name] = t
	}

	deps := make(map[string][]string, len(cfg.Tables))
	for _, t := range cfg.Tables {
		switch t.Type {
		case KindSource:
			for col := range t.Columns {
				if reservedColumns[col] || strings.HasPrefix(col, value.MemoPrefix) {
					return fmt.Errorf("table %q: column %q is reserved", t.Name, col)
				}
			}
			if t.Transform != nil {
				return fmt.Errorf("table %q: source table must not declare a transform", t.Name)
			}
		case KindDerived:
			if t.Transform == nil {
				return fmt.Errorf("table %q: derived table requires a transform", t.Name)
			}
			inputs, err := transformInputs(t.Transform)
			if err != nil {
				return fmt.Errorf("table %q: %w", t.Name, err)
			}
			for _, in := range inputs {
				if _, ok := byName[in]; !ok {
					return fmt.Errorf("table %q: transform references unknown table %q", t.Name, in)
				}
			}
			deps[t.Name] = inputs
		default:
			return fmt.Errorf("table %q: unknown type %q (want %q or %q)", t.Name, t.Type, KindSource, KindDerived)
		}
	}

	return checkAcyclic(deps)
}

// transformInputs returns the tables a TransformConfig reads from.
func transformInputs(t *TransformConfig) ([]string, error) {
	switch t.Kind {
	case TransformFunction, TransformFilter, TransformAggregation, TransformAction:
		if t.SourceTable == "" {
			return nil, fmt.Errorf("%s transform requires source_table", t.Kind)
		}
		return []string{t.SourceTable}, nil
	case TransformUnion:
		if len(t.TablesAndForeignKeys) == 0 {
			return nil, fmt.Errorf("union transform requires tables_and_foreign_keys")
		}
		out := make([]string, len(t.TablesAndForeignKeys))
		for i, p := range t.TablesAndForeignKeys {
			out[i] = p.Table
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown transform kind %q", t.Kind)
	}
}

// checkAcyclic runs a DFS-based topological check over the derived
// table dependency graph, rejecting any table reachable from itself.
func checkAcyclic(deps map[string][]string) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(deps))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("cycle in derived table graph: %v -> %s", path, name)
		}
		state[name] = visiting
		for _, dep := range deps[name] {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for name := range deps {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
