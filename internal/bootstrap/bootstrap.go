// Package bootstrap wires a loaded config.Config into a running
// dbengine.Database: it opens every table's storage, builds and
// registers the transform hook each derived table's TransformConfig
// describes, and attaches a listener hook to every table so the
// server package has something to subscribe StartListen requests to.
//
// Build is a plain ordered setup function, no DI framework: tables
// open in dependency order so a derived table's transform can query
// its inputs as soon as it is registered.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/reactivedb/reactivedb/internal/action"
	"github.com/reactivedb/reactivedb/internal/config"
	"github.com/reactivedb/reactivedb/internal/dbengine"
	"github.com/reactivedb/reactivedb/internal/expr"
	"github.com/reactivedb/reactivedb/internal/listener"
	"github.com/reactivedb/reactivedb/internal/table"
	"github.com/reactivedb/reactivedb/internal/transform"
	"github.com/reactivedb/reactivedb/internal/value"
)

// Result is everything Build assembled, ready to hand to server.New.
type Result struct {
	Database  *dbengine.Database
	Listeners map[string]*listener.Hook
	Runner    *action.WASMRunner // nil if cfg has no action_config
}

// Close releases every table's storage and the action runtime, if any.
func (r *Result) Close() error {
	var firstErr error
	for _, name := range r.Database.TableNames() {
		if err := r.Database.Table(name).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.Runner != nil {
		if err := r.Runner.Close(context.Background()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build opens every table cfg declares (in dependency order, so a
// derived table's transform can immediately query its inputs), wires
// the hook pipeline, and returns a Database ready to serve requests.
func Build(ctx context.Context, cfg *config.Config) (*Result, error) {
	order, err := topoOrder(cfg.Tables)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*config.TableConfig, len(cfg.Tables))
	for i := range cfg.Tables {
		byName[cfg.Tables[i].Name] = &cfg.Tables[i]
	}

	runner, err := buildActionRunner(ctx, cfg.ActionConfig)
	if err != nil {
		return nil, err
	}

	db := dbengine.New(nil)
	listeners := make(map[string]*listener.Hook, len(cfg.Tables))

	for _, name := range order {
		tc := byName[name]
		kind := table.Source
		var columns []value.Column
		if tc.Type == config.KindDerived {
			kind = table.Derived
		} else {
			columns, err = sourceColumns(tc)
			if err != nil {
				return nil, err
			}
		}

		t, err := table.Open(cfg.StorageDestination, tc.Name, columns, kind)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: open table %q: %w", tc.Name, err)
		}
		db.AddTable(t)

		lh := listener.New(tc.Name)
		listeners[tc.Name] = lh
		db.RegisterHook(tc.Name, lh)

		if tc.Type == config.KindDerived {
			if err := registerTransform(db, tc, runner); err != nil {
				return nil, fmt.Errorf("bootstrap: table %q: %w", tc.Name, err)
			}
		}
	}

	return &Result{Database: db, Listeners: listeners, Runner: runner}, nil
}

// sourceColumns builds the fixed column schema a Source table opens
// with, parsing each YAML data-type name.
func sourceColumns(tc *config.TableConfig) ([]value.Column, error) {
	cols := make([]value.Column, 0, len(tc.Columns))
	for name, typeName := range tc.Columns {
		dt, err := config.ParseDataType(typeName)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		cols = append(cols, value.NewColumn(name, dt))
	}
	return cols, nil
}

// registerTransform builds the transform.Hook (or, for Union, one hook
// per contributing source table) tc.Transform describes and attaches
// it to its source table(s).
func registerTransform(db *dbengine.Database, tc *config.TableConfig, runner *action.WASMRunner) error {
	tr := tc.Transform
	switch tr.Kind {
	case config.TransformFunction:
		stmts, err := parseStatements(tr.Functions)
		if err != nil {
			return err
		}
		db.RegisterHook(tr.SourceTable, &transform.FunctionHook{
			SourceTable:  tr.SourceTable,
			DerivedTable: tc.Name,
			Statements:   stmts,
		})

	case config.TransformFilter:
		pred, err := expr.Parse(tr.Filter)
		if err != nil {
			return fmt.Errorf("filter: %w", err)
		}
		db.RegisterHook(tr.SourceTable, &transform.FilterHook{
			SourceTable:  tr.SourceTable,
			DerivedTable: tc.Name,
			Predicate:    pred,
		})

	case config.TransformAggregation:
		stmts, err := parseStatements(tr.Functions)
		if err != nil {
			return err
		}
		db.RegisterHook(tr.SourceTable, &transform.AggregateHook{
			SourceTable:  tr.SourceTable,
			DerivedTable: tc.Name,
			GroupColumn:  tr.AggregatedColumn,
			Statements:   stmts,
		})

	case config.TransformUnion:
		for _, pair := range tr.TablesAndForeignKeys {
			db.RegisterHook(pair.Table, &transform.UnionHook{
				SourceTable:  pair.Table,
				DerivedTable: tc.Name,
				ForeignKey:   pair.ForeignKey,
			})
		}

	case config.TransformAction:
		if runner == nil {
			return fmt.Errorf("action transform %q: no action_config in this database's config", tr.Name)
		}
		db.RegisterHook(tr.SourceTable, &transform.ActionHook{
			SourceTable:  tr.SourceTable,
			DerivedTable: tc.Name,
			ActionName:   tr.Name,
			Runner:       runner,
		})

	default:
		return fmt.Errorf("unknown transform kind %q", tr.Kind)
	}
	return nil
}

func parseStatements(srcs []string) ([]transform.Statement, error) {
	out := make([]transform.Statement, len(srcs))
	for i, s := range srcs {
		stmt, err := transform.ParseStatement(s)
		if err != nil {
			return nil, err
		}
		out[i] = stmt
	}
	return out, nil
}

// buildActionRunner constructs the WASM action runtime and registers
// every configured module, or returns (nil, nil) if no action_config
// is present (no table may declare an Action transform, in that case).
func buildActionRunner(ctx context.Context, ac *config.ActionConfig) (*action.WASMRunner, error) {
	if ac == nil {
		return nil, nil
	}
	runner, err := action.NewWASMRunner(ctx)
	if err != nil {
		return nil, fmt.Errorf("action runtime: %w", err)
	}
	for name, path := range ac.Inline {
		if err := runner.Register(ctx, name, path); err != nil {
			runner.Close(ctx)
			return nil, err
		}
	}
	// ac.Import names a file that expands into an equivalent Inline
	// map; an Import-only action_config is treated as "no local
	// modules yet" until that file format settles.
	return runner, nil
}

// topoOrder returns table names ordered so every table's dependencies
// (a derived table's transform inputs) precede it. config.Validate has
// already rejected cycles, so this never fails on a well-formed
// config; it returns an error only if Build is called without first
// validating cfg.
func topoOrder(tables []config.TableConfig) ([]string, error) {
	byName := make(map[string]*config.TableConfig, len(tables))
	for i := range tables {
		byName[tables[i].Name] = &tables[i]
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(tables))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("bootstrap: cycle involving table %q", name)
		}
		tc, ok := byName[name]
		if !ok {
			return fmt.Errorf("bootstrap: unknown table %q", name)
		}
		state[name] = visiting
		if tc.Type == config.KindDerived {
			for _, dep := range transformInputs(tc.Transform) {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for i := range tables {
		if err := visit(tables[i].Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func transformInputs(t *config.TransformConfig) []string {
	switch t.Kind {
	case config.TransformUnion:
		out := make([]string, len(t.TablesAndForeignKeys))
		for i, p := range t.TablesAndForeignKeys {
			out[i] = p.Table
		}
		return out
	default:
		if t.SourceTable == "" {
			return nil
		}
		return []string{t.SourceTable}
	}
}
