package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgretain/pgretain/internal/catalog"
	"github.com/pgretain/pgretain/internal/config"
	"github.com/pgretain/pgretain/internal/logger"
	"github.com/pgretain/pgretain/internal/preflight"
	"github.com/pgretain/pgretain/internal/relgraph"
)

// buildGraph builds a table's merged manual+auto-discovered relation graph,
// the shared first step for plan, validate, run, and dry-run.
func buildGraph(ctx context.Context, db *sql.DB, cfg *config.Config, table *config.TableRetention, log *logger.Logger) (relgraph.QualifiedName, *relgraph.Graph, error) {
	name := relgraph.ParseQualified(table.Name)
	cat := catalog.NewIntrospector(db)
	builder := relgraph.NewBuilder(cat, cfg.SkipTables, cfg.SkipColumns, log)

	g, err := builder.Build(ctx, name, table)
	if err != nil {
		return name, nil, fmt.Errorf("building relation graph for %q: %w", table.Name, err)
	}
	return name, g, nil
}

// preflightAllTables runs the Preflight Checker across every enabled table
// in cfg, failing on the first one that doesn't pass. skip_tables is not
// consulted when choosing which configured tables to check.
func preflightAllTables(ctx context.Context, db *sql.DB, cfg *config.Config, log *logger.Logger) error {
	for i := range cfg.Tables {
		table := &cfg.Tables[i]
		if !table.IsEnabled() {
			continue
		}

		_, g, err := buildGraph(ctx, db, cfg, table, log)
		if err != nil {
			return err
		}

		checker, err := preflight.NewPreflightChecker(db, g, log)
		if err != nil {
			return fmt.Errorf("preflight setup for %q: %w", table.Name, err)
		}

		if err := checker.RunAllChecks(ctx, cfg.ForceTriggers); err != nil {
			return fmt.Errorf("preflight failed for %q: %w", table.Name, err)
		}
	}
	return nil
}
