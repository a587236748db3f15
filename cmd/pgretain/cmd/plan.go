package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgretain/pgretain/internal/dbconn"
	"github.com/pgretain/pgretain/internal/planviz"
)

// outputWriter is used for printing output, overridden in tests.
var outputWriter io.Writer = os.Stdout

func setOutputWriter(w io.Writer) {
	outputWriter = w
}

func resetOutputWriter() {
	outputWriter = os.Stdout
}

var planCmd = &cobra.Command{
	Use:   "plan <table>",
	Short: "Render a configured table's relation graph without deleting anything",
	Long: `Plan builds one table's merged manual+auto-discovered relation graph and
renders it as an ASCII tree, the delete order, and the full relationship
list. It issues only catalog introspection queries (pg_catalog /
information_schema) and never a DELETE.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	tableName := args[0]

	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	table := cfg.FindTable(tableName)
	if table == nil {
		return fmt.Errorf("table %q not found in configuration", tableName)
	}

	ctx := context.Background()

	dbManager := dbconn.NewManager(cfg)
	if err := dbManager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbManager.Close()

	name, g, err := buildGraph(ctx, dbManager.Source, cfg, table, log)
	if err != nil {
		return err
	}

	plan := planviz.New(name, g)

	fmt.Fprintf(outputWriter, "=== Plan: %s ===\n\n", tableName)
	fmt.Fprintln(outputWriter, plan.RenderTree())

	fmt.Fprintln(outputWriter, "Delete order (child-before-parent):")
	for i, t := range plan.DeleteOrder() {
		fmt.Fprintf(outputWriter, "  [%d] %s\n", i+1, t)
	}

	fmt.Fprintln(outputWriter, "\nRelationships:")
	fmt.Fprint(outputWriter, plan.RenderRelationships())

	return nil
}
