package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgretain/pgretain/internal/dbconn"
	"github.com/pgretain/pgretain/internal/preflight"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and run preflight checks",
	Long: `Validate checks the configuration file and runs the Preflight Checker
against every enabled table in it.

Checks performed per table:
  - Table existence
  - Foreign key index coverage
  - Foreign key relation coverage
  - DELETE trigger detection
  - ON DELETE CASCADE rule warnings`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

	log.Info("starting validation checks")

	ctx := context.Background()

	dbManager := dbconn.NewManager(cfg)
	if err := dbManager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbManager.Close()

	if err := dbManager.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	fmt.Printf("\n=== Configuration Validation ===\n")
	fmt.Printf("Config file: %s\n", GetConfigFile())
	fmt.Printf("Tables found: %d\n\n", len(cfg.Tables))

	hasErrors := false
	for i := range cfg.Tables {
		table := &cfg.Tables[i]
		fmt.Printf("--- Table: %s ---\n", table.Name)

		if !table.IsEnabled() {
			fmt.Printf("skipped (disabled)\n\n")
			continue
		}

		_, g, err := buildGraph(ctx, dbManager.Source, cfg, table, log)
		if err != nil {
			fmt.Printf("FAILED: %v\n\n", err)
			hasErrors = true
			continue
		}
		fmt.Printf("relations: %d\n", len(g.AllTables())-1)

		checker, err := preflight.NewPreflightChecker(dbManager.Source, g, log)
		if err != nil {
			fmt.Printf("FAILED to create preflight checker: %v\n\n", err)
			hasErrors = true
			continue
		}

		if err := checker.RunAllChecks(ctx, cfg.ForceTriggers); err != nil {
			fmt.Printf("FAILED: %v\n\n", err)
			hasErrors = true
			continue
		}

		fmt.Printf("passed\n\n")
	}

	if hasErrors {
		return fmt.Errorf("validation failed for one or more tables")
	}

	fmt.Println("=== Validation Complete ===")
	fmt.Println("all tables validated successfully")
	return nil
}
