package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgretain/pgretain/internal/dbconn"
	"github.com/pgretain/pgretain/internal/orchestrator"
)

var dryrunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Simulate a retention pass without deleting anything",
	Long: `Dry-run forces dry_run=true regardless of the config file, runs one
batch per table, and reports the row counts that a real run would delete at
every level of the cascade. No DELETE statement is ever issued.`,
	RunE: runDryrun,
}

func init() {
	rootCmd.AddCommand(dryrunCmd)
}

func runDryrun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	cfg.DryRun = true

	ctx := dbconn.SetupSignalHandlerWithCallback(func(_ os.Signal) {
		log.Warn("received shutdown signal - cancelling in-flight queries")
	})

	dbManager := dbconn.NewManager(cfg)
	if err := dbManager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbManager.Close()

	if err := dbManager.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	if !cfg.SkipPreflight {
		if err := preflightAllTables(ctx, dbManager.Source, cfg, log); err != nil {
			return err
		}
	}

	orch := orchestrator.New(dbManager.Source, cfg, log)
	result := orch.Run(ctx)

	printRunSummary(result)

	if result.Failed() {
		return fmt.Errorf("dry-run completed with errors")
	}
	return nil
}
