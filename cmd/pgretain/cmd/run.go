package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgretain/pgretain/internal/config"
	"github.com/pgretain/pgretain/internal/dbconn"
	"github.com/pgretain/pgretain/internal/logger"
	"github.com/pgretain/pgretain/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full retention pass, deleting expired rows for real",
	Long: `Run cleans every enabled table in the configuration: fetches batches of
expired rows, cascades the delete depth-first through the relation graph
inside per-batch transactions, archives to CSV when configured, and prints
per-table timing.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}

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
		return fmt.Errorf("run completed with errors")
	}
	return nil
}

func printRunSummary(result *orchestrator.RunResult) {
	fmt.Printf("\n=== Run Complete ===\n")
	fmt.Printf("Duration: %s\n", result.CompletedAt.Sub(result.StartedAt))
	for _, t := range result.Tables {
		status := "ok"
		if t.Err != nil {
			status = "FAILED: " + t.Err.Error()
		} else if t.Result != nil && t.Result.Skipped {
			status = "skipped"
		}
		fmt.Printf("  %-32s %8s  %s\n", t.Table, t.Duration, status)
	}
}

// loadConfigAndLogger loads config, applies CLI overrides, and builds a
// logger, in the order every mutating subcommand needs it.
func loadConfigAndLogger() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat, overrides.SkipPreflight, overrides.ForceTriggers)

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, log, nil
}
