package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgretain/pgretain/internal/config"
)

var listTablesCmd = &cobra.Command{
	Use:   "list-tables",
	Short: "List all tables defined in configuration",
	Long:  `List-tables displays every retention table defined in the configuration file along with its basic settings.`,
	RunE:  runListTables,
}

func init() {
	rootCmd.AddCommand(listTablesCmd)
}

func runListTables(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if len(cfg.Tables) == 0 {
		cmd.Printf("No tables defined in %s\n", configFile)
		return nil
	}

	cmd.Printf("Tables defined in %s:\n\n", configFile)

	for i, table := range cfg.Tables {
		cmd.Printf("%d. %s\n", i+1, table.Name)
		cmd.Printf("   Enabled:       %v\n", table.IsEnabled())
		cmd.Printf("   Key columns:   %v\n", table.KeyColumns)
		if table.DisableCutoff {
			cmd.Printf("   Cutoff:        (disabled)\n")
		} else {
			cmd.Printf("   Date column:   %s\n", table.DateColumn)
			cmd.Printf("   Expire days:   %d\n", table.ExpireDays)
		}
		cmd.Printf("   Batch size:    %d\n", table.BatchSize)
		cmd.Printf("   Archive:       %v\n", table.Archive)
		cmd.Printf("   Auto-discover: %v\n", table.AutoDiscoverRelated)
		cmd.Printf("   Manual related: %d\n", len(table.Related))

		if i < len(cfg.Tables)-1 {
			cmd.Println()
		}
	}

	cmd.Printf("\nTotal: %d table(s)\n", len(cfg.Tables))
	return nil
}
