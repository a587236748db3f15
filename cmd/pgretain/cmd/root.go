package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile       string
	logLevel      string
	logFormat     string
	skipPreflight bool
	forceTriggers bool
)

var rootCmd = &cobra.Command{
	Use:   "pgretain",
	Short: "PostgreSQL retention cascade engine",
	Long: `A batched, relation-aware retention engine for PostgreSQL: walks a
table's foreign-key graph depth-first, deleting expired rows child-before-
parent inside per-batch transactions, with optional CSV archival and a
PostgreSQL-native preflight safety check.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config/config.yaml",
		"Path to configuration file")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	rootCmd.PersistentFlags().BoolVar(&skipPreflight, "skip-preflight", false,
		"Skip the automatic preflight check before run/dry-run")
	rootCmd.PersistentFlags().BoolVar(&forceTriggers, "force-triggers", false,
		"Proceed even if DELETE triggers are detected on a cascaded table")
}

// GetConfigFile returns the config file path.
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings.
type CLIOverrides struct {
	LogLevel      string
	LogFormat     string
	SkipPreflight bool
	ForceTriggers bool
}

// GetCLIOverrides returns the CLI flag override values.
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:      logLevel,
		LogFormat:     logFormat,
		SkipPreflight: skipPreflight,
		ForceTriggers: forceTriggers,
	}
}
