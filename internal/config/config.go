// Package config provides configuration structures and loading for pgretain.
package config

// Config represents the complete application configuration.
type Config struct {
	DBURI       string           `yaml:"db_uri" mapstructure:"db_uri"`
	Source      DatabaseConfig   `yaml:"source" mapstructure:"source"`
	DryRun      bool             `yaml:"dry_run" mapstructure:"dry_run"`
	LogFile     string           `yaml:"log_file" mapstructure:"log_file"`
	LogRotate   LogRotateConfig  `yaml:"log_rotate" mapstructure:"log_rotate"`
	LogConsole  bool             `yaml:"log_console" mapstructure:"log_console"`
	SkipTables  []string         `yaml:"skip_tables" mapstructure:"skip_tables"`
	SkipColumns []string         `yaml:"skip_columns" mapstructure:"skip_columns"`
	Tables      []TableRetention `yaml:"tables" mapstructure:"tables"`
	Logging     LoggingConfig    `yaml:"logging" mapstructure:"logging"`

	// ForceTriggers and SkipPreflight are CLI-only overrides, never read from YAML.
	ForceTriggers bool `yaml:"-" mapstructure:"-"`
	SkipPreflight bool `yaml:"-" mapstructure:"-"`
}

// DatabaseConfig represents a PostgreSQL connection configuration used
// to build a DSN when DBURI is not set directly.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	SSLMode            string `yaml:"sslmode" mapstructure:"sslmode"` // disable, prefer, require
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// LogRotateConfig describes log file rotation policy.
type LogRotateConfig struct {
	Type        string `yaml:"type" mapstructure:"type"` // "timed" or "size"
	When        string `yaml:"when" mapstructure:"when"`
	Interval    int    `yaml:"interval" mapstructure:"interval"`
	MaxBytes    int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	BackupCount int    `yaml:"backup_count" mapstructure:"backup_count"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// TableRetention describes one target table's retention rule and its
// related-table cascade configuration.
type TableRetention struct {
	Name                string           `yaml:"name" mapstructure:"name"`
	Enable              *bool            `yaml:"enable" mapstructure:"enable"`
	KeyColumns          []string         `yaml:"key_columns" mapstructure:"key_columns"`
	DateColumn          string           `yaml:"date_column" mapstructure:"date_column"`
	ExpireDays          int              `yaml:"expire_days" mapstructure:"expire_days"`
	DisableCutoff       bool             `yaml:"disable_cutoff" mapstructure:"disable_cutoff"`
	BatchSize           int              `yaml:"batch_size" mapstructure:"batch_size"`
	TimeOut             int              `yaml:"time_out" mapstructure:"time_out"`
	Archive             bool             `yaml:"archive" mapstructure:"archive"`
	ArchivePath         string           `yaml:"archive_path" mapstructure:"archive_path"`
	Conditions          []Predicate      `yaml:"conditions" mapstructure:"conditions"`
	AutoDiscoverRelated bool             `yaml:"auto_discover_related" mapstructure:"auto_discover_related"`
	ExcludeCascadeFK    *bool            `yaml:"exclude_cascade_fk" mapstructure:"exclude_cascade_fk"`
	Related             []ManualRelation `yaml:"related" mapstructure:"related"`
}

// IsEnabled returns the effective enable flag, defaulting to true.
func (t *TableRetention) IsEnabled() bool {
	if t.Enable == nil {
		return true
	}
	return *t.Enable
}

// ExcludesCascadeFK returns the effective exclude_cascade_fk flag, defaulting to true.
func (t *TableRetention) ExcludesCascadeFK() bool {
	if t.ExcludeCascadeFK == nil {
		return true
	}
	return *t.ExcludeCascadeFK
}

// ManualRelation is an operator-declared parent->child relationship that
// augments or overrides auto-discovered foreign keys.
type ManualRelation struct {
	Name        string          `yaml:"name" mapstructure:"name"`
	ParentTable string          `yaml:"parent_table" mapstructure:"parent_table"`
	Mapping     RelationMapping `yaml:"mapping" mapstructure:"mapping"`
	Conditions  []Predicate     `yaml:"conditions" mapstructure:"conditions"`
}

// RelationMapping pairs parent and child columns in constrained order.
type RelationMapping struct {
	ParentColumns []string `yaml:"parent_columns" mapstructure:"parent_columns"`
	ChildColumns  []string `yaml:"child_columns" mapstructure:"child_columns"`
}

// Predicate is a tagged variant: simple comparison, IN-list, null-check, or
// a raw SQL escape hatch. Kind reports which shape is in play.
type Predicate struct {
	Column string        `yaml:"column" mapstructure:"column"`
	Op     string        `yaml:"op" mapstructure:"op"`
	Value  interface{}   `yaml:"value" mapstructure:"value"`
	RawSQL string        `yaml:"raw_sql" mapstructure:"raw_sql"`
	Params []interface{} `yaml:"params" mapstructure:"params"`
}

// PredicateKind enumerates the shapes a Predicate can take.
type PredicateKind int

const (
	PredicateSimple PredicateKind = iota
	PredicateInList
	PredicateIsNull
	PredicateRaw
)

var comparisonOps = map[string]bool{
	"<": true, "<=": true, "=": true, ">=": true, ">": true, "<>": true,
	"LIKE": true, "ILIKE": true,
}

// Kind classifies the predicate's shape.
func (p Predicate) Kind() PredicateKind {
	if p.RawSQL != "" {
		return PredicateRaw
	}
	switch p.Op {
	case "IN":
		return PredicateInList
	case "IS NULL", "IS NOT NULL":
		return PredicateIsNull
	default:
		return PredicateSimple
	}
}

// ValidOp reports whether the predicate's operator is one this engine knows
// how to render. Unknown ops are rejected at config-load time.
func (p Predicate) ValidOp() bool {
	if p.RawSQL != "" {
		return true
	}
	switch p.Op {
	case "IN", "IS NULL", "IS NOT NULL":
		return true
	default:
		return comparisonOps[p.Op]
	}
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Source: DatabaseConfig{
			Port:               5432,
			SSLMode:            "prefer",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		LogConsole: true,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// ApplyOverrides folds CLI flag values into the loaded config. Empty
// strings leave the corresponding field untouched; the two bool flags are
// only ever turned on by a flag, never off, so a zero value is a no-op.
func (c *Config) ApplyOverrides(logLevel, logFormat string, skipPreflight, forceTriggers bool) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if skipPreflight {
		c.SkipPreflight = true
	}
	if forceTriggers {
		c.ForceTriggers = true
	}
}

// FindTable returns the table retention config by name, or nil.
func (c *Config) FindTable(name string) *TableRetention {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i]
		}
	}
	return nil
}
