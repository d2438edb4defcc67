package config

// Package config provides the configuration structures of the migrator and the job configuration
// derived from them.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// Exit codes of the migrator process. Only configuration problems change the exit status; job
// failures are reported through the log.
const (
	ExitCodeOK     = 0
	ExitCodeSystem = 1
	// ExitCodeConfig is EX_CONFIG from sysexits.h.
	ExitCodeConfig = 78
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // Level is the logging level (e.g., "INFO", "DEBUG").
	Format string `yaml:"format"` // Format is "console" or "json".
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// FileConfig controls how query files are read.
type FileConfig struct {
	// Encoding is the character encoding of query files (e.g., "UTF-8", "Shift_JIS"). Required.
	Encoding string `yaml:"encoding"`
	// Buffer is the read buffer size in bytes. Required.
	Buffer int `yaml:"buffer"`
}

// ExecConfig holds the migration settings.
type ExecConfig struct {
	SelectChunkSize int    `yaml:"select_chunk_size"` // SelectChunkSize is the source fetch size. Required.
	BatchChunkSize  int    `yaml:"batch_chunk_size"`  // BatchChunkSize is the write-batch size. Required.
	TransactionMode string `yaml:"transaction_mode"`  // TransactionMode is None (default), ByRecord or All.
	// Parallelism caps how many jobs run at the same time. 0 runs every job at once.
	Parallelism int `yaml:"parallelism"`
}

// CheckConfig holds the reconciliation settings.
type CheckConfig struct {
	SelectSourceChunkSize      int `yaml:"select_source_chunk_size"`      // Required.
	SelectDestinationChunkSize int `yaml:"select_destination_chunk_size"` // Required.
}

// ClassifyConfig lists the status codes that abort a job.
type ClassifyConfig struct {
	FatalStates []string `yaml:"fatal_states"`
}

// GCSConfig holds Google Cloud Storage settings for gs:// query locations.
type GCSConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

// S3Config holds Amazon S3 settings for s3:// query locations.
type S3Config struct {
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ForcePathStyle bool   `yaml:"force_path_style"`
}

// StorageConfig controls where query files are loaded from.
type StorageConfig struct {
	// BaseDir is the directory relative query paths are resolved against.
	BaseDir string    `yaml:"base_dir"`
	GCS     GCSConfig `yaml:"gcs"`
	S3      S3Config  `yaml:"s3"`
}

// HistoryConfig controls the run-history store.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DatasourceRef string `yaml:"datasource_ref"` // DatasourceRef names the datasource holding the history tables.
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddress is the address the /metrics endpoint listens on. Empty disables it.
	ListenAddress string `yaml:"listen_address"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Exporter    string `yaml:"exporter"` // Exporter is "none", "otlp-grpc" or "otlp-http".
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// QueriesConfig names the query files of one job. Paths are resolved by the storage adapter.
type QueriesConfig struct {
	Count  string `yaml:"count"`  // Count is optional.
	Select string `yaml:"select"` // Select is the source query.
	Write  string `yaml:"write"`  // Write is the destination statement of a migration.
	Lookup string `yaml:"lookup"` // Lookup is the destination query of a reconciliation.
}

// JobDefinition declares one job instance.
type JobDefinition struct {
	Name        string        `yaml:"name"`
	Kind        string        `yaml:"kind"`       // Kind is "migration" or "reconciliation".
	Definition  string        `yaml:"definition"` // Definition is the registry key of the hooks.
	Source      string        `yaml:"source"`
	Destination string        `yaml:"destination"`
	Queries     QueriesConfig `yaml:"queries"`

	// Optional per-job overrides.
	TransactionMode string `yaml:"transaction_mode"`
	BatchChunkSize  int    `yaml:"batch_chunk_size"`
	SelectChunkSize int    `yaml:"select_chunk_size"`
}

// MigratorConfig holds everything under the "migrator" top-level key.
type MigratorConfig struct {
	System    SystemConfig    `yaml:"system"`
	File      FileConfig      `yaml:"file"`
	Exec      ExecConfig      `yaml:"exec"`
	Check     CheckConfig     `yaml:"check"`
	Classify  ClassifyConfig  `yaml:"classify"`
	Storage   StorageConfig   `yaml:"storage"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	// Datasources holds raw datasource settings, decoded by the database adapter.
	Datasources map[string]interface{} `yaml:"datasources"`
	Jobs        []JobDefinition        `yaml:"jobs"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Migrator MigratorConfig `yaml:"migrator"`
}

// NewConfig returns a new instance of Config with default values.
// Settings without a sensible default (encoding, buffer and chunk sizes) are left at zero so
// that validation reports them.
func NewConfig() *Config {
	return &Config{
		Migrator: MigratorConfig{
			System: SystemConfig{
				Logging: LoggingConfig{Level: "INFO", Format: "console"},
			},
			Classify: ClassifyConfig{
				FatalStates: []string{"08S01"},
			},
			Storage: StorageConfig{
				BaseDir: ".",
			},
			History: HistoryConfig{
				DatasourceRef: "history",
			},
			Telemetry: TelemetryConfig{
				Exporter:    "none",
				ServiceName: "dbmigrator",
			},
			Datasources: map[string]interface{}{},
		},
	}
}
