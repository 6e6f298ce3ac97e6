package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFeatureColumns is the ordered numeric column list fed to the scorer.
var DefaultFeatureColumns = []string{
	"n_tx", "amt_sum", "amt_mean", "amt_max", "near_n", "near_pct",
	"ia_mean", "ia_median", "ia_std", "cp_diversity",
}

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Features FeaturesConfig `mapstructure:"features"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Report   ReportConfig   `mapstructure:"report"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LedgerConfig selects where transactions are read from.
// Source is one of: csv, bigquery, postgres. A csv Path may be a gs:// URI.
type LedgerConfig struct {
	Source   string         `mapstructure:"source"`
	Path     string         `mapstructure:"path"`
	Table    string         `mapstructure:"table"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	DSN          string        `mapstructure:"dsn"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

type FeaturesConfig struct {
	CustomerPrefix   string      `mapstructure:"customer_prefix"`
	NearThresholdMin string      `mapstructure:"near_threshold_min"`
	NearThresholdMax string      `mapstructure:"near_threshold_max"`
	Workers          int         `mapstructure:"workers"`
	Store            StoreConfig `mapstructure:"store"`
}

// StoreConfig selects the feature table artifact backend: file or redis.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Key      string        `mapstructure:"key"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ScoringConfig struct {
	Columns       []string `mapstructure:"columns"`
	Contamination float64  `mapstructure:"contamination"`
	Trees         int      `mapstructure:"trees"`
	MaxSamples    int      `mapstructure:"max_samples"`
	Seed          int64    `mapstructure:"seed"`
	Workers       int      `mapstructure:"workers"`
}

// ReportConfig controls the ranked report. Path may be a local file or a gs:// URI.
type ReportConfig struct {
	Path     string `mapstructure:"path"`
	BigQuery bool   `mapstructure:"bigquery"`
}

type BigQueryConfig struct {
	ProjectID string `mapstructure:"project_id"`
	DatasetID string `mapstructure:"dataset_id"`
}

// Load reads the YAML file at path (unless envOnly) layered over defaults and
// LEDGER_* environment variables.
func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("ledger.source", "csv")
	v.SetDefault("ledger.path", "data/transactions.csv")
	v.SetDefault("ledger.table", "transactions")
	v.SetDefault("ledger.postgres.dsn", "")
	v.SetDefault("ledger.postgres.query_timeout", "0s")

	v.SetDefault("features.customer_prefix", "C")
	v.SetDefault("features.near_threshold_min", "9000")
	v.SetDefault("features.near_threshold_max", "9999.99")
	v.SetDefault("features.workers", 0)
	v.SetDefault("features.store.backend", "file")
	v.SetDefault("features.store.path", "data/features_accounts.csv")
	v.SetDefault("features.store.redis.addr", "localhost:6379")
	v.SetDefault("features.store.redis.password", "")
	v.SetDefault("features.store.redis.db", 0)
	v.SetDefault("features.store.redis.key", "ledger:features_accounts")
	v.SetDefault("features.store.redis.ttl", "24h")

	v.SetDefault("scoring.columns", DefaultFeatureColumns)
	v.SetDefault("scoring.contamination", 0.005)
	v.SetDefault("scoring.trees", 300)
	v.SetDefault("scoring.max_samples", 256)
	v.SetDefault("scoring.seed", 42)
	v.SetDefault("scoring.workers", 0)

	v.SetDefault("report.path", "reports/anomalies_accounts.csv")
	v.SetDefault("report.bigquery", false)

	v.SetDefault("bigquery.project_id", "")
	v.SetDefault("bigquery.dataset_id", "ledger")

	if !envOnly && path != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config.Load: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: decoding: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that the pipeline cannot recover from at run time.
func (c Config) Validate() error {
	switch c.Ledger.Source {
	case "csv", "bigquery", "postgres":
	default:
		return fmt.Errorf("config: unknown ledger.source %q", c.Ledger.Source)
	}
	switch c.Features.Store.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("config: unknown features.store.backend %q", c.Features.Store.Backend)
	}
	if c.Scoring.Contamination <= 0 || c.Scoring.Contamination > 0.5 {
		return fmt.Errorf("config: scoring.contamination must be in (0, 0.5], got %v", c.Scoring.Contamination)
	}
	if c.Scoring.Trees < 1 {
		return fmt.Errorf("config: scoring.trees must be positive, got %d", c.Scoring.Trees)
	}
	if len(c.Scoring.Columns) == 0 {
		return fmt.Errorf("config: scoring.columns is empty")
	}
	if (c.Ledger.Source == "bigquery" || c.Report.BigQuery) && c.BigQuery.ProjectID == "" {
		return fmt.Errorf("config: bigquery.project_id is required when BigQuery is used")
	}
	return nil
}
