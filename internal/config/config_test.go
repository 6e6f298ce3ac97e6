package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ledger.Source != "csv" {
		t.Errorf("ledger.source = %q, want csv", cfg.Ledger.Source)
	}
	if cfg.Features.CustomerPrefix != "C" {
		t.Errorf("customer_prefix = %q, want C", cfg.Features.CustomerPrefix)
	}
	if cfg.Scoring.Contamination != 0.005 || cfg.Scoring.Trees != 300 || cfg.Scoring.Seed != 42 {
		t.Errorf("unexpected scoring defaults: %+v", cfg.Scoring)
	}
	if diff := cmp.Diff(DefaultFeatureColumns, cfg.Scoring.Columns); diff != "" {
		t.Errorf("scoring.columns mismatch (-want +got):\n%s", diff)
	}
	if cfg.Features.Store.Redis.TTL != 24*time.Hour {
		t.Errorf("redis ttl = %v, want 24h", cfg.Features.Store.Redis.TTL)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detect.yaml")
	yaml := `
ledger:
  source: postgres
  postgres:
    dsn: postgres://ro@localhost/paysim?sslmode=disable
scoring:
  trees: 50
  columns: [n_tx, near_pct, ia_missing]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEDGER_SCORING_SEED", "7")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Ledger.Source != "postgres" {
		t.Errorf("ledger.source = %q, want postgres", cfg.Ledger.Source)
	}
	if cfg.Scoring.Trees != 50 {
		t.Errorf("scoring.trees = %d, want 50", cfg.Scoring.Trees)
	}
	if cfg.Scoring.Seed != 7 {
		t.Errorf("scoring.seed = %d, want 7 from env", cfg.Scoring.Seed)
	}
	if diff := cmp.Diff([]string{"n_tx", "near_pct", "ia_missing"}, cfg.Scoring.Columns); diff != "" {
		t.Errorf("scoring.columns mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), false); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load("", true)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown source", func(c *Config) { c.Ledger.Source = "sqlite" }, true},
		{"unknown store", func(c *Config) { c.Features.Store.Backend = "s3" }, true},
		{"zero contamination", func(c *Config) { c.Scoring.Contamination = 0 }, true},
		{"contamination too high", func(c *Config) { c.Scoring.Contamination = 0.6 }, true},
		{"no trees", func(c *Config) { c.Scoring.Trees = 0 }, true},
		{"no columns", func(c *Config) { c.Scoring.Columns = nil }, true},
		{"bigquery without project", func(c *Config) { c.Report.BigQuery = true }, true},
		{"bigquery with project", func(c *Config) {
			c.Report.BigQuery = true
			c.BigQuery.ProjectID = "paysim-dev"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			c.Scoring.Columns = append([]string(nil), base.Scoring.Columns...)
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "detect.example.yaml"), false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(DefaultFeatureColumns, cfg.Scoring.Columns); diff != "" {
		t.Errorf("example columns drifted from defaults (-want +got):\n%s", diff)
	}
	if cfg.Ledger.Postgres.QueryTimeout != 0 {
		t.Errorf("query_timeout = %v, want 0", cfg.Ledger.Postgres.QueryTimeout)
	}
}
