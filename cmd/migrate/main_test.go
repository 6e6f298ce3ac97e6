package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/ledger-anomaly/internal/logger"
	"github.com/google/go-cmp/cmp"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  string
		name     string
	}{
		{"0001_create_scoring_runs.sql", true, "0001", "create_scoring_runs"},
		{"001_invalid.sql", false, "", ""},
		{"0001_test", false, "", ""},
		{"0001.sql", false, "", ""},
		{"invalid_0001_test.sql", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			m := migrationPattern.FindStringSubmatch(tt.filename)
			if (m != nil) != tt.valid {
				t.Fatalf("match = %v, want %v", m != nil, tt.valid)
			}
			if tt.valid && (m[1] != tt.version || m[2] != tt.name) {
				t.Errorf("got version %q name %q", m[1], m[2])
			}
		})
	}
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"0002_create_account_anomalies.sql": "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.account_anomalies` (x INT64);",
		"0001_create_scoring_runs.sql":      "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.scoring_runs` (x INT64);",
		"README.md":                         "not a migration",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	migrations, err := readMigrations(logger.NewWithWriter(io.Discard), dir, "proj", "ledger")
	if err != nil {
		t.Fatalf("readMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("migrations not sorted: %d, %d", migrations[0].Version, migrations[1].Version)
	}
	if !strings.Contains(migrations[0].SQL, "`proj.ledger.scoring_runs`") {
		t.Errorf("placeholders not replaced: %s", migrations[0].SQL)
	}
	if migrations[0].Checksum == migrations[1].Checksum {
		t.Error("different files should have different checksums")
	}
}

func TestMigrationChecksumIgnoresTarget(t *testing.T) {
	dir := t.TempDir()
	body := "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` (x INT64);"
	if err := os.WriteFile(filepath.Join(dir, "0001_t.sql"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	log := logger.NewWithWriter(io.Discard)

	a, err := readMigrations(log, dir, "proj-a", "ledger")
	if err != nil {
		t.Fatal(err)
	}
	b, err := readMigrations(log, dir, "proj-b", "ledger_staging")
	if err != nil {
		t.Fatal(err)
	}
	if a[0].Checksum != b[0].Checksum {
		t.Error("checksum should not depend on project or dataset")
	}
}

func TestPendingMigrations(t *testing.T) {
	all := []Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}
	applied := []AppliedMigration{{Version: 1}, {Version: 3}}

	got := pendingMigrations(all, applied)
	if diff := cmp.Diff([]Migration{{Version: 2, Name: "b"}}, got); diff != "" {
		t.Errorf("pending mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrationFilesInRepo(t *testing.T) {
	dir, err := resolveDir("migrations/bigquery")
	if err != nil {
		t.Skip("migrations directory not reachable from test working directory")
	}
	migrations, err := readMigrations(logger.NewWithWriter(io.Discard), dir, "proj", "ledger")
	if err != nil {
		t.Fatal(err)
	}
	for i, m := range migrations {
		if m.Version != i+1 {
			t.Errorf("migration %s has version %d, want %d", m.Filename, m.Version, i+1)
		}
		if strings.Contains(m.SQL, "{{") {
			t.Errorf("migration %s has unreplaced placeholders", m.Filename)
		}
	}
}
