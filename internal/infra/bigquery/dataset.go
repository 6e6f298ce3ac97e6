package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const (
	anomaliesTable   = "account_anomalies"
	scoringRunsTable = "scoring_runs"
)

// Dataset names the project and dataset every query runs against.
type Dataset struct {
	ProjectID string
	DatasetID string
}

// Table returns the fully qualified, backquoted table reference.
func (d Dataset) Table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", d.ProjectID, d.DatasetID, name)
}

// Repository holds a shared BigQuery client bound to one dataset.
type Repository struct {
	client *bigquery.Client
	ds     Dataset
}

// NewRepository creates a client for ds.ProjectID.
func NewRepository(ctx context.Context, ds Dataset) (*Repository, error) {
	if ds.ProjectID == "" || ds.DatasetID == "" {
		return nil, fmt.Errorf("NewRepository: project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, ds.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{client: client, ds: ds}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Dataset returns the dataset the repository is bound to.
func (r *Repository) Dataset() Dataset { return r.ds }

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
