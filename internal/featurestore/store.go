// Package featurestore persists the assembled feature table between the
// feature-building and scoring stages.
package featurestore

import (
	"context"

	"github.com/dvloznov/ledger-anomaly/internal/features"
)

const artifact = "feature table"

// Store saves and loads one feature table artifact.
type Store interface {
	Save(ctx context.Context, table *features.Table) error
	// Load returns an *apperr.MissingInputError when no table has been saved.
	Load(ctx context.Context) (*features.Table, error)
	Location() string
}

// ObjectStore is the subset of the GCS client used for gs:// paths.
type ObjectStore interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
	Upload(ctx context.Context, uri string, data []byte, contentType string) error
}
