package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dvloznov/ledger-anomaly/internal/apperr"
)

// Reader loads the full transaction table.
type Reader interface {
	ReadAll(ctx context.Context) ([]Transaction, error)
}

// ObjectFetcher downloads an object by URI. Satisfied by gcs.Client.
type ObjectFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FileReader reads a PaySim CSV from the local filesystem.
type FileReader struct {
	Path string
}

func (r *FileReader) ReadAll(ctx context.Context) ([]Transaction, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NewMissingInput("ledger", r.Path)
		}
		return nil, fmt.Errorf("FileReader.ReadAll: open %s: %w", r.Path, err)
	}
	defer f.Close()

	txs, err := DecodeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("FileReader.ReadAll: %s: %w", r.Path, err)
	}
	return txs, nil
}

// ObjectReader reads a PaySim CSV stored as a cloud object (gs://bucket/path).
type ObjectReader struct {
	URI     string
	Fetcher ObjectFetcher
}

func (r *ObjectReader) ReadAll(ctx context.Context) ([]Transaction, error) {
	data, err := r.Fetcher.Fetch(ctx, r.URI)
	if err != nil {
		return nil, fmt.Errorf("ObjectReader.ReadAll: %w", err)
	}
	txs, err := DecodeCSVBytes(data)
	if err != nil {
		return nil, fmt.Errorf("ObjectReader.ReadAll: %s: %w", r.URI, err)
	}
	return txs, nil
}
