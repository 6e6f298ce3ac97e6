package featurestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dvloznov/ledger-anomaly/internal/apperr"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/dvloznov/ledger-anomaly/internal/gcs"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
)

// FileStore keeps the feature table as CSV on local disk, or in GCS when
// Path is a gs:// URI.
type FileStore struct {
	Path    string
	Objects ObjectStore // required for gs:// paths
}

func NewFileStore(path string, objects ObjectStore) *FileStore {
	return &FileStore{Path: path, Objects: objects}
}

func (s *FileStore) Location() string { return s.Path }

func (s *FileStore) Save(ctx context.Context, table *features.Table) error {
	log := logger.FromContext(ctx)

	data, err := features.EncodeCSV(table)
	if err != nil {
		return fmt.Errorf("FileStore.Save: %w", err)
	}

	if gcs.IsURI(s.Path) {
		if s.Objects == nil {
			return fmt.Errorf("FileStore.Save: no object store configured for %s", s.Path)
		}
		if err := s.Objects.Upload(ctx, s.Path, data, "text/csv"); err != nil {
			return fmt.Errorf("FileStore.Save: %w", err)
		}
	} else {
		if dir := filepath.Dir(s.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("FileStore.Save: creating %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(s.Path, data, 0o644); err != nil {
			return fmt.Errorf("FileStore.Save: writing %s: %w", s.Path, err)
		}
	}

	log.Info().Str("path", s.Path).Int("accounts", table.Len()).Msg("Saved feature table")
	return nil
}

func (s *FileStore) Load(ctx context.Context) (*features.Table, error) {
	var data []byte
	var err error

	if gcs.IsURI(s.Path) {
		if s.Objects == nil {
			return nil, fmt.Errorf("FileStore.Load: no object store configured for %s", s.Path)
		}
		data, err = s.Objects.Fetch(ctx, s.Path)
	} else {
		data, err = os.ReadFile(s.Path)
		if errors.Is(err, fs.ErrNotExist) {
			err = apperr.NewMissingInput(artifact, s.Path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: %w", err)
	}

	table, err := features.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("FileStore.Load: parsing %s: %w", s.Path, err)
	}
	return table, nil
}
