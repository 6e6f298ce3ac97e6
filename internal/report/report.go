// Package report writes the ranked anomaly report.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dvloznov/ledger-anomaly/internal/anomaly"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/dvloznov/ledger-anomaly/internal/gcs"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
)

// Report column names around the scored feature columns.
const (
	ColScore   = "iso_score"
	ColAnomaly = "is_anom"
)

// Sink receives the scored result in addition to the CSV report.
type Sink interface {
	WriteAnomalies(ctx context.Context, runID string, res *anomaly.Result) error
}

// ObjectStore uploads report objects for gs:// paths.
type ObjectStore interface {
	Upload(ctx context.Context, uri string, data []byte, contentType string) error
}

// Emitter writes the ranked CSV to Path (local or gs://) and forwards the
// result to every sink.
type Emitter struct {
	Path    string
	Objects ObjectStore
	Sinks   []Sink
	Top     int // accounts logged at info level; 0 disables
}

// Emit writes the report. Rows keep the result's ascending score order.
func (e *Emitter) Emit(ctx context.Context, runID string, res *anomaly.Result) error {
	log := logger.FromContext(ctx)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, res); err != nil {
		return fmt.Errorf("Emitter.Emit: %w", err)
	}

	if gcs.IsURI(e.Path) {
		if e.Objects == nil {
			return fmt.Errorf("Emitter.Emit: no object store configured for %s", e.Path)
		}
		if err := e.Objects.Upload(ctx, e.Path, buf.Bytes(), "text/csv"); err != nil {
			return fmt.Errorf("Emitter.Emit: %w", err)
		}
	} else {
		if dir := filepath.Dir(e.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("Emitter.Emit: creating %s: %w", dir, err)
			}
		}
		if err := os.WriteFile(e.Path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("Emitter.Emit: writing %s: %w", e.Path, err)
		}
	}

	log.Info().
		Str("path", e.Path).
		Int("accounts", len(res.Rows)).
		Int("flagged", res.Flagged).
		Msg("Wrote anomaly report")

	for i := 0; i < min(e.Top, len(res.Rows)); i++ {
		r := res.Rows[i]
		log.Info().
			Int("rank", i+1).
			Str("account", r.Account).
			Float64("iso_score", r.Score).
			Bool("is_anom", r.IsAnomaly).
			Int("near_n", r.NearN).
			Bool("round_trip_any", r.RoundTripAny).
			Msg("Top anomaly")
	}

	for _, s := range e.Sinks {
		if err := s.WriteAnomalies(ctx, runID, res); err != nil {
			return fmt.Errorf("Emitter.Emit: %w", err)
		}
	}
	return nil
}

// WriteCSV writes account, the scored columns, iso_score and is_anom.
// Missing feature values are empty cells.
func WriteCSV(w io.Writer, res *anomaly.Result) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(res.Columns)+3)
	header = append(header, features.ColAccount)
	header = append(header, res.Columns...)
	header = append(header, ColScore, ColAnomaly)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}

	rec := make([]string, len(header))
	for _, r := range res.Rows {
		rec[0] = r.Account
		for j, col := range res.Columns {
			v, ok := r.Value(col)
			if !ok {
				return fmt.Errorf("WriteCSV: unknown column %q", col)
			}
			rec[j+1] = formatValue(v)
		}
		rec[len(rec)-2] = strconv.FormatFloat(r.Score, 'g', -1, 64)
		rec[len(rec)-1] = strconv.FormatBool(r.IsAnomaly)
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("WriteCSV: %s: %w", r.Account, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatValue(v features.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'g', -1, 64)
}
