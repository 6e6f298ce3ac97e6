package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/ledger-anomaly/internal/anomaly"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
)

const insertBatchSize = 500

// AnomalyRow is one scored account in account_anomalies.
type AnomalyRow struct {
	RunID   string     `bigquery:"run_id"`   // REQUIRED
	RunDate civil.Date `bigquery:"run_date"` // REQUIRED, partition column
	Rank    int64      `bigquery:"rank"`     // REQUIRED, 1 = most anomalous

	Account   string  `bigquery:"account"`    // REQUIRED
	IsoScore  float64 `bigquery:"iso_score"`  // REQUIRED
	IsAnomaly bool    `bigquery:"is_anomaly"` // REQUIRED

	NTx      int64   `bigquery:"n_tx"`
	AmtSum   float64 `bigquery:"amt_sum"`
	AmtMean  float64 `bigquery:"amt_mean"`
	AmtMax   float64 `bigquery:"amt_max"`
	NearN    int64   `bigquery:"near_n"`
	NearPct  float64 `bigquery:"near_pct"`
	FraudN   int64   `bigquery:"fraud_n"`
	FlaggedN int64   `bigquery:"flagged_n"`

	IAMean   bigquery.NullFloat64 `bigquery:"ia_mean"`   // NULLABLE
	IAMedian bigquery.NullFloat64 `bigquery:"ia_median"` // NULLABLE
	IAStd    bigquery.NullFloat64 `bigquery:"ia_std"`    // NULLABLE

	CPDiversity  int64 `bigquery:"cp_diversity"`
	RoundTripAny bool  `bigquery:"round_trip_any"`

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// NewAnomalyRows converts a scored result into table rows, keeping its rank order.
func NewAnomalyRows(runID string, runDate civil.Date, res *anomaly.Result) []*AnomalyRow {
	now := time.Now().UTC()
	rows := make([]*AnomalyRow, len(res.Rows))
	for i, r := range res.Rows {
		rows[i] = &AnomalyRow{
			RunID:        runID,
			RunDate:      runDate,
			Rank:         int64(i + 1),
			Account:      r.Account,
			IsoScore:     r.Score,
			IsAnomaly:    r.IsAnomaly,
			NTx:          int64(r.NTx),
			AmtSum:       r.AmtSum,
			AmtMean:      r.AmtMean,
			AmtMax:       r.AmtMax,
			NearN:        int64(r.NearN),
			NearPct:      r.NearPct,
			FraudN:       int64(r.FraudN),
			FlaggedN:     int64(r.FlaggedN),
			IAMean:       nullFloat(r.IAMean),
			IAMedian:     nullFloat(r.IAMedian),
			IAStd:        nullFloat(r.IAStd),
			CPDiversity:  int64(r.CPDiversity),
			RoundTripAny: r.RoundTripAny,
			CreatedTS:    now,
		}
	}
	return rows
}

func nullFloat(v features.NullFloat64) bigquery.NullFloat64 {
	return bigquery.NullFloat64{Float64: v.Float64, Valid: v.Valid}
}

// InsertAnomaliesWithClient streams rows into account_anomalies in batches.
func InsertAnomaliesWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, rows []*AnomalyRow) error {
	if len(rows) == 0 {
		return nil
	}

	inserter := client.DatasetInProject(ds.ProjectID, ds.DatasetID).Table(anomaliesTable).Inserter()
	for start := 0; start < len(rows); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rows))
		if err := inserter.Put(ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertAnomaliesWithClient: inserting rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// WriteAnomalies stores a scored result under runID.
func (r *Repository) WriteAnomalies(ctx context.Context, runID string, res *anomaly.Result) error {
	log := logger.FromContext(ctx)

	rows := NewAnomalyRows(runID, civil.DateOf(time.Now()), res)
	if err := InsertAnomaliesWithClient(ctx, r.client, r.ds, rows); err != nil {
		return fmt.Errorf("Repository.WriteAnomalies: %w", err)
	}

	log.Info().
		Str("table", r.ds.Table(anomaliesTable)).
		Int("rows", len(rows)).
		Msg("Wrote anomalies to BigQuery")
	return nil
}
