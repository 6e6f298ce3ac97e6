package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/ledger-anomaly/internal/apperr"
	"github.com/dvloznov/ledger-anomaly/internal/ledger"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// LedgerRow is one PaySim row as projected by QueryLedgerWithClient.
// Amount is cast to STRING in SQL so it converts to an exact decimal.
type LedgerRow struct {
	Step           int64  `bigquery:"step"`
	Type           string `bigquery:"type"`
	Amount         string `bigquery:"amount"`
	NameOrig       string `bigquery:"name_orig"`
	NameDest       string `bigquery:"name_dest"`
	IsFraud        bool   `bigquery:"is_fraud"`
	IsFlaggedFraud bool   `bigquery:"is_flagged_fraud"`
}

// Transaction converts and validates the row.
func (r *LedgerRow) Transaction() (ledger.Transaction, error) {
	typ, err := ledger.ParseTxType(r.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("amount: %w", err)
	}
	tx := ledger.Transaction{
		Step:           int(r.Step),
		Type:           typ,
		Amount:         amount,
		NameOrig:       r.NameOrig,
		NameDest:       r.NameDest,
		IsFraud:        r.IsFraud,
		IsFlaggedFraud: r.IsFlaggedFraud,
	}
	if err := tx.Validate(); err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}

// QueryLedgerWithClient reads the whole ledger table in step order.
// A table that does not exist is reported as *apperr.MissingInputError.
func QueryLedgerWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, table string) ([]*LedgerRow, error) {
	q := client.Query(fmt.Sprintf(`
		SELECT
			step,
			type,
			CAST(amount AS STRING) AS amount,
			nameOrig AS name_orig,
			nameDest AS name_dest,
			CAST(isFraud AS INT64) != 0 AS is_fraud,
			CAST(isFlaggedFraud AS INT64) != 0 AS is_flagged_fraud
		FROM %s
		ORDER BY step
	`, ds.Table(table)))

	it, err := q.Read(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NewMissingInput("ledger", ds.Table(table))
		}
		return nil, fmt.Errorf("QueryLedgerWithClient: query read: %w", err)
	}

	var rows []*LedgerRow
	for {
		var r LedgerRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryLedgerWithClient: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

// CountLedgerWithClient returns COUNT(*) of the ledger table.
func CountLedgerWithClient(ctx context.Context, client *bigquery.Client, ds Dataset, table string) (int64, error) {
	q := client.Query(fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", ds.Table(table)))
	it, err := q.Read(ctx)
	if err != nil {
		if isNotFound(err) {
			return 0, apperr.NewMissingInput("ledger", ds.Table(table))
		}
		return 0, fmt.Errorf("CountLedgerWithClient: query read: %w", err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("CountLedgerWithClient: iter next: %w", err)
	}
	return row.N, nil
}

// LedgerReader serves a BigQuery table as a ledger.Reader.
type LedgerReader struct {
	repo  *Repository
	table string
}

// LedgerReader returns a reader over the named table in the repository's dataset.
func (r *Repository) LedgerReader(table string) *LedgerReader {
	return &LedgerReader{repo: r, table: table}
}

func (r *LedgerReader) ReadAll(ctx context.Context) ([]ledger.Transaction, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	rows, err := QueryLedgerWithClient(ctx, r.repo.client, r.repo.ds, r.table)
	if err != nil {
		return nil, fmt.Errorf("LedgerReader.ReadAll: %w", err)
	}

	txs := make([]ledger.Transaction, 0, len(rows))
	for i, row := range rows {
		tx, err := row.Transaction()
		if err != nil {
			return nil, fmt.Errorf("LedgerReader.ReadAll: row %d: %w", i+1, err)
		}
		txs = append(txs, tx)
	}

	log.Debug().
		Str("table", r.repo.ds.Table(r.table)).
		Int("rows", len(txs)).
		Dur("duration", time.Since(start)).
		Msg("Read ledger from BigQuery")
	return txs, nil
}

// Count returns the row count of the ledger table, for load verification.
func (r *LedgerReader) Count(ctx context.Context) (int64, error) {
	return CountLedgerWithClient(ctx, r.repo.client, r.repo.ds, r.table)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
