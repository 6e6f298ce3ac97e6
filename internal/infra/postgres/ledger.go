// Package postgres reads the transaction ledger from a Postgres table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/ledger-anomaly/internal/apperr"
	"github.com/dvloznov/ledger-anomaly/internal/ledger"
	"github.com/dvloznov/ledger-anomaly/internal/logger"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const undefinedTable = "42P01"

// LedgerReader reads a PaySim-shaped table inside a read-only transaction.
type LedgerReader struct {
	db           *sql.DB
	table        string
	queryTimeout time.Duration
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.Open: ping: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	return db, nil
}

func NewLedgerReader(db *sql.DB, table string, queryTimeout time.Duration) *LedgerReader {
	return &LedgerReader{db: db, table: table, queryTimeout: queryTimeout}
}

func (r *LedgerReader) ReadAll(ctx context.Context) ([]ledger.Transaction, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	if r.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.queryTimeout)
		defer cancel()
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("LedgerReader.ReadAll: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, ledgerQuery(r.table))
	if err != nil {
		if isUndefinedTable(err) {
			return nil, apperr.NewMissingInput("ledger", r.table)
		}
		return nil, fmt.Errorf("LedgerReader.ReadAll: query: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			t      ledger.Transaction
			typ    string
			amount decimal.Decimal
		)
		if err := rows.Scan(&t.Step, &typ, &amount, &t.NameOrig, &t.NameDest, &t.IsFraud, &t.IsFlaggedFraud); err != nil {
			return nil, fmt.Errorf("LedgerReader.ReadAll: scan row %d: %w", len(txs)+1, err)
		}
		if t.Type, err = ledger.ParseTxType(typ); err != nil {
			return nil, fmt.Errorf("LedgerReader.ReadAll: row %d: %w", len(txs)+1, err)
		}
		t.Amount = amount
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("LedgerReader.ReadAll: row %d: %w", len(txs)+1, err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LedgerReader.ReadAll: rows: %w", err)
	}

	log.Debug().
		Str("table", r.table).
		Int("rows", len(txs)).
		Dur("duration", time.Since(start)).
		Msg("Read ledger from Postgres")
	return txs, nil
}

// Count returns the row count of the ledger table, for load verification.
func (r *LedgerReader) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteTable(r.table)).Scan(&n)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, apperr.NewMissingInput("ledger", r.table)
		}
		return 0, fmt.Errorf("LedgerReader.Count: %w", err)
	}
	return n, nil
}

// ledgerQuery selects the PaySim columns. The mixed-case names are quoted as
// created by a CSV import that preserves the header.
func ledgerQuery(table string) string {
	return `SELECT step, type, amount, "nameOrig", "nameDest", "isFraud"::int <> 0, "isFlaggedFraud"::int <> 0
		FROM ` + quoteTable(table) + `
		ORDER BY step`
}

// quoteTable quotes a possibly schema-qualified table name.
func quoteTable(table string) string {
	parts := strings.Split(table, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == undefinedTable
}
