// Package features derives one behavioral feature row per customer-originating account
// from the transaction ledger.
package features

import (
	"fmt"
	"sort"

	"github.com/dvloznov/ledger-anomaly/internal/apperr"
)

// NullFloat64 is a float that may be undefined. Consumers must check Valid
// before reading Float64; an invalid value is never the same as zero.
type NullFloat64 struct {
	Float64 float64
	Valid   bool
}

// Float returns a valid NullFloat64.
func Float(v float64) NullFloat64 { return NullFloat64{Float64: v, Valid: true} }

// Null is the undefined value.
var Null = NullFloat64{}

// OrZero resolves a missing value to 0.
func (n NullFloat64) OrZero() float64 {
	if !n.Valid {
		return 0
	}
	return n.Float64
}

// Column names, as written to the feature table and accepted by the scorer.
const (
	ColAccount      = "account"
	ColNTx          = "n_tx"
	ColAmtSum       = "amt_sum"
	ColAmtMean      = "amt_mean"
	ColAmtMax       = "amt_max"
	ColNearN        = "near_n"
	ColFraudN       = "fraud_n"
	ColFlaggedN     = "flagged_n"
	ColNearPct      = "near_pct"
	ColIAMean       = "ia_mean"
	ColIAMedian     = "ia_median"
	ColIAStd        = "ia_std"
	ColCPDiversity  = "cp_diversity"
	ColRoundTripAny = "round_trip_any"

	// ColIAMissing is derived, not stored: 1 when inter-arrival history is insufficient.
	ColIAMissing = "ia_missing"
)

// Columns is the stored column order of the feature table.
var Columns = []string{
	ColAccount, ColNTx, ColAmtSum, ColAmtMean, ColAmtMax, ColNearN, ColFraudN, ColFlaggedN,
	ColNearPct, ColIAMean, ColIAMedian, ColIAStd, ColCPDiversity, ColRoundTripAny,
}

// AccountFeatures is the assembled feature row for one account.
type AccountFeatures struct {
	Account  string
	NTx      int
	AmtSum   float64
	AmtMean  float64
	AmtMax   float64
	NearN    int
	FraudN   int
	FlaggedN int
	NearPct  float64

	IAMean   NullFloat64
	IAMedian NullFloat64
	IAStd    NullFloat64

	CPDiversity  int
	RoundTripAny bool
}

// InsufficientHistory reports whether any inter-arrival statistic is undefined.
func (f AccountFeatures) InsufficientHistory() bool {
	return !f.IAMean.Valid || !f.IAMedian.Valid || !f.IAStd.Valid
}

// Value returns a numeric column by name. Booleans map to 0/1.
func (f AccountFeatures) Value(column string) (NullFloat64, bool) {
	switch column {
	case ColNTx:
		return Float(float64(f.NTx)), true
	case ColAmtSum:
		return Float(f.AmtSum), true
	case ColAmtMean:
		return Float(f.AmtMean), true
	case ColAmtMax:
		return Float(f.AmtMax), true
	case ColNearN:
		return Float(float64(f.NearN)), true
	case ColFraudN:
		return Float(float64(f.FraudN)), true
	case ColFlaggedN:
		return Float(float64(f.FlaggedN)), true
	case ColNearPct:
		return Float(f.NearPct), true
	case ColIAMean:
		return f.IAMean, true
	case ColIAMedian:
		return f.IAMedian, true
	case ColIAStd:
		return f.IAStd, true
	case ColCPDiversity:
		return Float(float64(f.CPDiversity)), true
	case ColRoundTripAny:
		return Float(boolToFloat(f.RoundTripAny)), true
	case ColIAMissing:
		return Float(boolToFloat(f.InsufficientHistory())), true
	}
	return Null, false
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Table is the feature table, one row per account, ordered by account id.
type Table struct {
	Rows []AccountFeatures
}

// Len returns the number of accounts.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Column extracts a numeric column in row order.
func (t *Table) Column(name string) ([]NullFloat64, error) {
	if _, ok := (AccountFeatures{}).Value(name); !ok {
		return nil, &apperr.InsufficientDataError{Reason: fmt.Sprintf("numeric column %q not present in feature table", name)}
	}
	out := make([]NullFloat64, len(t.Rows))
	for i, row := range t.Rows {
		out[i], _ = row.Value(name)
	}
	return out, nil
}

// Lookup finds the row for an account by binary search.
func (t *Table) Lookup(account string) (AccountFeatures, bool) {
	i := sort.Search(len(t.Rows), func(i int) bool { return t.Rows[i].Account >= account })
	if i < len(t.Rows) && t.Rows[i].Account == account {
		return t.Rows[i], true
	}
	return AccountFeatures{}, false
}
