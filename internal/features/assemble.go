package features

import "github.com/dvloznov/ledger-anomaly/internal/apperr"

// Assemble left-joins the aggregates with the inter-arrival stats, diversity counts
// and round-trip flags. Missing diversity becomes 0 and a missing flag false;
// missing inter-arrival stats stay undefined and are reported as warnings.
func Assemble(p *Partials, roundTrips map[string]bool) (*Table, []apperr.ComputationWarning) {
	t := &Table{Rows: make([]AccountFeatures, 0, len(p.Aggregates))}
	var warnings []apperr.ComputationWarning

	for _, agg := range p.Aggregates {
		row := AccountFeatures{
			Account:  agg.Account,
			NTx:      agg.NTx,
			AmtSum:   agg.AmtSum,
			AmtMean:  agg.AmtMean,
			AmtMax:   agg.AmtMax,
			NearN:    agg.NearN,
			FraudN:   agg.FraudN,
			FlaggedN: agg.FlaggedN,
			NearPct:  agg.NearPct,
		}

		if ia, ok := p.InterArrival[agg.Account]; ok {
			row.IAMean, row.IAMedian, row.IAStd = ia.Mean, ia.Median, ia.Std
		}
		if row.InsufficientHistory() {
			warnings = append(warnings, apperr.ComputationWarning{Account: agg.Account, Observations: agg.NTx})
		}

		row.CPDiversity = p.Diversity[agg.Account]
		row.RoundTripAny = roundTrips[agg.Account]

		t.Rows = append(t.Rows, row)
	}
	return t, warnings
}
