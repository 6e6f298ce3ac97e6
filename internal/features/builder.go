package features

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/ledger-anomaly/internal/apperr"
	"github.com/dvloznov/ledger-anomaly/internal/ledger"
)

// Default structuring band: amounts just under the 10k reporting threshold.
var (
	DefaultNearMin = decimal.NewFromInt(9000)
	DefaultNearMax = decimal.RequireFromString("9999.99")
)

// DefaultCustomerPrefix marks customer accounts in PaySim ids ("C..." vs merchant "M...").
const DefaultCustomerPrefix = "C"

// Aggregate holds the amount and count features of one sending account.
type Aggregate struct {
	Account  string
	NTx      int
	AmtSum   float64
	AmtMean  float64
	AmtMax   float64
	NearN    int
	FraudN   int
	FlaggedN int
	NearPct  float64
}

// Partials are the per-account outputs of the builder before assembly.
type Partials struct {
	Aggregates   []Aggregate // ordered by account id
	InterArrival map[string]InterArrival
	Diversity    map[string]int
}

// Builder derives per-account features for customer-originated transactions.
type Builder struct {
	CustomerPrefix string
	NearMin        decimal.Decimal // inclusive
	NearMax        decimal.Decimal // inclusive
	Workers        int             // <= 0 means GOMAXPROCS
}

// NewBuilder returns a builder with the default prefix and structuring band.
func NewBuilder() *Builder {
	return &Builder{
		CustomerPrefix: DefaultCustomerPrefix,
		NearMin:        DefaultNearMin,
		NearMax:        DefaultNearMax,
	}
}

// Build runs aggregation, the round-trip pass over the full ledger and assembly.
// The returned warnings list accounts whose inter-arrival stats are undefined.
func (b *Builder) Build(ctx context.Context, txs []ledger.Transaction) (*Table, []apperr.ComputationWarning, error) {
	partials, err := b.Summarize(ctx, txs)
	if err != nil {
		return nil, nil, err
	}
	flags := BuildGraph(txs).RoundTripFlags()
	table, warnings := Assemble(partials, flags)
	return table, warnings, nil
}

type accountGroup struct {
	account string
	txs     []ledger.Transaction
}

// Summarize groups customer-originated transactions by sender and computes the
// aggregate, inter-arrival and counterparty-diversity partials.
// Only accounts with at least one originated transaction appear.
func (b *Builder) Summarize(ctx context.Context, txs []ledger.Transaction) (*Partials, error) {
	if b.NearMin.GreaterThan(b.NearMax) {
		return nil, fmt.Errorf("Builder.Summarize: near-threshold band [%s, %s] is empty", b.NearMin, b.NearMax)
	}

	groups := b.group(txs)
	aggs := make([]Aggregate, len(groups))
	ia := make([]InterArrival, len(groups))
	div := make([]int, len(groups))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())
	for i := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			aggs[i], ia[i], div[i] = b.summarizeAccount(groups[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("Builder.Summarize: %w", err)
	}

	p := &Partials{
		Aggregates:   aggs,
		InterArrival: make(map[string]InterArrival, len(groups)),
		Diversity:    make(map[string]int, len(groups)),
	}
	for i, grp := range groups {
		p.InterArrival[grp.account] = ia[i]
		p.Diversity[grp.account] = div[i]
	}
	return p, nil
}

// NearThreshold reports whether amount falls in the closed structuring band.
func (b *Builder) NearThreshold(amount decimal.Decimal) bool {
	return amount.GreaterThanOrEqual(b.NearMin) && amount.LessThanOrEqual(b.NearMax)
}

// Customer reports whether account is a customer id.
func (b *Builder) Customer(account string) bool {
	return strings.HasPrefix(account, b.CustomerPrefix)
}

func (b *Builder) workers() int {
	if b.Workers > 0 {
		return b.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (b *Builder) group(txs []ledger.Transaction) []accountGroup {
	byAccount := make(map[string][]ledger.Transaction)
	for _, tx := range txs {
		if !b.Customer(tx.NameOrig) {
			continue
		}
		byAccount[tx.NameOrig] = append(byAccount[tx.NameOrig], tx)
	}

	groups := make([]accountGroup, 0, len(byAccount))
	for acct, list := range byAccount {
		groups = append(groups, accountGroup{account: acct, txs: list})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].account < groups[j].account })
	return groups
}

func (b *Builder) summarizeAccount(grp accountGroup) (Aggregate, InterArrival, int) {
	agg := Aggregate{Account: grp.account, NTx: len(grp.txs)}

	sum := decimal.Zero
	maxAmt := grp.txs[0].Amount
	steps := make([]int, len(grp.txs))
	dests := make(map[string]struct{})

	for i, tx := range grp.txs {
		sum = sum.Add(tx.Amount)
		if tx.Amount.GreaterThan(maxAmt) {
			maxAmt = tx.Amount
		}
		if b.NearThreshold(tx.Amount) {
			agg.NearN++
		}
		if tx.IsFraud {
			agg.FraudN++
		}
		if tx.IsFlaggedFraud {
			agg.FlaggedN++
		}
		steps[i] = tx.Step
		dests[tx.NameDest] = struct{}{}
	}

	agg.AmtSum = sum.InexactFloat64()
	agg.AmtMean = sum.Div(decimal.NewFromInt(int64(agg.NTx))).InexactFloat64()
	agg.AmtMax = maxAmt.InexactFloat64()
	agg.NearPct = float64(agg.NearN) / float64(max(agg.NTx, 1))

	return agg, InterArrivalStats(steps), len(dests)
}
