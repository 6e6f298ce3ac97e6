package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dvloznov/ledger-anomaly/internal/ledger"
	"github.com/shopspring/decimal"
)

// Activity counts near-threshold transactions per simulation day and hour.
type Activity struct {
	Counts [][24]int // indexed by day
	Total  int
}

// NearThresholdActivity tallies the transactions whose amount inBand accepts.
func NearThresholdActivity(txs []ledger.Transaction, inBand func(decimal.Decimal) bool) *Activity {
	a := &Activity{}
	for _, tx := range txs {
		if !inBand(tx.Amount) {
			continue
		}
		day := tx.Day()
		for len(a.Counts) <= day {
			a.Counts = append(a.Counts, [24]int{})
		}
		a.Counts[day][tx.HourOfDay()]++
		a.Total++
	}
	return a
}

// Write prints one row per day with a column per hour, plus row totals.
func (a *Activity) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)

	header := []string{"day"}
	for h := 0; h < 24; h++ {
		header = append(header, fmt.Sprintf("%02d", h))
	}
	header = append(header, "total")
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	for day, hours := range a.Counts {
		row := []string{strconv.Itoa(day)}
		sum := 0
		for _, n := range hours {
			row = append(row, strconv.Itoa(n))
			sum += n
		}
		row = append(row, strconv.Itoa(sum))
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}

	fmt.Fprintf(tw, "total\t%s%d\t\n", strings.Repeat("\t", 24), a.Total)
	return tw.Flush()
}
