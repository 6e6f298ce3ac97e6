package features

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-anomaly/internal/ledger"
)

func tx(step int, typ ledger.TxType, amount string, orig, dest string) ledger.Transaction {
	return ledger.Transaction{
		Step:     step,
		Type:     typ,
		Amount:   decimal.RequireFromString(amount),
		NameOrig: orig,
		NameDest: dest,
	}
}

func TestGraph_RoundTrip(t *testing.T) {
	// One bidirectional pair (C1 <-> C2) and several one-way flows.
	txs := []ledger.Transaction{
		tx(1, ledger.TypeTransfer, "100", "C1", "C2"),
		tx(2, ledger.TypeTransfer, "50", "C2", "C1"),
		tx(3, ledger.TypePayment, "10", "C1", "M1"),
		tx(4, ledger.TypeTransfer, "10", "C3", "C4"),
		tx(5, ledger.TypeTransfer, "10", "C4", "C5"),
		tx(6, ledger.TypeTransfer, "10", "C5", "C3"), // cycle of length 3, no direct return
		tx(7, ledger.TypeCashOut, "10", "C6", "C7"),
		tx(8, ledger.TypeCashOut, "10", "C6", "C7"),
	}
	g := BuildGraph(txs)

	want := map[string]bool{
		"C1": true, "C2": true,
		"M1": false,
		"C3": false, "C4": false, "C5": false,
		"C6": false, "C7": false,
	}
	if diff := cmp.Diff(want, g.RoundTripFlags()); diff != "" {
		t.Errorf("RoundTripFlags mismatch (-want +got):\n%s", diff)
	}

	if g.RoundTrip("C404") {
		t.Error("account outside the graph must not be flagged")
	}
}

func TestGraph_MerchantReturnCountsForCustomer(t *testing.T) {
	// The return leg is originated by a merchant; the flag still uses the full ledger.
	txs := []ledger.Transaction{
		tx(1, ledger.TypePayment, "20", "C9", "M9"),
		tx(2, ledger.TypeCashIn, "20", "M9", "C9"),
	}
	if !BuildGraph(txs).RoundTrip("C9") {
		t.Error("expected C9 round trip via M9")
	}
}

func TestGraph_Accounts(t *testing.T) {
	g := BuildGraph([]ledger.Transaction{
		tx(1, ledger.TypePayment, "1", "C2", "M1"),
		tx(1, ledger.TypePayment, "1", "C1", "M1"),
	})
	if diff := cmp.Diff([]string{"C1", "C2", "M1"}, g.Accounts()); diff != "" {
		t.Errorf("Accounts mismatch (-want +got):\n%s", diff)
	}
}
