// Package ledger models the mobile-money transaction ledger and its read-only sources.
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// TxType is the PaySim transaction type.
type TxType string

const (
	TypeCashIn   TxType = "CASH_IN"
	TypeCashOut  TxType = "CASH_OUT"
	TypeDebit    TxType = "DEBIT"
	TypePayment  TxType = "PAYMENT"
	TypeTransfer TxType = "TRANSFER"
)

// ParseTxType normalizes s and checks it against the known types.
func ParseTxType(s string) (TxType, error) {
	t := TxType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case TypeCashIn, TypeCashOut, TypeDebit, TypePayment, TypeTransfer:
		return t, nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// Transaction is one ledger row. Values are never mutated after a read.
type Transaction struct {
	Step           int // 1-based hour index
	Type           TxType
	Amount         decimal.Decimal
	NameOrig       string
	NameDest       string
	IsFraud        bool
	IsFlaggedFraud bool
}

// Day is the zero-based simulation day of the transaction.
func (t Transaction) Day() int { return (t.Step - 1) / 24 }

// HourOfDay is the hour within the simulation day, 0-23.
func (t Transaction) HourOfDay() int { return (t.Step - 1) % 24 }

// Validate checks the invariants every source must uphold.
func (t Transaction) Validate() error {
	if t.Step < 1 {
		return fmt.Errorf("step must be >= 1, got %d", t.Step)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("amount must be non-negative, got %s", t.Amount)
	}
	if t.NameOrig == "" || t.NameDest == "" {
		return fmt.Errorf("originating and destination accounts are required")
	}
	return nil
}
