package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Header columns required in a ledger CSV. Extra PaySim columns are ignored.
var requiredColumns = []string{"step", "type", "amount", "nameOrig", "nameDest", "isFraud", "isFlaggedFraud"}

// DecodeCSVBytes is DecodeCSV over an in-memory buffer.
func DecodeCSVBytes(data []byte) ([]Transaction, error) {
	return DecodeCSV(bytes.NewReader(data))
}

// DecodeCSV parses a PaySim-style CSV with a header row.
func DecodeCSV(r io.Reader) ([]Transaction, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("DecodeCSV: empty input")
		}
		return nil, fmt.Errorf("DecodeCSV: reading header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	cols := make([]int, len(requiredColumns))
	for i, name := range requiredColumns {
		pos, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("DecodeCSV: missing column %q", name)
		}
		cols[i] = pos
	}

	var txs []Transaction
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("DecodeCSV: line %d: %w", line, err)
		}

		tx, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("DecodeCSV: line %d: %w", line, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func parseRecord(rec []string, cols []int) (Transaction, error) {
	field := func(i int) string { return strings.TrimSpace(rec[cols[i]]) }

	step, err := strconv.Atoi(field(0))
	if err != nil {
		return Transaction{}, fmt.Errorf("step: %w", err)
	}
	typ, err := ParseTxType(field(1))
	if err != nil {
		return Transaction{}, err
	}
	amount, err := decimal.NewFromString(field(2))
	if err != nil {
		return Transaction{}, fmt.Errorf("amount: %w", err)
	}
	isFraud, err := parseFlag(field(5))
	if err != nil {
		return Transaction{}, fmt.Errorf("isFraud: %w", err)
	}
	isFlagged, err := parseFlag(field(6))
	if err != nil {
		return Transaction{}, fmt.Errorf("isFlaggedFraud: %w", err)
	}

	tx := Transaction{
		Step:           step,
		Type:           typ,
		Amount:         amount,
		NameOrig:       field(3),
		NameDest:       field(4),
		IsFraud:        isFraud,
		IsFlaggedFraud: isFlagged,
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

func parseFlag(s string) (bool, error) {
	switch s {
	case "0", "false", "False":
		return false, nil
	case "1", "true", "True":
		return true, nil
	}
	return false, fmt.Errorf("invalid 0/1 flag %q", s)
}
