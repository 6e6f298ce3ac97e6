package features

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// WriteCSV writes the table in Columns order. Undefined values are empty cells.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("WriteCSV: header: %w", err)
	}
	rec := make([]string, len(Columns))
	for _, r := range t.Rows {
		rec[0] = r.Account
		rec[1] = strconv.Itoa(r.NTx)
		rec[2] = formatFloat(r.AmtSum)
		rec[3] = formatFloat(r.AmtMean)
		rec[4] = formatFloat(r.AmtMax)
		rec[5] = strconv.Itoa(r.NearN)
		rec[6] = strconv.Itoa(r.FraudN)
		rec[7] = strconv.Itoa(r.FlaggedN)
		rec[8] = formatFloat(r.NearPct)
		rec[9] = formatNull(r.IAMean)
		rec[10] = formatNull(r.IAMedian)
		rec[11] = formatNull(r.IAStd)
		rec[12] = strconv.Itoa(r.CPDiversity)
		rec[13] = strconv.FormatBool(r.RoundTripAny)
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("WriteCSV: account %s: %w", r.Account, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EncodeCSV is WriteCSV into a byte slice.
func EncodeCSV(t *Table) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadCSV parses a table written by WriteCSV. Column order may differ, but every
// stored column must be present. Rows are returned ordered by account id;
// duplicate accounts are rejected.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("ReadCSV: empty feature table")
		}
		return nil, fmt.Errorf("ReadCSV: header: %w", err)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, c := range Columns {
		if _, ok := pos[c]; !ok {
			return nil, fmt.Errorf("ReadCSV: missing column %q", c)
		}
	}

	t := &Table{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: line %d: %w", line, err)
		}
		row, err := parseRow(rec, pos)
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: line %d: %w", line, err)
		}
		t.Rows = append(t.Rows, row)
	}

	sort.SliceStable(t.Rows, func(i, j int) bool { return t.Rows[i].Account < t.Rows[j].Account })
	for i := 1; i < len(t.Rows); i++ {
		if t.Rows[i].Account == t.Rows[i-1].Account {
			return nil, fmt.Errorf("ReadCSV: duplicate account %q", t.Rows[i].Account)
		}
	}
	return t, nil
}

// DecodeCSV is ReadCSV over a byte slice.
func DecodeCSV(data []byte) (*Table, error) {
	return ReadCSV(bytes.NewReader(data))
}

func parseRow(rec []string, pos map[string]int) (AccountFeatures, error) {
	p := rowParser{rec: rec, pos: pos}
	row := AccountFeatures{
		Account:      p.str(ColAccount),
		NTx:          p.integer(ColNTx),
		AmtSum:       p.float(ColAmtSum),
		AmtMean:      p.float(ColAmtMean),
		AmtMax:       p.float(ColAmtMax),
		NearN:        p.integer(ColNearN),
		FraudN:       p.integer(ColFraudN),
		FlaggedN:     p.integer(ColFlaggedN),
		NearPct:      p.float(ColNearPct),
		IAMean:       p.null(ColIAMean),
		IAMedian:     p.null(ColIAMedian),
		IAStd:        p.null(ColIAStd),
		CPDiversity:  p.integer(ColCPDiversity),
		RoundTripAny: p.boolean(ColRoundTripAny),
	}
	if p.err != nil {
		return AccountFeatures{}, p.err
	}
	if row.Account == "" {
		return AccountFeatures{}, fmt.Errorf("empty account id")
	}
	return row, nil
}

// rowParser keeps the first conversion error so parseRow reads as a plain literal.
type rowParser struct {
	rec []string
	pos map[string]int
	err error
}

func (p *rowParser) str(col string) string {
	return strings.TrimSpace(p.rec[p.pos[col]])
}

func (p *rowParser) fail(col string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("column %s: %w", col, err)
	}
}

// integer also accepts integral floats ("3.0"), as written by float-typed exports.
func (p *rowParser) integer(col string) int {
	s := p.str(col)
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		p.fail(col, fmt.Errorf("not an integer: %q", s))
		return 0
	}
	return int(f)
}

func (p *rowParser) float(col string) float64 {
	v, err := strconv.ParseFloat(p.str(col), 64)
	if err != nil {
		p.fail(col, err)
	}
	return v
}

func (p *rowParser) null(col string) NullFloat64 {
	s := p.str(col)
	if s == "" || strings.EqualFold(s, "nan") {
		return Null
	}
	return Float(p.float(col))
}

func (p *rowParser) boolean(col string) bool {
	v, err := strconv.ParseBool(p.str(col))
	if err != nil {
		p.fail(col, err)
	}
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatNull(v NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return formatFloat(v.Float64)
}
