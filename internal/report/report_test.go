package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/ledger-anomaly/internal/anomaly"
	"github.com/dvloznov/ledger-anomaly/internal/features"
	"github.com/dvloznov/ledger-anomaly/internal/ledger"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

func sampleResult() *anomaly.Result {
	return &anomaly.Result{
		Columns: []string{features.ColNTx, features.ColNearPct, features.ColIAMean},
		Rows: []anomaly.ScoredAccount{
			{
				AccountFeatures: features.AccountFeatures{Account: "C7", NTx: 2, NearPct: 1, IAMean: features.Float(1)},
				Score:           -0.25,
				IsAnomaly:       true,
			},
			{
				AccountFeatures: features.AccountFeatures{Account: "C3", NTx: 1},
				Score:           0.125,
			},
		},
		Flagged: 1,
	}
}

type mockSink struct {
	runID string
	rows  int
	err   error
}

func (m *mockSink) WriteAnomalies(ctx context.Context, runID string, res *anomaly.Result) error {
	m.runID = runID
	m.rows = len(res.Rows)
	return m.err
}

type mockUploader struct {
	uri  string
	data []byte
}

func (m *mockUploader) Upload(ctx context.Context, uri string, data []byte, contentType string) error {
	m.uri = uri
	m.data = data
	return nil
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleResult()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	want := "account,n_tx,near_pct,ia_mean,iso_score,is_anom\n" +
		"C7,2,1,1,-0.25,true\n" +
		"C3,1,0,,0.125,false\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSV_UnknownColumn(t *testing.T) {
	res := sampleResult()
	res.Columns = append(res.Columns, "velocity")
	if err := WriteCSV(&bytes.Buffer{}, res); err == nil {
		t.Error("expected error for unknown column")
	}
}

func TestEmitter_LocalFileAndSinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "anomalies_accounts.csv")
	sink := &mockSink{}
	e := &Emitter{Path: path, Sinks: []Sink{sink}, Top: 5}

	if err := e.Emit(context.Background(), "run-1", sampleResult()); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "account,n_tx") {
		t.Errorf("unexpected report: %q", data)
	}
	if sink.runID != "run-1" || sink.rows != 2 {
		t.Errorf("sink got run %q with %d rows", sink.runID, sink.rows)
	}
}

func TestEmitter_ObjectPath(t *testing.T) {
	up := &mockUploader{}
	e := &Emitter{Path: "gs://reports/anomalies.csv", Objects: up}

	if err := e.Emit(context.Background(), "run-2", sampleResult()); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if up.uri != "gs://reports/anomalies.csv" || len(up.data) == 0 {
		t.Errorf("upload not performed: uri=%q bytes=%d", up.uri, len(up.data))
	}

	e.Objects = nil
	if err := e.Emit(context.Background(), "run-2", sampleResult()); err == nil {
		t.Error("expected error without object store")
	}
}

func TestEmitter_SinkError(t *testing.T) {
	sinkErr := errors.New("quota exceeded")
	e := &Emitter{
		Path:  filepath.Join(t.TempDir(), "out.csv"),
		Sinks: []Sink{&mockSink{err: sinkErr}},
	}
	if err := e.Emit(context.Background(), "run-3", sampleResult()); !errors.Is(err, sinkErr) {
		t.Errorf("Emit() error = %v, want %v", err, sinkErr)
	}
}

func TestNearThresholdActivity(t *testing.T) {
	inBand := func(d decimal.Decimal) bool {
		return d.GreaterThanOrEqual(decimal.NewFromInt(9000)) && d.LessThanOrEqual(decimal.RequireFromString("9999.99"))
	}
	txs := []ledger.Transaction{
		{Step: 1, Amount: decimal.NewFromInt(9500)},
		{Step: 1, Amount: decimal.NewFromInt(9000)},
		{Step: 2, Amount: decimal.NewFromInt(100)},
		{Step: 26, Amount: decimal.RequireFromString("9999.99")},
		{Step: 30, Amount: decimal.NewFromInt(10000)},
	}

	a := NearThresholdActivity(txs, inBand)
	if a.Total != 3 {
		t.Errorf("Total = %d, want 3", a.Total)
	}
	if len(a.Counts) != 2 {
		t.Fatalf("got %d days, want 2", len(a.Counts))
	}
	if a.Counts[0][0] != 2 || a.Counts[1][1] != 1 {
		t.Errorf("counts = %v", a.Counts)
	}

	var buf bytes.Buffer
	if err := a.Write(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header, 2 days and total:\n%s", len(lines), buf.String())
	}
	if fields := strings.Fields(lines[3]); fields[0] != "total" || fields[len(fields)-1] != "3" {
		t.Errorf("total line = %q", lines[3])
	}
}
