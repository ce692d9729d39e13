package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"

	"svfe-monitor/internal/config"
	"svfe-monitor/internal/kpi"
	"svfe-monitor/internal/model"
	"svfe-monitor/internal/service"
)

func testApp(t *testing.T, extra string) (*App, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "auth:\n  disabled: true\napp:\n  timezone: UTC\n" + extra
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func TestGenerateTransactions(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	opts := SimulateOptions{Count: 200, SuccessRatio: 0.6}
	records := generateTransactions(gofakeit.New(42), now, opts, []int{103, 104})

	if len(records) != 200 {
		t.Fatalf("expected 200 records, got %d", len(records))
	}

	snap, err := kpi.Compute(records, kpi.Options{Now: now})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if snap.SuccessRate != 60 {
		t.Fatalf("expected 60%% success, got %v", snap.SuccessRate)
	}
	if !snap.DataFresh {
		t.Fatal("synthetic feed should be fresh")
	}
	if !snap.SystemStable {
		t.Fatal("synthetic feed should be stable")
	}
	for i := 1; i < len(records); i++ {
		if !records[i].Timestamp.After(*records[i-1].Timestamp) {
			t.Fatalf("records not in time order at %d", i)
		}
		if records[i].Sequence != records[i-1].Sequence+1 {
			t.Fatalf("sequence gap at %d", i)
		}
	}
	for _, rec := range records {
		if rec.IssuerCode != 103 && rec.IssuerCode != 104 {
			t.Fatalf("unexpected issuer %d", rec.IssuerCode)
		}
		if !rec.Channel.Known() {
			t.Fatalf("unexpected channel %d", rec.Channel)
		}
	}
}

func TestSimulateDryRunPrintsAlerts(t *testing.T) {
	a, out := testApp(t, "")

	err := a.Simulate(context.Background(), SimulateOptions{Count: 50, SuccessRatio: 0.2, Seed: 7})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	text := out.String()
	for _, want := range []string{"Success rate", "20.00%", "success_collapse", "dry run"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestSimulateRejectsBadInput(t *testing.T) {
	a, _ := testApp(t, "")
	if err := a.Simulate(context.Background(), SimulateOptions{Count: 0, SuccessRatio: 0.5}); err == nil {
		t.Fatal("expected error for zero count")
	}
	if err := a.Simulate(context.Background(), SimulateOptions{Count: 10, SuccessRatio: 1.5}); err == nil {
		t.Fatal("expected error for ratio above one")
	}
}

func TestSimulatedIssuersFollowCatalog(t *testing.T) {
	a, _ := testApp(t, "catalog:\n  issuers:\n    \"210\": Alpha\n    \"205\": Beta\n")
	got := a.simulatedIssuers()
	if len(got) != 2 || got[0] != 205 || got[1] != 210 {
		t.Fatalf("unexpected issuers %v", got)
	}
}

func TestThresholdsFromConfig(t *testing.T) {
	a, _ := testApp(t, "rules:\n  expected_channels: [1, 8]\n  min_success_rate: 80\n")
	th := a.thresholds()
	if th.MinSuccessRate != 80 {
		t.Fatalf("expected 80, got %v", th.MinSuccessRate)
	}
	if len(th.ExpectedChannels) != 2 || th.ExpectedChannels[1] != model.ChannelECommerce {
		t.Fatalf("unexpected channels %v", th.ExpectedChannels)
	}
}

func TestOpenStoreRequiresDSN(t *testing.T) {
	a, _ := testApp(t, "")
	if _, err := a.openStore(context.Background()); err == nil {
		t.Fatal("expected error without dsn")
	}
	if err := a.Migrate(); err == nil {
		t.Fatal("expected migrate to fail without dsn")
	}
}

func TestWriteTrendsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "trends.csv")
	points := []kpi.TrendPoint{
		{Bucket: "09:00", Total: 4, SuccessCount: 3, RefusalCount: 1, SuccessRate: 75, RefusalRate: 25},
		{Bucket: "09:30", Total: 3, SuccessCount: 1, RefusalCount: 2, SuccessRate: 33.33, RefusalRate: 66.67},
	}
	if err := writeTrendsCSV(path, points); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[2][0] != "09:30" || rows[2][5] != "66.67" {
		t.Fatalf("unexpected row %v", rows[2])
	}
}

func TestWriteTrendsPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trends.png")
	points := []kpi.TrendPoint{
		{Bucket: "09:00", Total: 4, SuccessRate: 75, RefusalRate: 25},
		{Bucket: "09:30", Total: 3, SuccessRate: 33.33, RefusalRate: 66.67},
		{Bucket: "10:00", Total: 5, SuccessRate: 80, RefusalRate: 20},
	}
	if err := writeTrendsPNG(path, "current", points, 640, 360); err != nil {
		t.Fatalf("write png: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("empty png")
	}

	if err := writeTrendsPNG(path, "current", points[:1], 640, 360); err == nil {
		t.Fatal("expected error for a single point")
	}
}

func TestWriteDistributionPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charts", "distribution.png")
	channels := []service.ChannelStat{
		{Channel: model.ChannelATM, Name: "DAB", Count: 120, RefusalRate: 12.5},
		{Channel: model.ChannelPOS, Name: "TPE", Count: 80, RefusalRate: 30},
		{Channel: model.ChannelECommerce, Name: "E-Commerce", Count: 0},
	}
	if err := writeDistributionPNG(path, "current transactions by terminal type", channels, 640, 360); err != nil {
		t.Fatalf("write png: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("empty png")
	}

	idle := []service.ChannelStat{{Channel: model.ChannelATM, Name: "DAB"}}
	if err := writeDistributionPNG(path, "idle", idle, 640, 360); err == nil {
		t.Fatal("expected error without channel traffic")
	}
}

func TestExportRequiresAnOutput(t *testing.T) {
	a, _ := testApp(t, "")
	err := a.Export(context.Background(), ExportOptions{Source: model.SourceCurrent})
	if err == nil || !strings.Contains(err.Error(), "--distribution-png") {
		t.Fatalf("expected missing output error, got %v", err)
	}
}

func TestBucketTime(t *testing.T) {
	ts, err := bucketTime("13:30")
	if err != nil {
		t.Fatalf("bucket time: %v", err)
	}
	if ts.Hour() != 13 || ts.Minute() != 30 {
		t.Fatalf("unexpected time %s", ts)
	}
	if _, err := bucketTime("1330"); err == nil {
		t.Fatal("expected error for malformed label")
	}
}

func TestPrintAlertsSanitizesMessages(t *testing.T) {
	a, out := testApp(t, "")
	a.printAlerts([]model.AlertEvent{{
		ID:        3,
		Rule:      "refusal_spike",
		Severity:  model.SeverityWarning,
		Message:   "line one\nline two",
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}})
	if strings.Contains(out.String(), "one\nline") {
		t.Fatalf("message not flattened:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "2024-05-01T10:00:00Z") {
		t.Fatalf("timestamp missing:\n%s", out.String())
	}
}
