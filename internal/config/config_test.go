package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: s3cret\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("expected 1m interval, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Metrics.FreshnessThreshold != 15*time.Minute {
		t.Fatalf("expected 15m freshness, got %s", cfg.Metrics.FreshnessThreshold)
	}
	if cfg.Rules.MinSuccessRate != 70 || cfg.Rules.MaxRefusalRate != 35 {
		t.Fatalf("unexpected global thresholds: %+v", cfg.Rules)
	}
	if len(cfg.Rules.CriticalCodes) != 4 || cfg.Rules.CriticalCodes[0] != 802 {
		t.Fatalf("unexpected critical codes: %v", cfg.Rules.CriticalCodes)
	}
	if cfg.Database.Tables.Historical != "transactions_hist" {
		t.Fatalf("unexpected historical table %q", cfg.Database.Tables.Historical)
	}
	if cfg.Database.QueryTimeout != 30*time.Second {
		t.Fatalf("expected 30s query timeout, got %s", cfg.Database.QueryTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: s3cret
scheduler:
  interval: 5m
rules:
  locale: en
  critical_codes: [101, 102]
catalog:
  issuers:
    "103": "Banque Centrale"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", cfg.Scheduler.Interval)
	}
	if cfg.Rules.Locale != "en" {
		t.Fatalf("expected en locale, got %q", cfg.Rules.Locale)
	}
	names, err := cfg.IssuerNames()
	if err != nil {
		t.Fatalf("issuer names: %v", err)
	}
	if names[103] != "Banque Centrale" {
		t.Fatalf("issuer 103 not resolved: %v", names)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"missing secret":    "scheduler:\n  interval: 1m\n",
		"negative interval": "auth:\n  jwt_secret: x\nscheduler:\n  interval: -1m\n",
		"threshold range":   "auth:\n  jwt_secret: x\nrules:\n  max_refusal_rate: 150\n",
		"bad locale":        "auth:\n  jwt_secret: x\nrules:\n  locale: de\n",
		"telegram no token": "auth:\n  jwt_secret: x\nalerting:\n  telegram:\n    enabled: true\n",
		"bad issuer code":   "auth:\n  jwt_secret: x\ncatalog:\n  issuers:\n    abc: Foo\n",
		"bad timezone":      "auth:\n  jwt_secret: x\napp:\n  timezone: Mars/Olympus\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadFromEnvPath(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: s3cret\nscheduler:\n  interval: 2m\n")
	t.Setenv("SVFEMON_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scheduler.Interval != 2*time.Minute {
		t.Fatalf("expected 2m from SVFEMON_CONFIG, got %s", cfg.Scheduler.Interval)
	}
}
