// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every key Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIDENCE_THRESHOLD", "SCHEMA_PATH", "LEDGER_DRIVER", "DATABASE_URL", "PEBBLE_PATH",
		"SHEETS_CSV_PATH", "CRM_JSONL_PATH", "REDIS_URL", "EXPORTS_QUEUE", "INBOUND_QUEUE",
		"DEDUP_TTL", "SLACK_WEBHOOK_URL", "NOTIFY_TOKEN_URL", "NOTIFY_CLIENT_ID",
		"NOTIFY_CLIENT_SECRET", "SENDGRID_API_KEY", "SENDGRID_FROM_ADDRESS",
		"SENDGRID_TO_ADDRESS", "PORT", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	os.Unsetenv("CONFIG_PATH")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ConfidenceThreshold != 0.78 {
		t.Errorf("threshold = %v", cfg.ConfidenceThreshold)
	}
	if cfg.LedgerDriver != DriverPebble || cfg.PebblePath != "data/ledger" {
		t.Errorf("ledger = %s %s", cfg.LedgerDriver, cfg.PebblePath)
	}
	if cfg.SheetsCSVPath != "data/sheet_rows.csv" || cfg.CRMJSONLPath != "data/crm_rows.jsonl" {
		t.Errorf("exports = %s %s", cfg.SheetsCSVPath, cfg.CRMJSONLPath)
	}
	if cfg.Port != 8000 {
		t.Errorf("port = %d", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
	if cfg.DedupTTL != 24*time.Hour {
		t.Errorf("dedup ttl = %v", cfg.DedupTTL)
	}
	if cfg.OAuthEnabled() {
		t.Error("oauth should be disabled by default")
	}
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIDENCE_THRESHOLD", "0.5")
	t.Setenv("LEDGER_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://intake@localhost/intake")
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NOTIFY_TOKEN_URL", "https://auth.example.com/token")
	t.Setenv("NOTIFY_CLIENT_ID", "intake")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfidenceThreshold != 0.5 || cfg.LedgerDriver != DriverPostgres || cfg.Port != 9000 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.LogLevel)
	}
	if !cfg.OAuthEnabled() {
		t.Error("oauth should be enabled")
	}
}

func TestLoad_YAMLWithExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_SLACK_URL", "https://hooks.example.com/T000")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.1") // the file wins

	path := filepath.Join(t.TempDir(), "intake.yaml")
	yaml := `
review:
  confidence_threshold: 0.9
ledger:
  driver: pebble
  pebble_path: /var/lib/intake
redis:
  url: redis://localhost:6379/0
  queues:
    inbound: intake:inbound
notify:
  slack_webhook_url: ${TEST_SLACK_URL}
server:
  port: 8081
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfidenceThreshold != 0.9 {
		t.Errorf("threshold = %v", cfg.ConfidenceThreshold)
	}
	if cfg.SlackWebhookURL != "https://hooks.example.com/T000" {
		t.Errorf("slack url = %q", cfg.SlackWebhookURL)
	}
	if cfg.PebblePath != "/var/lib/intake" || cfg.Port != 8081 || cfg.InboundQueue != "intake:inbound" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.ExportsQueue != "intake:approved" {
		t.Errorf("exports queue = %q", cfg.ExportsQueue)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"threshold above one", map[string]string{"CONFIDENCE_THRESHOLD": "1.5"}, "outside [0, 1]"},
		{"threshold negative", map[string]string{"CONFIDENCE_THRESHOLD": "-0.1"}, "outside [0, 1]"},
		{"threshold not a number", map[string]string{"CONFIDENCE_THRESHOLD": "high"}, "CONFIDENCE_THRESHOLD"},
		{"unknown driver", map[string]string{"LEDGER_DRIVER": "sqlite"}, "unknown ledger driver"},
		{"postgres without url", map[string]string{"LEDGER_DRIVER": "postgres"}, "DATABASE_URL"},
		{"sendgrid without addresses", map[string]string{"SENDGRID_API_KEY": "SG.x"}, "SENDGRID_FROM_ADDRESS"},
		{"inbound without redis", map[string]string{"INBOUND_QUEUE": "q"}, "REDIS_URL"},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"missing explicit file", map[string]string{"CONFIG_PATH": "/nonexistent/intake.yaml"}, "read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}
