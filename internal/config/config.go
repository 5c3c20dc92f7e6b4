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

// Package config loads configuration from .env, an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Ledger drivers.
const (
	DriverPebble   = "pebble"
	DriverPostgres = "postgres"
)

// defaultConfigPath is read when present; CONFIG_PATH must exist if set.
const defaultConfigPath = "config/intake.yaml"

// Config holds all configuration for the intake service.
type Config struct {
	// Review
	ConfidenceThreshold float64
	SchemaPath          string

	// Ledger
	LedgerDriver string
	DatabaseURL  string
	PebblePath   string

	// Exports
	SheetsCSVPath string
	CRMJSONLPath  string

	// Redis (optional; empty URL disables queue export and inbound consumer)
	RedisURL     string
	ExportsQueue string
	InboundQueue string
	DedupTTL     time.Duration

	// Notifications
	SlackWebhookURL    string
	NotifyTokenURL     string
	NotifyClientID     string
	NotifyClientSecret string
	SendGridAPIKey     string
	SendGridFrom       string
	SendGridTo         string

	// Server
	Port     int
	LogLevel slog.Level
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Review struct {
		ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
		SchemaPath          string   `yaml:"schema_path"`
	} `yaml:"review"`
	Ledger struct {
		Driver      string `yaml:"driver"`
		DatabaseURL string `yaml:"database_url"`
		PebblePath  string `yaml:"pebble_path"`
	} `yaml:"ledger"`
	Exports struct {
		SheetsCSVPath string `yaml:"sheets_csv_path"`
		CRMJSONLPath  string `yaml:"crm_jsonl_path"`
	} `yaml:"exports"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Exports string `yaml:"exports"`
			Inbound string `yaml:"inbound"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Notify struct {
		SlackWebhookURL string `yaml:"slack_webhook_url"`
		OAuth           struct {
			TokenURL     string `yaml:"token_url"`
			ClientID     string `yaml:"client_id"`
			ClientSecret string `yaml:"client_secret"`
		} `yaml:"oauth"`
		SendGrid struct {
			APIKey string `yaml:"api_key"`
			From   string `yaml:"from"`
			To     string `yaml:"to"`
		} `yaml:"sendgrid"`
	} `yaml:"notify"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	LogLevel string `yaml:"log_level"`
}

// Load reads .env (if present), then the YAML file at CONFIG_PATH (with env
// var expansion), then environment variables for anything the file leaves
// unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	raw, err := readFile()
	if err != nil {
		return nil, err
	}

	threshold := 0.78
	if raw.Review.ConfidenceThreshold != nil {
		threshold = *raw.Review.ConfidenceThreshold
	} else if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		threshold, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("CONFIDENCE_THRESHOLD: %w", err)
		}
	}

	port := raw.Server.Port
	if port == 0 {
		port = envOrDefaultInt("PORT", 8000)
	}

	cfg := &Config{
		ConfidenceThreshold: threshold,
		SchemaPath:          firstNonEmpty(raw.Review.SchemaPath, os.Getenv("SCHEMA_PATH")),

		LedgerDriver: strings.ToLower(firstNonEmpty(raw.Ledger.Driver, envOrDefault("LEDGER_DRIVER", DriverPebble))),
		DatabaseURL:  firstNonEmpty(raw.Ledger.DatabaseURL, os.Getenv("DATABASE_URL")),
		PebblePath:   firstNonEmpty(raw.Ledger.PebblePath, envOrDefault("PEBBLE_PATH", "data/ledger")),

		SheetsCSVPath: firstNonEmpty(raw.Exports.SheetsCSVPath, envOrDefault("SHEETS_CSV_PATH", "data/sheet_rows.csv")),
		CRMJSONLPath:  firstNonEmpty(raw.Exports.CRMJSONLPath, envOrDefault("CRM_JSONL_PATH", "data/crm_rows.jsonl")),

		RedisURL:     firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL")),
		ExportsQueue: firstNonEmpty(raw.Redis.Queues.Exports, envOrDefault("EXPORTS_QUEUE", "intake:approved")),
		InboundQueue: firstNonEmpty(raw.Redis.Queues.Inbound, os.Getenv("INBOUND_QUEUE")),
		DedupTTL:     envOrDefaultDuration("DEDUP_TTL", 24*time.Hour),

		SlackWebhookURL:    firstNonEmpty(raw.Notify.SlackWebhookURL, os.Getenv("SLACK_WEBHOOK_URL")),
		NotifyTokenURL:     firstNonEmpty(raw.Notify.OAuth.TokenURL, os.Getenv("NOTIFY_TOKEN_URL")),
		NotifyClientID:     firstNonEmpty(raw.Notify.OAuth.ClientID, os.Getenv("NOTIFY_CLIENT_ID")),
		NotifyClientSecret: firstNonEmpty(raw.Notify.OAuth.ClientSecret, os.Getenv("NOTIFY_CLIENT_SECRET")),
		SendGridAPIKey:     firstNonEmpty(raw.Notify.SendGrid.APIKey, os.Getenv("SENDGRID_API_KEY")),
		SendGridFrom:       firstNonEmpty(raw.Notify.SendGrid.From, os.Getenv("SENDGRID_FROM_ADDRESS")),
		SendGridTo:         firstNonEmpty(raw.Notify.SendGrid.To, os.Getenv("SENDGRID_TO_ADDRESS")),

		Port: port,
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(firstNonEmpty(raw.LogLevel, envOrDefault("LOG_LEVEL", "info")))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %v outside [0, 1]", c.ConfidenceThreshold)
	}
	switch c.LedgerDriver {
	case DriverPebble:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unknown ledger driver %q", c.LedgerDriver)
	}
	if c.SendGridAPIKey != "" && (c.SendGridFrom == "" || c.SendGridTo == "") {
		return fmt.Errorf("SENDGRID_FROM_ADDRESS and SENDGRID_TO_ADDRESS are required with SENDGRID_API_KEY")
	}
	if c.InboundQueue != "" && c.RedisURL == "" {
		return fmt.Errorf("INBOUND_QUEUE requires REDIS_URL")
	}
	return nil
}

// OAuthEnabled reports whether webhook calls need a client-credentials token.
func (c *Config) OAuthEnabled() bool {
	return c.NotifyTokenURL != "" && c.NotifyClientID != ""
}

// readFile loads the YAML file. A missing default file is not an error.
func readFile() (*rawConfig, error) {
	configPath, explicit := os.LookupEnv("CONFIG_PATH")
	if !explicit {
		configPath = defaultConfigPath
	}

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return &raw, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return &raw, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
