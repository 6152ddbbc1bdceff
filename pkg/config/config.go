// Package config loads service configuration from defaults, an optional YAML
// file and PURCHASING_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PURCHASING_"

// Approver roles known to the approval flow policy.
const (
	RoleManager   = "manager"
	RoleDirector  = "director"
	RoleExecutive = "executive"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	NATS      NATSConfig      `yaml:"nats"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Approval  ApprovalConfig  `yaml:"approval"`
}

// ServiceConfig holds identity and logging settings.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat   string `yaml:"log_format"` // json, text
}

// DatabaseConfig configures the SQLite event store.
type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	WALMode         bool          `yaml:"wal_mode"`
	CommandTTL      time.Duration `yaml:"command_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// NATSConfig configures the event bus.
type NATSConfig struct {
	// Embedded starts an in-process server; URL is ignored then.
	Embedded      bool   `yaml:"embedded"`
	URL           string `yaml:"url"`
	Port          int    `yaml:"port"`
	StoreDir      string `yaml:"store_dir"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// OutboxConfig configures the relay that publishes stored events.
type OutboxConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// HTTPConfig configures the REST API server.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	TraceSampleRate float64 `yaml:"trace_sample_rate"`
	// StoreSpans keeps spans in the service database.
	StoreSpans    bool          `yaml:"store_spans"`
	SpanRetention time.Duration `yaml:"span_retention"`
}

// ApprovalConfig holds the amount tiers and who approves at each role.
// Totals below SecondStepThreshold need one approval, totals below
// ThirdStepThreshold two, anything else three.
type ApprovalConfig struct {
	SecondStepThreshold decimal.Decimal     `yaml:"second_step_threshold"`
	ThirdStepThreshold  decimal.Decimal     `yaml:"third_step_threshold"`
	Approvers           map[string]Approver `yaml:"approvers"`
}

// Approver is the person assigned to a role.
type Approver struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "purchasing",
			Environment: "dev",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Database: DatabaseConfig{
			Path:            "data/purchasing.db",
			WALMode:         true,
			CommandTTL:      7 * 24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		NATS: NATSConfig{
			Embedded:      true,
			URL:           "nats://127.0.0.1:4222",
			Port:          -1,
			StoreDir:      "data/nats",
			StreamName:    "PURCHASING_EVENTS",
			SubjectPrefix: "purchasing.events",
		},
		Outbox: OutboxConfig{
			Enabled:      true,
			PollInterval: time.Second,
			BatchSize:    100,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			TraceSampleRate: 1.0,
			SpanRetention:   7 * 24 * time.Hour,
		},
		Approval: ApprovalConfig{
			SecondStepThreshold: decimal.NewFromInt(100_000),
			ThirdStepThreshold:  decimal.NewFromInt(500_000),
			Approvers: map[string]Approver{
				RoleManager:   {ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7", Name: "Department Manager"},
				RoleDirector:  {ID: "3d6f4e2a-1b5c-4f8e-9a7d-2c1b0e9f8a6d", Name: "Finance Director"},
				RoleExecutive: {ID: "9b2e7f4c-6a1d-4e3b-8c5f-0d9a8b7c6e5f", Name: "Chief Financial Officer"},
			},
		},
	}
}

// Load reads configuration from path on top of the defaults, then applies
// environment overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies PURCHASING_* environment variables.
func (c *Config) applyEnvOverrides() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	setDecimal := func(key string, dst *decimal.Decimal) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	setString("ENVIRONMENT", &c.Service.Environment)
	setString("LOG_LEVEL", &c.Service.LogLevel)
	setString("LOG_FORMAT", &c.Service.LogFormat)

	setString("DB_PATH", &c.Database.Path)
	setBool("DB_WAL_MODE", &c.Database.WALMode)
	setDuration("COMMAND_TTL", &c.Database.CommandTTL)

	setBool("NATS_EMBEDDED", &c.NATS.Embedded)
	setString("NATS_URL", &c.NATS.URL)
	setString("NATS_STORE_DIR", &c.NATS.StoreDir)

	setBool("OUTBOX_ENABLED", &c.Outbox.Enabled)
	setDuration("OUTBOX_POLL_INTERVAL", &c.Outbox.PollInterval)

	setString("HTTP_ADDR", &c.HTTP.Addr)

	if v, ok := os.LookupEnv(envPrefix + "TRACE_SAMPLE_RATE"); ok && v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sTRACE_SAMPLE_RATE: %w", envPrefix, err))
		} else {
			c.Telemetry.TraceSampleRate = rate
		}
	}
	setBool("STORE_SPANS", &c.Telemetry.StoreSpans)

	setDecimal("APPROVAL_SECOND_STEP_THRESHOLD", &c.Approval.SecondStepThreshold)
	setDecimal("APPROVAL_THIRD_STEP_THRESHOLD", &c.Approval.ThirdStepThreshold)

	for _, role := range []string{RoleManager, RoleDirector, RoleExecutive} {
		approver := c.Approval.Approvers[role]
		prefix := "APPROVER_" + strings.ToUpper(role) + "_"
		setString(prefix+"ID", &approver.ID)
		setString(prefix+"NAME", &approver.Name)
		setString(prefix+"EMAIL", &approver.Email)
		if approver != (Approver{}) {
			if c.Approval.Approvers == nil {
				c.Approval.Approvers = make(map[string]Approver)
			}
			c.Approval.Approvers[role] = approver
		}
	}

	return errors.Join(errs...)
}
