package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/purchasing/pkg/validators"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "purchasing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  log_level: debug
database:
  path: /var/lib/purchasing/events.db
outbox:
  poll_interval: 250ms
approval:
  second_step_threshold: 75000
  third_step_threshold: "400000.50"
  approvers:
    director:
      id: 11111111-2222-4333-8444-555555555555
      name: Regional Director
      email: director@example.com
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "/var/lib/purchasing/events.db", cfg.Database.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
	assert.True(t, cfg.Approval.SecondStepThreshold.Equal(decimal.NewFromInt(75000)))
	assert.True(t, cfg.Approval.ThirdStepThreshold.Equal(decimal.RequireFromString("400000.5")))
	assert.Equal(t, "Regional Director", cfg.Approval.Approvers[RoleDirector].Name)
	assert.Equal(t, "Department Manager", cfg.Approval.Approvers[RoleManager].Name, "unlisted roles keep defaults")
	assert.Equal(t, "json", cfg.Service.LogFormat, "unset keys keep defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("strings durations and decimals", func(t *testing.T) {
		t.Setenv("PURCHASING_HTTP_ADDR", ":9090")
		t.Setenv("PURCHASING_OUTBOX_POLL_INTERVAL", "5s")
		t.Setenv("PURCHASING_NATS_EMBEDDED", "false")
		t.Setenv("PURCHASING_APPROVAL_THIRD_STEP_THRESHOLD", "750000")
		t.Setenv("PURCHASING_APPROVER_EXECUTIVE_NAME", "Chief Executive")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, ":9090", cfg.HTTP.Addr)
		assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
		assert.False(t, cfg.NATS.Embedded)
		assert.True(t, cfg.Approval.ThirdStepThreshold.Equal(decimal.NewFromInt(750000)))
		assert.Equal(t, "Chief Executive", cfg.Approval.Approvers[RoleExecutive].Name)
		assert.Equal(t, DefaultConfig().Approval.Approvers[RoleExecutive].ID, cfg.Approval.Approvers[RoleExecutive].ID)
	})

	t.Run("bad values are reported", func(t *testing.T) {
		t.Setenv("PURCHASING_OUTBOX_POLL_INTERVAL", "soon")
		t.Setenv("PURCHASING_DB_WAL_MODE", "maybe")

		cfg := DefaultConfig()
		err := cfg.applyEnvOverrides()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "PURCHASING_OUTBOX_POLL_INTERVAL")
		assert.Contains(t, err.Error(), "PURCHASING_DB_WAL_MODE")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.Service.LogLevel = "verbose" }, "service.log_level"},
		{"thresholds out of order", func(c *Config) {
			c.Approval.ThirdStepThreshold = c.Approval.SecondStepThreshold
		}, "approval.third_step_threshold"},
		{"approver id", func(c *Config) {
			a := c.Approval.Approvers[RoleManager]
			a.ID = "manager"
			c.Approval.Approvers[RoleManager] = a
		}, "approval.approvers.manager.id"},
		{"missing role", func(c *Config) { delete(c.Approval.Approvers, RoleDirector) }, "approval.approvers.director.id"},
		{"approver email", func(c *Config) {
			a := c.Approval.Approvers[RoleExecutive]
			a.Email = "cfo"
			c.Approval.Approvers[RoleExecutive] = a
		}, "approval.approvers.executive.email"},
		{"sample rate", func(c *Config) { c.Telemetry.TraceSampleRate = 2 }, "telemetry.trace_sample_rate"},
		{"external nats needs url", func(c *Config) {
			c.NATS.Embedded = false
			c.NATS.URL = ""
		}, "nats.url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			var validationErr *validators.ValidationError
			require.True(t, errors.As(err, &validationErr), "expected validation error, got %v", err)
			assert.True(t, validationErr.Fields.GetFieldValidations(tt.field).HasErrors())
		})
	}
}
