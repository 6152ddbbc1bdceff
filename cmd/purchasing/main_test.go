package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCommands(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "purchasing.db")
	t.Setenv("PURCHASING_DB_PATH", dbPath)
	t.Setenv("PURCHASING_DB_WAL_MODE", "false")

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs(args)
		require.NoError(t, rootCmd.Execute())
		return out.String()
	}

	status := run("migrate", "status")
	assert.Contains(t, status, "create_events")
	assert.Contains(t, status, "false")

	assert.Contains(t, run("migrate", "up"), "applied 3 migration(s)")
	assert.Contains(t, run("migrate", "up"), "applied 0 migration(s)")
	assert.NotContains(t, run("migrate", "status"), "false")
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["migrate"])
}
