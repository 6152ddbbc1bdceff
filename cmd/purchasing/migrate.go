package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/plaenen/purchasing/pkg/config"
	"github.com/plaenen/purchasing/pkg/store/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the event store schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		es, err := openStore()
		if err != nil {
			return err
		}
		defer es.Close()

		applied, err := es.RunMigrations(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List migrations and whether they are applied",
	RunE: func(cmd *cobra.Command, _ []string) error {
		es, err := openStore()
		if err != nil {
			return err
		}
		defer es.Close()

		statuses, err := es.MigrationStatus(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED\tAPPLIED AT")
		for _, s := range statuses {
			appliedAt := "-"
			if s.Applied {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%06d\t%s\t%t\t%s\n", s.Version, s.Name, s.Applied, appliedAt)
		}
		return w.Flush()
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

// openStore opens the configured database without applying migrations.
func openStore() (*sqlite.EventStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(cfg.Database.Path); err != nil {
		return nil, err
	}
	return sqlite.NewEventStore(
		sqlite.WithDSN(cfg.Database.Path),
		sqlite.WithWALMode(cfg.Database.WALMode),
		sqlite.WithAutoMigrate(false),
	)
}

func ensureDir(dbPath string) error {
	if dbPath == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}
