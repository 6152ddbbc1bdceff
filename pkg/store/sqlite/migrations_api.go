package sqlite

import (
	"context"

	"github.com/plaenen/purchasing/pkg/store/sqlite/migrate"
)

// RunMigrations applies pending migrations and returns how many ran.
func (s *EventStore) RunMigrations(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied, err := runMigrations(ctx, s.db)
	if err == nil && applied > 0 {
		s.logger.InfoContext(ctx, "applied migrations", "count", applied)
	}
	return applied, err
}

// MigrationStatus reports every embedded migration and whether it is applied.
func (s *EventStore) MigrationStatus(ctx context.Context) ([]migrate.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := newMigrator(s.db)
	if err != nil {
		return nil, err
	}
	return m.Status(ctx)
}
