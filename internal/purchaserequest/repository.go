package purchaserequest

import (
	"time"

	"github.com/plaenen/purchasing/pkg/store"
)

// Repository loads and saves PurchaseRequest aggregates.
type Repository = store.BaseRepository[*PurchaseRequest]

// NewRepository returns an event-sourced repository over es. A positive
// commandTTL overrides how long processed commands are remembered.
func NewRepository(es store.EventStore, commandTTL time.Duration) *Repository {
	repo := store.NewRepository(es, AggregateType, New, Apply)
	if commandTTL > 0 {
		repo.WithCommandTTL(commandTTL)
	}
	return repo
}
