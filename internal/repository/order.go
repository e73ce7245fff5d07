package repository

import (
	"context"

	"payflow/internal/domain"
)

// OrderRepository defines the persistence operations for orders.
type OrderRepository interface {
	// CreateBatch persists the orders materialized from one session in a
	// single transaction. Inserts are keyed by materialization token, so
	// re-running the batch for the same session returns the IDs of the
	// rows already written instead of creating duplicates.
	CreateBatch(ctx context.Context, orders []*domain.Order) ([]string, error)

	// GetBySessionID retrieves the orders created from a session.
	GetBySessionID(ctx context.Context, sessionID string) ([]*domain.Order, error)
}
