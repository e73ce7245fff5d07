package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"payflow/internal/domain"
)

// OrderRepository is a PostgreSQL implementation of repository.OrderRepository.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new PostgreSQL order repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateBatch persists the orders materialized from one session. Each
// row carries a unique materialization token, and inserts use ON
// CONFLICT DO NOTHING, so a retried batch converges on the ID set the
// first successful run produced.
func (r *OrderRepository) CreateBatch(ctx context.Context, orders []*domain.Order) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	insert := `
		INSERT INTO orders (id, session_id, seller_id, items, amount, materialization_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (materialization_token) DO NOTHING
	`

	for _, order := range orders {
		var items []byte
		items, err = json.Marshal(order.Items)
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx, insert,
			order.ID,
			order.SessionID,
			order.SellerID,
			items,
			order.Amount,
			order.Token,
			order.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
	}

	// Re-read inside the transaction: conflicted rows keep the IDs the
	// original writer assigned.
	var ids []string
	ids, err = orderIDsBySession(ctx, tx, orders[0].SessionID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return ids, nil
}

// GetBySessionID retrieves the orders created from a session.
func (r *OrderRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*domain.Order, error) {
	query := `
		SELECT id, session_id, seller_id, items, amount, materialization_token, created_at
		FROM orders WHERE session_id = $1
		ORDER BY seller_id
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var order domain.Order
		var items []byte
		if err := rows.Scan(
			&order.ID,
			&order.SessionID,
			&order.SellerID,
			&items,
			&order.Amount,
			&order.Token,
			&order.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &order.Items); err != nil {
			return nil, err
		}
		orders = append(orders, &order)
	}

	return orders, rows.Err()
}

func orderIDsBySession(ctx context.Context, q Querier, sessionID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM orders WHERE session_id = $1 ORDER BY seller_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
