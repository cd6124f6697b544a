package db

import (
	"context"
	"fmt"
)

// CreateOrder inserts a journal row for a newly submitted order.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (id, symbol, epic, direction, kind, quantity, level, status, deal_id, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			deal_id = excluded.deal_id,
			reason = excluded.reason,
			updated_at = CURRENT_TIMESTAMP
	`, o.ID, o.Symbol, o.Epic, o.Direction, o.Kind, o.Quantity, o.Level, o.Status, o.DealID, o.Reason)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrderStatus records a lifecycle transition.
func (d *Database) UpdateOrderStatus(ctx context.Context, orderID, status, dealID, reason string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET status = ?, deal_id = ?, reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, status, dealID, reason, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

// ListOrders returns the most recent orders, newest first.
func (d *Database) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, epic, direction, kind, quantity, level, status, deal_id, reason, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Symbol, &o.Epic, &o.Direction, &o.Kind, &o.Quantity,
			&o.Level, &o.Status, &o.DealID, &o.Reason, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// CreateFill inserts a journal row for one execution.
func (d *Database) CreateFill(ctx context.Context, f Fill) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO fills (id, order_id, epic, direction, price, qty, fee, fee_currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.OrderID, f.Epic, f.Direction, f.Price, f.Qty, f.Fee, f.FeeCurrency)
	if err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}
	return nil
}

// ListFillsByOrder returns all executions recorded for one order.
func (d *Database) ListFillsByOrder(ctx context.Context, orderID string) ([]Fill, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, order_id, epic, direction, price, qty, fee, fee_currency, created_at
		FROM fills
		WHERE order_id = ?
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query fills: %w", err)
	}
	defer rows.Close()

	var fills []Fill
	for rows.Next() {
		var f Fill
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Epic, &f.Direction, &f.Price, &f.Qty,
			&f.Fee, &f.FeeCurrency, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fill: %w", err)
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
